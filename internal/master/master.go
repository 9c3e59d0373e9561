// Package master defines the packet type that carries every event crossing
// from a network or clock goroutine onto the single NPU core thread.
//
// Nothing outside this package runs HIP, SVM or TIP logic directly against a
// net.Conn or a time.Ticker; every external event is wrapped in a Packet and
// handed to the core's master channel, so the core loop itself never blocks
// on, or races with, network or timer goroutines.
package master

import "net"

// Msg identifies what kind of event a Packet carries.
type Msg int

const (
	// TermConnect reports a new terminal-network session attached to a CLA port.
	TermConnect Msg = iota
	// TermDisconnect reports a terminal-network session going away.
	TermDisconnect
	// TermReceive carries raw bytes received from a terminal-network session.
	TermReceive
	// HeartbeatTick fires once per emulated second for idle-line housekeeping.
	HeartbeatTick
	// HostLoad reports a boot image has been written into HIP program memory.
	HostLoad
	// Start asks the core to begin executing the loaded NPU image.
	Start
	// Stop asks the core to halt execution.
	Stop
)

// Packet is the single envelope type posted to a core's master channel.
type Packet struct {
	Msg    Msg
	PortNo int      // CLA port number the event concerns, for Term* messages.
	Conn   net.Conn // valid only for TermConnect.
	Data   []byte   // valid only for TermReceive.
}
