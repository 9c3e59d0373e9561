// Package netterm is the terminal network layer: it owns the TCP sockets
// CLA ports are bound to and the per-port PCB (Port Control Block) state
// SVM and TIP read and write. It is the "network layer" spec.md calls an
// external collaborator for buffer/logging/CLI concerns, but the core needs
// a concrete implementation to exercise SVM/TIP end to end, so it lives
// here as an ordinary package like any other.
package netterm

import (
	"log/slog"
	"net"
)

// PCB is a Port Control Block, keyed by CLA port number.
type PCB struct {
	Port       int
	Conn       net.Conn
	Configured bool // non-nil network-configuration binding exists.
	WaitForTCB bool // cciWaitForTcb
	Disabled   bool // cciIsDisabled
}

// Table is the PCB array, indexed by CLA port number.
type Table struct {
	pcbs map[int]*PCB
}

// NewTable creates an empty PCB table.
func NewTable() *Table {
	return &Table{pcbs: map[int]*PCB{}}
}

// Configure registers port as a CLA port the config file has bound to a
// listening TCP socket, creating its PCB if necessary.
func (t *Table) Configure(port int) *PCB {
	p, ok := t.pcbs[port]
	if !ok {
		p = &PCB{Port: port}
		t.pcbs[port] = p
	}
	p.Configured = true
	return p
}

// Get returns the PCB for a port, or nil if the port was never configured.
func (t *Table) Get(port int) *PCB {
	return t.pcbs[port]
}

// Attach binds an accepted connection to a configured PCB.
func (t *Table) Attach(port int, conn net.Conn) bool {
	p := t.pcbs[port]
	if p == nil || !p.Configured {
		return false
	}
	p.Conn = conn
	return true
}

// Detach clears a PCB's live connection, leaving its configuration intact.
func (t *Table) Detach(port int) {
	if p := t.pcbs[port]; p != nil {
		p.Conn = nil
	}
}

// Configured reports whether port has a network-configuration binding, the
// precondition SVM checks before acting on any port-indexed service message.
func (t *Table) Configured(port int) bool {
	p := t.pcbs[port]
	return p != nil && p.Configured
}

// SetDisabled sets a PCB's cciIsDisabled flag.
func (t *Table) SetDisabled(port int, v bool) {
	if p := t.pcbs[port]; p != nil {
		p.Disabled = v
	}
}

// SetWaitForTCB sets a PCB's cciWaitForTcb flag.
func (t *Table) SetWaitForTCB(port int, v bool) {
	if p := t.pcbs[port]; p != nil {
		p.WaitForTCB = v
	}
}

// Send writes data to the session bound to a port. Writes are best-effort:
// a write error only logs, since the disconnect notification arrives
// separately as a TermDisconnect event.
func (t *Table) Send(port int, data []byte) {
	p := t.pcbs[port]
	if p == nil || p.Conn == nil {
		return
	}
	traceSend(port, len(data))
	if _, err := p.Conn.Write(data); err != nil {
		slog.Debug("netterm: write failed", "port", port, "error", err)
	}
}
