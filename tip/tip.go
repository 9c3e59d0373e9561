// Package tip implements the Terminal Interface Protocol: the per-connection
// upline/downline block pipeline, block-sequence-number management,
// acknowledgements, and the Async sub-module's character-level terminal I/O.
package tip

import (
	"fmt"
	"log/slog"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/internal/npubuf"
)

// State is a TCB's connection lifecycle state.
type State int

const (
	Idle State = iota
	Connected
	HostRequestDisconnect
	NpuRequestDisconnect
)

// inBufHeaderLen is the 8-byte upline header reserved at the start of a
// TCB's input buffer: DN, SN, CN, BT, DBC, TCS, TCS, LV.
const inBufHeaderLen = 8

// TCB is a Terminal Control Block, indexed by connection number (CN).
type TCB struct {
	CN         int
	State      State
	Port       int
	Cluster    byte
	Terminal   byte
	DeviceType byte
	Name       string
	Type       TipType
	SubTip     byte
	StreamID   byte
	Console    int // CN of the owning console TCB, or its own CN if none.
	PCB        int // index into the network layer's PCB table.

	in      npubuf.Buffer
	inStart int

	UplineBSN      byte
	XOFF           bool
	BreakPending   bool
	DBCNoCursorPos bool
	LastOpWasInput bool

	Params Params

	out []*npubuf.Buffer
}

// Network is the subset of the terminal network layer TIP/Async drive:
// echoing bytes back to a session and sending a human-readable disconnect
// notice. The core wires this to the netterm package.
type Network interface {
	Send(pcb int, data []byte)
}

// Upline is the subset of HIP's block framer TIP hands finished buffers to.
type Upline interface {
	UplineBlock(buf *npubuf.Buffer) bool
}

// Table is the TCB array plus the collaborators TIP needs to process
// blocks: a buffer pool, the terminal network layer, and HIP's upline
// framer (reached indirectly through BIP in production, directly in tests).
type Table struct {
	pool *npubuf.Pool
	net  Network
	tcbs []TCB
	dn   byte // destination node stamped on blocks this core originates.
	sn   byte // source node stamped on blocks this core originates.
}

// NewTable allocates a TCB table with size slots, all Idle.
func NewTable(size int, pool *npubuf.Pool, net Network, dn, sn byte) *Table {
	t := &Table{pool: pool, net: net, tcbs: make([]TCB, size), dn: dn, sn: sn}
	for i := range t.tcbs {
		t.tcbs[i].CN = i
		t.tcbs[i].Console = i
	}
	return t
}

// Get returns the TCB for connection number cn, or nil if cn is out of range.
func (t *Table) Get(cn int) *TCB {
	if cn < 0 || cn >= len(t.tcbs) {
		return nil
	}
	return &t.tcbs[cn]
}

// CountNonIdle returns how many TCBs on the given port are not Idle,
// matching LCB.numTerminals' invariant.
func (t *Table) CountNonIdle(port int) int {
	n := 0
	for i := range t.tcbs {
		if t.tcbs[i].Port == port && t.tcbs[i].State != Idle {
			n++
		}
	}
	return n
}

// Active returns every TCB not in the Idle state, for the operator console's
// "show tcb" command.
func (t *Table) Active() []TCB {
	var active []TCB
	for i := range t.tcbs {
		if t.tcbs[i].State != Idle {
			active = append(active, t.tcbs[i])
		}
	}
	return active
}

// deviceKind decodes the top 3 bits of a ConfTerm device-type byte.
func deviceKind(deviceType byte) DeviceKind {
	return DeviceKind(deviceType >> 5)
}

// tipTypeFor decodes the upper nibble of a ConfTerm terminal-type byte
// (terminalType>>3) into a TipType; only Async (1) is supported.
func tipTypeFor(terminalType byte) TipType {
	switch terminalType >> 3 {
	case 1:
		return TipAsync
	default:
		return TipMode4 // placeholder for any unsupported type; rejected by caller.
	}
}

// ResetInputBuffer lays down the 8-byte upline header at the start of the
// TCB's input buffer and resets the write/start-of-user-data pointers.
func (tcb *TCB) ResetInputBuffer(dn, sn byte) {
	tcb.in.Reset()
	hdr := [inBufHeaderLen]byte{
		dn, sn, byte(tcb.CN), 0, block.DBCNonTransparent, 0, 0, 0,
	}
	tcb.in.AppendBytes(hdr[:])
	tcb.inStart = inBufHeaderLen
}

// DiscardOutputQueue releases every buffer queued for upline transmission.
// Ack generation for the discarded blocks is intentionally not performed.
func (tcb *TCB) DiscardOutputQueue(pool *npubuf.Pool) {
	for _, b := range tcb.out {
		pool.Release(b)
	}
	tcb.out = nil
	tcb.XOFF = false
}

// frameUpline stamps the TCB's input buffer as the given block type with the
// current BSN, advances BSN modulo 8, and hands it to HIP via up. If the
// pool has no buffer available the upline block is dropped, per the
// "response-buffer-allocation-failure drops the message" invariant.
func (t *Table) frameUpline(tcb *TCB, bt byte, up Upline) {
	buf := t.pool.Get()
	if buf == nil {
		slog.Warn("tip: pool exhausted, dropped upline block", "cn", tcb.CN)
		return
	}
	buf.AppendBytes(tcb.in.Bytes())
	buf.Data[block.OffDN] = t.dn
	buf.Data[block.OffSN] = t.sn
	buf.Data[block.OffCN] = byte(tcb.CN)
	buf.Data[block.OffBTBSN] = (bt & block.MaskBT) | (tcb.UplineBSN << block.ShiftBSN)
	tcb.UplineBSN = (tcb.UplineBSN + 1) & 0x07

	if !up.UplineBlock(buf) {
		t.pool.Release(buf)
		slog.Warn("tip: HIP busy, dropped upline block", "cn", tcb.CN)
	}
}

// SendAck builds and frames an HTBACK buffer for the TCB's current BSN. If
// the pool has no buffer available the ack is dropped, same as frameUpline.
func (t *Table) SendAck(tcb *TCB, up Upline) {
	buf := t.pool.Get()
	if buf == nil {
		slog.Warn("tip: pool exhausted, dropped ack", "cn", tcb.CN)
		return
	}
	block.BuildHeader(buf.Data[:4], t.dn, t.sn, byte(tcb.CN), block.BTHTBACK, tcb.UplineBSN)
	buf.Len = 4
	tcb.UplineBSN = (tcb.UplineBSN + 1) & 0x07
	if !up.UplineBlock(buf) {
		t.pool.Release(buf)
	}
}

// ProcessDownline dispatches a downline buffer by the low 3 bits of its
// BT/BSN byte. bp is released by the caller (BIP) once ProcessDownline
// returns, matching the "exactly one owner at a time" buffer convention.
func (t *Table) ProcessDownline(bp *npubuf.Buffer, up Upline, async *Async) {
	if bp.Len <= int(block.OffCN) {
		return
	}
	cn := int(bp.Data[block.OffCN])
	tcb := t.Get(cn)
	if tcb == nil {
		return
	}

	bt := block.BT(bp.Data[block.OffBTBSN])
	traceBlock(cn, bt)
	switch bt {
	case block.BTHTCMD:
		if bp.Len > block.OffPFC && bp.Data[block.OffPFC] == 7 {
			tcb.BreakPending = false
		}
		t.SendAck(tcb, up)

	case block.BTHTBLK, block.BTHTMSG:
		if tcb.State == Connected {
			traceData(cn, bp.Bytes())
			async.ProcessDownlineData(tcb, bp.Bytes(), bt == block.BTHTMSG)
		}
		t.SendAck(tcb, up)

	case block.BTHTBACK:
		// Upline acknowledgement; no action required.

	default:
		slog.Warn("tip: unrecognized block type", "bt", bt, "cn", cn)
	}
}

// ConfigureTerminal builds a TCB from a ConfTerm message's fields. The TCB's
// Name is the derived 7-char CPPCCTT terminal name.
func (t *Table) ConfigureTerminal(cn, port int, cluster, terminal, deviceType, terminalType byte, pcb int, hostNode byte) (*TCB, error) {
	tcb := t.Get(cn)
	if tcb == nil {
		return nil, fmt.Errorf("tip: connection number %d out of range", cn)
	}

	tipType := tipTypeFor(terminalType)
	if tipType != TipAsync {
		return nil, fmt.Errorf("tip: unsupported terminal type %#x", terminalType)
	}

	tcb.Port = port
	tcb.Cluster = cluster
	tcb.Terminal = terminal
	tcb.DeviceType = deviceType
	tcb.Name = termName(port, cluster, terminal)
	tcb.Type = tipType
	tcb.PCB = pcb
	tcb.Params = DefaultParams(hostNode)
	tcb.ResetInputBuffer(t.dn, t.sn)

	kind := deviceKind(deviceType)
	tcb.Console = tcb.CN
	if kind != DeviceConsole {
		if owner := t.findConsole(port); owner != nil {
			tcb.Console = owner.CN
		}
	}

	tcb.State = Connected
	return tcb, nil
}

func (t *Table) findConsole(port int) *TCB {
	for i := range t.tcbs {
		if t.tcbs[i].Port == port && t.tcbs[i].State != Idle && deviceKind(t.tcbs[i].DeviceType) == DeviceConsole {
			return &t.tcbs[i]
		}
	}
	return nil
}

// DeleteTerminal clears a TCB back to Idle, preserving its CN index, and
// reports whether it was Connected or NpuRequestDisconnect beforehand so the
// caller (SVM) can notify the network/TIP as spec'd.
func (t *Table) DeleteTerminal(cn int) (wasConnected, wasNpuDisconnect bool, ok bool) {
	tcb := t.Get(cn)
	if tcb == nil {
		return false, false, false
	}
	wasConnected = tcb.State == Connected
	wasNpuDisconnect = tcb.State == NpuRequestDisconnect
	tcb.DiscardOutputQueue(t.pool)

	idx := tcb.CN
	*tcb = TCB{CN: idx, Console: idx}
	return wasConnected, wasNpuDisconnect, true
}

// termName derives the 7-char CPPCCTT terminal name from line/cluster/
// terminal addresses.
func termName(port int, cluster, terminal byte) string {
	return fmt.Sprintf("C%02d%02d%02d", port, cluster, terminal)
}
