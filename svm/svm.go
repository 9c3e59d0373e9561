package svm

import (
	"log/slog"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/internal/npubuf"
	"github.com/rcornwell/npu-cci/tip"
)

// Service-message function codes: (PFC<<8)|SFC.
const (
	fnConfLine  = 0x0300
	fnDelLine   = 0x0301
	fnConfTerm  = 0x0302
	fnRConfTerm = 0x0303
	fnDelTerm   = 0x0304
	fnEnaLine   = 0x0800
	fnDisaLine  = 0x0801
	fnDiscLine  = 0x0802
)

// Return codes. The closed set in the protocol reuses the same numeric
// value for unrelated conditions depending on which code produced it.
const (
	rcOK                  = 0
	rcInvalidLineNumber   = 1
	rcInvalidPortNumber   = 2
	rcAlreadyConfigured   = 3
	rcNotConfigured       = 3
	rcInvalidLineType     = 4
	rcNoBuffer            = 4
	rcInvalidTerminalType = 5
	rcLineInoperative     = 6
)

// Terminal-message field offsets (ConfTerm/RConfTerm/DelTerm reuse the
// generic line-message offsets for different fields).
const (
	offPort       = block.OffP
	offTermType   = block.OffSP
	offCluster    = block.OffLT
	offTerminal   = block.OffTT
	offDeviceType = 10
	offCN         = 11
)

// Unsolicited line-status PFC/SFC.
const (
	pfcLineStatus = 6
	sfcLineStatus = 2
)

// NPU-init service message.
const (
	pfcNpuInit = 1
	sfcNpuInit = 2
	ccpVersion = 3
	ccpCycle   = 1
	ccpLevel   = 1
)

// Upline is the subset of HIP's block framer SVM hands finished buffers to.
type Upline interface {
	UplineBlock(buf *npubuf.Buffer) bool
}

// Table holds the LCB array and the collaborators SVM needs to answer
// service messages and drive terminal configuration.
type Table struct {
	lcbs *lcbs
	pool *npubuf.Pool
	pcbs PCBs
	tips *tip.Table
	net  tip.Network
	dn   byte
	sn   byte
}

// NewTable builds an SVM table bound to a TCB table, a PCB table, and the
// terminal network, stamping dn/sn on every buffer it originates.
func NewTable(pool *npubuf.Pool, pcbs PCBs, tips *tip.Table, net tip.Network, dn, sn byte) *Table {
	return &Table{lcbs: newLCBs(), pool: pool, pcbs: pcbs, tips: tips, net: net, dn: dn, sn: sn}
}

// LCB returns the line control block for a port, or nil if out of range.
func (t *Table) LCB(port int) *LCB {
	return t.lcbs.get(port)
}

// Lines returns every line not in the NotConfigured state, for the operator
// console's "show line" command.
func (t *Table) Lines() []LCB {
	var lines []LCB
	for i := range t.lcbs.table {
		if t.lcbs.table[i].ConfigState != NotConfigured {
			lines = append(lines, t.lcbs.table[i])
		}
	}
	return lines
}

// Process dispatches a downline Command block to SVM, or re-dispatches a
// buffer with a non-zero CN, whatever its length, to TIP. bp is released by
// the caller once Process returns.
func (t *Table) Process(bp *npubuf.Buffer, up Upline, async *tip.Async) {
	if bp.Len < 4 {
		return
	}
	// BIP routes every Command block here regardless of CN; only CN==0
	// is a genuine service message, so anything else is a per-TCB
	// command (e.g. the PFC=7 resume-output marker) that belongs to TIP.
	if cn := bp.Data[block.OffCN]; cn != 0 {
		t.tips.ProcessDownline(bp, up, async)
		return
	}
	if bp.Len <= int(block.OffSFC) {
		return
	}

	pfc := bp.Data[block.OffPFC]
	sfc := bp.Data[block.OffSFC]
	code := int(pfc)<<8 | int(sfc)

	switch code {
	case fnConfLine:
		t.confLine(bp, up)
	case fnDelLine:
		slog.Warn("svm: DelLine not implemented")
	case fnConfTerm, fnRConfTerm:
		t.confTerm(bp, up)
	case fnDelTerm:
		t.delTerm(bp, up)
	case fnEnaLine:
		t.enaLine(bp, up)
	case fnDisaLine:
		t.disaLine(bp, up)
	case fnDiscLine:
		t.discLine(bp, up)
	default:
		slog.Warn("svm: unrecognized function code", "pfc", pfc, "sfc", sfc)
	}
}

// portPrecondition checks the preconditions shared by every port-indexed
// code: the port is in range, within MaxLineDefs, has a PCB, and that PCB
// has a configured network binding.
func (t *Table) portPrecondition(port int) (*LCB, bool) {
	if port < 0 || port >= MaxLineDefs {
		return nil, false
	}
	if !t.pcbs.Configured(port) {
		return nil, false
	}
	return t.lcbs.get(port), true
}

// respond allocates a response buffer stamped as a header echoing pfc, with
// the success/error bit folded into sfc, and returns it ready for tail
// bytes to be appended. It returns nil if the pool has no buffer available,
// per the "response-buffer-allocation-failure drops the request" invariant.
func (t *Table) respond(pfc byte, ok bool) *npubuf.Buffer {
	buf := t.pool.Get()
	if buf == nil {
		return nil
	}
	mask := byte(block.SfcSuccess)
	if !ok {
		mask = block.SfcError
	}
	block.BuildHeader(buf.Data[:4], t.dn, t.sn, 0, block.BTHTCMD, 0)
	buf.Len = 6
	buf.Data[block.OffPFC] = pfc
	buf.Data[block.OffSFC] = mask
	return buf
}

func (t *Table) send(buf *npubuf.Buffer, up Upline) {
	if !up.UplineBlock(buf) {
		t.pool.Release(buf)
	}
}

// confLine handles function 0x0300.
func (t *Table) confLine(bp *npubuf.Buffer, up Upline) {
	if bp.Len <= block.OffTT {
		return
	}
	port := int(bp.Data[block.OffP])
	lcb, ok := t.portPrecondition(port)
	if !ok {
		return
	}

	lineType := bp.Data[block.OffLT]
	terminalType := bp.Data[block.OffTT]

	success := true
	rc := byte(rcOK)
	switch {
	case lcb.ConfigState != NotConfigured:
		success, rc = false, rcAlreadyConfigured
	case lineType != lineTypeAsync:
		success, rc = false, rcInvalidLineType
	}

	resp := t.respond(bp.Data[block.OffPFC], success)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{byte(port), 0})
	resp.AppendBytes([]byte{lineType, terminalType, rc})

	if success {
		traceLine(port, lcb.ConfigState, Configured)
		lcb.ConfigState = Configured
		lcb.LineType = lineType
		lcb.TerminalType = terminalType
		lcb.LineState = Inoperative
		t.pcbs.SetDisabled(port, true)
		t.pcbs.SetWaitForTCB(port, true)
	}
	t.send(resp, up)
}

// enaLine handles function 0x0800.
func (t *Table) enaLine(bp *npubuf.Buffer, up Upline) {
	port := int(bp.Data[block.OffP])
	lcb, ok := t.portPrecondition(port)
	if !ok {
		return
	}

	success := lcb.ConfigState == Configured && lcb.LineType == lineTypeAsync
	rc := byte(rcOK)
	if !success {
		rc = rcNotConfigured
	}

	resp := t.respond(bp.Data[block.OffPFC], success)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{byte(port), 0})
	resp.AppendBytes([]byte{rc, lcb.LineType, byte(lcb.ConfigState), 0})

	if success {
		traceLine(port, lcb.ConfigState, InoperativeWaiting)
		lcb.ConfigState = InoperativeWaiting
		lcb.LineState = NoRing
		t.pcbs.SetDisabled(port, false)
	}
	t.send(resp, up)
}

// disaLine handles function 0x0801.
func (t *Table) disaLine(bp *npubuf.Buffer, up Upline) {
	port := int(bp.Data[block.OffP])
	lcb, ok := t.portPrecondition(port)
	if !ok {
		return
	}

	success := lcb.ConfigState == InoperativeWaiting
	resp := t.respond(bp.Data[block.OffPFC], success)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{byte(port), 0})
	resp.AppendBytes([]byte{0, lcb.LineType, byte(lcb.ConfigState), byte(lcb.NumTerminals)})

	if success {
		lcb.ConfigState = Configured
		lcb.LineState = Inoperative
		t.pcbs.SetDisabled(port, true)
	}
	t.send(resp, up)
}

// discLine handles function 0x0802.
func (t *Table) discLine(bp *npubuf.Buffer, up Upline) {
	port := int(bp.Data[block.OffP])
	lcb, ok := t.portPrecondition(port)
	if !ok {
		return
	}

	if lcb.ConfigState == NotConfigured {
		return
	}

	if lcb.NumTerminals != 0 {
		resp := t.respond(bp.Data[block.OffPFC], false)
		if resp == nil {
			return
		}
		resp.Data[block.OffSFC] = block.SfcError
		resp.AppendBytes([]byte{byte(port), 0})
		resp.Append(rcLineInoperative)
		t.send(resp, up)
		return
	}

	resp := t.respond(bp.Data[block.OffPFC], true)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{byte(port), 0})
	resp.AppendBytes([]byte{lcb.LineType, byte(lcb.ConfigState), byte(lcb.NumTerminals)})

	lcb.ConfigState = InoperativeWaiting
	lcb.LineState = NoRing
	t.pcbs.SetDisabled(port, false)
	t.send(resp, up)
}

// confTerm handles functions 0x0302/0x0303.
func (t *Table) confTerm(bp *npubuf.Buffer, up Upline) {
	if bp.Len <= offCN {
		return
	}
	port := int(bp.Data[offPort])
	lcb, ok := t.portPrecondition(port)
	if !ok {
		return
	}
	if lcb.ConfigState != OperationalNoTcbs {
		t.sendTermError(bp, up, rcNotConfigured)
		return
	}

	cn := int(bp.Data[offCN])
	cluster := bp.Data[offCluster]
	terminal := bp.Data[offTerminal]
	deviceType := bp.Data[offDeviceType]
	terminalType := bp.Data[offTermType]

	_, err := t.tips.ConfigureTerminal(cn, port, cluster, terminal, deviceType, terminalType, port, t.dn)
	if err != nil {
		slog.Warn("svm: ConfTerm rejected", "error", err)
		traceTerm(cn, false)
		t.sendTermError(bp, up, rcInvalidTerminalType)
		return
	}
	traceTerm(cn, true)

	resp := t.respond(bp.Data[block.OffPFC], true)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{cluster, terminal, deviceType, byte(cn), rcOK})

	lcb.ConfigState = OperationalTcbsConfigured
	lcb.NumTerminals++
	t.pcbs.SetWaitForTCB(port, false)
	t.send(resp, up)
}

func (t *Table) sendTermError(bp *npubuf.Buffer, up Upline, rc byte) {
	resp := t.respond(bp.Data[block.OffPFC], false)
	if resp == nil {
		return
	}
	var cluster, terminal, deviceType, cn byte
	if bp.Len > offCN {
		cluster = bp.Data[offCluster]
		terminal = bp.Data[offTerminal]
		deviceType = bp.Data[offDeviceType]
		cn = bp.Data[offCN]
	}
	resp.AppendBytes([]byte{cluster, terminal, deviceType, cn, rc})
	t.send(resp, up)
}

// delTerm handles function 0x0304.
func (t *Table) delTerm(bp *npubuf.Buffer, up Upline) {
	if bp.Len <= offCN {
		return
	}
	cn := int(bp.Data[offCN])
	tcb := t.tips.Get(cn)
	if tcb == nil {
		return
	}
	port := tcb.Port
	cluster, terminal, deviceType := tcb.Cluster, tcb.Terminal, tcb.DeviceType

	if tcb.State == tip.Connected {
		t.net.Send(tcb.PCB, []byte("\r\nTERMINAL DELETED\r\n"))
	}

	t.tips.DeleteTerminal(cn)

	lcb, ok := t.portPrecondition(port)
	if ok {
		lcb.NumTerminals--
		if lcb.NumTerminals <= 0 {
			lcb.NumTerminals = 0
			lcb.ConfigState = InoperativeWaiting
			lcb.LineState = NoRing
			t.pcbs.SetWaitForTCB(port, true)
		}
	}

	resp := t.respond(bp.Data[block.OffPFC], true)
	if resp == nil {
		return
	}
	resp.AppendBytes([]byte{cluster, terminal, deviceType, byte(cn), rcOK})
	t.send(resp, up)
}

// OnConnect handles a new terminal-network connection arriving on a line
// that is InoperativeWaiting: it flips the line Operational and emits the
// unsolicited line-status template.
func (t *Table) OnConnect(port int, up Upline) {
	lcb := t.lcbs.get(port)
	if lcb == nil || lcb.ConfigState != InoperativeWaiting {
		return
	}
	lcb.ConfigState = OperationalNoTcbs
	lcb.LineState = Operational
	t.emitLineStatus(lcb, up)
}

// SendDiscRequest is invoked when the NPU itself decides to disconnect a
// terminal (e.g. the network session dropped).
func (t *Table) SendDiscRequest(cn int, up Upline) {
	tcb := t.tips.Get(cn)
	if tcb == nil {
		return
	}
	lcb := t.lcbs.get(tcb.Port)
	if tcb.State != tip.Connected || lcb == nil || lcb.ConfigState != OperationalTcbsConfigured {
		slog.Info("svm: disconnect request ignored", "cn", cn, "state", tcb.State)
		return
	}

	lcb.ConfigState = InoperativeTcbsConfigured
	lcb.LineState = Inoperative
	t.emitLineStatus(lcb, up)

	tcb.DiscardOutputQueue(t.pool)
	tcb.State = tip.NpuRequestDisconnect
}

func (t *Table) emitLineStatus(lcb *LCB, up Upline) {
	buf := t.pool.Get()
	if buf == nil {
		return
	}
	buf.AppendBytes([]byte{
		t.dn, t.sn, 0, block.BTHTCMD,
		pfcLineStatus, sfcLineStatus,
		byte(lcb.Port), 0,
		byte(lcb.LineState), lcb.LineType, byte(lcb.ConfigState), byte(lcb.NumTerminals),
	})
	t.send(buf, up)
}

// NPUInit emits the fixed NPU-init service message, sent when the macro
// image is started.
func (t *Table) NPUInit(up Upline) {
	buf := t.pool.Get()
	if buf == nil {
		return
	}
	buf.AppendBytes([]byte{
		t.dn, t.sn, 0, block.BTHTCMD,
		pfcNpuInit, sfcNpuInit,
		ccpVersion, ccpCycle, ccpLevel,
	})
	t.send(buf, up)
}
