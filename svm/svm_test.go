package svm_test

import (
	"testing"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/internal/npubuf"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

type fakeNetwork struct{ sent map[int][]byte }

func (f *fakeNetwork) Send(pcb int, data []byte) { f.sent[pcb] = append(f.sent[pcb], data...) }

type fakePCBs struct {
	configured map[int]bool
	disabled   map[int]bool
	waitForTCB map[int]bool
}

func newFakePCBs(ports ...int) *fakePCBs {
	f := &fakePCBs{configured: map[int]bool{}, disabled: map[int]bool{}, waitForTCB: map[int]bool{}}
	for _, p := range ports {
		f.configured[p] = true
	}
	return f
}

func (f *fakePCBs) Configured(port int) bool       { return f.configured[port] }
func (f *fakePCBs) SetDisabled(port int, v bool)   { f.disabled[port] = v }
func (f *fakePCBs) SetWaitForTCB(port int, v bool) { f.waitForTCB[port] = v }

type fakeUpline struct{ blocks []*npubuf.Buffer }

func (f *fakeUpline) UplineBlock(buf *npubuf.Buffer) bool {
	f.blocks = append(f.blocks, buf)
	return true
}

func setup(ports ...int) (*svm.Table, *tip.Table, *fakeUpline, *fakePCBs, *npubuf.Pool) {
	pool := &npubuf.Pool{}
	net := &fakeNetwork{sent: map[int][]byte{}}
	tips := tip.NewTable(16, pool, net, 2, 0)
	pcbs := newFakePCBs(ports...)
	table := svm.NewTable(pool, pcbs, tips, net, 2, 0)
	return table, tips, &fakeUpline{}, pcbs, pool
}

func confLineBuf(pool *npubuf.Pool, port int, lineType, terminalType byte) *npubuf.Buffer {
	buf := pool.Get()
	block.BuildHeader(buf.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	buf.Len = 10
	buf.Data[block.OffPFC] = 0x03
	buf.Data[block.OffSFC] = 0x00
	buf.Data[block.OffP] = byte(port)
	buf.Data[block.OffSP] = 0
	buf.Data[block.OffLT] = lineType
	buf.Data[block.OffTT] = terminalType
	return buf
}

func TestConfLineThenEnaLine(t *testing.T) {
	table, _, up, pcbs, pool := setup(3)

	table.Process(confLineBuf(pool, 3, 6, 0x88), up, nil)
	if len(up.blocks) != 1 {
		t.Fatalf("expected 1 response, got %d", len(up.blocks))
	}
	resp := up.blocks[0]
	if resp.Data[block.OffPFC] != 0x03 || resp.Data[block.OffSFC] != block.SfcSuccess {
		t.Fatalf("ConfLine response header = %x/%x", resp.Data[block.OffPFC], resp.Data[block.OffSFC])
	}
	lcb := table.LCB(3)
	if lcb.ConfigState != svm.Configured {
		t.Fatalf("LCB.ConfigState = %v, want Configured", lcb.ConfigState)
	}
	if !pcbs.disabled[3] || !pcbs.waitForTCB[3] {
		t.Fatal("PCB should be disabled and waiting for TCB after ConfLine")
	}

	enaBuf := pool.Get()
	block.BuildHeader(enaBuf.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	enaBuf.Len = 8
	enaBuf.Data[block.OffPFC] = 0x08
	enaBuf.Data[block.OffSFC] = 0x00
	enaBuf.Data[block.OffP] = 3

	table.Process(enaBuf, up, nil)
	if len(up.blocks) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(up.blocks))
	}
	if up.blocks[1].Data[block.OffSFC] != block.SfcSuccess {
		t.Fatal("EnaLine should succeed")
	}
	if lcb.ConfigState != svm.InoperativeWaiting {
		t.Fatalf("LCB.ConfigState = %v, want InoperativeWaiting", lcb.ConfigState)
	}
	if pcbs.disabled[3] {
		t.Fatal("PCB should no longer be disabled after EnaLine")
	}
}

func TestConfLineWrongLineTypeErrors(t *testing.T) {
	table, _, up, _, pool := setup(4)

	table.Process(confLineBuf(pool, 4, 2, 0), up, nil)
	resp := up.blocks[0]
	if resp.Data[block.OffSFC] != block.SfcError {
		t.Fatal("wrong line type should error")
	}
	if table.LCB(4).ConfigState != svm.NotConfigured {
		t.Fatal("LCB should remain NotConfigured on error")
	}
}

func TestTerminalConnectAndConfTerm(t *testing.T) {
	table, tips, up, _, pool := setup(3)
	table.Process(confLineBuf(pool, 3, 6, 0x88), up, nil)

	lineEna := pool.Get()
	block.BuildHeader(lineEna.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	lineEna.Len = 8
	lineEna.Data[block.OffPFC] = 0x08
	lineEna.Data[block.OffSFC] = 0
	lineEna.Data[block.OffP] = 3
	table.Process(lineEna, up, nil)

	table.OnConnect(3, up)
	lineStatus := up.blocks[len(up.blocks)-1]
	if lineStatus.Data[4] != 6 || lineStatus.Data[5] != 2 {
		t.Fatalf("unsolicited line status PFC/SFC = %d/%d, want 6/2", lineStatus.Data[4], lineStatus.Data[5])
	}
	if table.LCB(3).ConfigState != svm.OperationalNoTcbs {
		t.Fatal("LCB should be OperationalNoTcbs after connect")
	}

	confTermBuf := pool.Get()
	block.BuildHeader(confTermBuf.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	confTermBuf.Len = 12
	confTermBuf.Data[block.OffPFC] = 0x03
	confTermBuf.Data[block.OffSFC] = 0x02
	confTermBuf.Data[6] = 3  // port
	confTermBuf.Data[7] = 0x08
	confTermBuf.Data[8] = 1 // cluster
	confTermBuf.Data[9] = 2 // terminal
	confTermBuf.Data[10] = 0x00
	confTermBuf.Data[11] = 5 // CN

	table.Process(confTermBuf, up, nil)
	resp := up.blocks[len(up.blocks)-1]
	if resp.Data[block.OffSFC] != block.SfcSuccess {
		t.Fatalf("ConfTerm response should succeed, sfc=%x", resp.Data[block.OffSFC])
	}
	tcb := tips.Get(5)
	if tcb.State != tip.Connected || tcb.Name != "C030102" {
		t.Fatalf("TCB not connected with name C030102: state=%v name=%q", tcb.State, tcb.Name)
	}
	if table.LCB(3).ConfigState != svm.OperationalTcbsConfigured {
		t.Fatal("LCB should be OperationalTcbsConfigured after ConfTerm")
	}
	if table.LCB(3).NumTerminals != 1 {
		t.Fatalf("NumTerminals = %d, want 1", table.LCB(3).NumTerminals)
	}
}

func TestSendDiscRequest(t *testing.T) {
	table, tips, up, _, pool := setup(3)
	table.Process(confLineBuf(pool, 3, 6, 0x88), up, nil)
	ena := pool.Get()
	block.BuildHeader(ena.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	ena.Len = 8
	ena.Data[block.OffPFC] = 0x08
	ena.Data[block.OffP] = 3
	table.Process(ena, up, nil)
	table.OnConnect(3, up)

	tcb, err := tips.ConfigureTerminal(5, 3, 1, 2, 0x00, 0x08, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	table.LCB(3).NumTerminals++
	table.LCB(3).ConfigState = svm.OperationalTcbsConfigured

	table.SendDiscRequest(5, up)

	if tcb.State != tip.NpuRequestDisconnect {
		t.Fatalf("TCB.State = %v, want NpuRequestDisconnect", tcb.State)
	}
	if table.LCB(3).ConfigState != svm.InoperativeTcbsConfigured {
		t.Fatal("LCB should be InoperativeTcbsConfigured after disconnect request")
	}
	last := up.blocks[len(up.blocks)-1]
	if last.Data[10] != byte(svm.InoperativeTcbsConfigured) {
		t.Fatal("unsolicited status should report InoperativeTcbsConfigured")
	}
}

func TestNPUInit(t *testing.T) {
	table, _, up, _, _ := setup()
	table.NPUInit(up)
	if len(up.blocks) != 1 {
		t.Fatal("expected one NPU-init block")
	}
	want := []byte{2, 0, 0, block.BTHTCMD, 1, 2, 3, 1, 1}
	got := up.blocks[0].Bytes()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
