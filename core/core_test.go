package core_test

import (
	"net"
	"testing"

	"github.com/rcornwell/npu-cci/bip"
	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/core"
	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/internal/master"
	"github.com/rcornwell/npu-cci/internal/npubuf"
	"github.com/rcornwell/npu-cci/netterm"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

// fakeConn satisfies net.Conn minimally enough for Attach's bookkeeping;
// the test never reads/writes through it directly.
func fakeConn() net.Conn {
	c1, c2 := net.Pipe()
	go c2.Close()
	return c1
}

// TestConnectConfigureAndReceiveRoundTrip drives a core through a full
// round trip: configure/enable a line, accept a terminal-network
// connection, configure a terminal on it, then push upline bytes and
// confirm they get framed. Dispatch is called directly
// (no background goroutine) since the core's single-threaded-cooperative
// design means nothing else may touch it concurrently.
func TestConnectConfigureAndReceiveRoundTrip(t *testing.T) {
	pool := &npubuf.Pool{}
	netTable := netterm.NewTable()
	netTable.Configure(3)
	tips := tip.NewTable(16, pool, netTable, 2, 0)
	svmTable := svm.NewTable(pool, netTable, tips, netTable, 2, 0)
	async := tip.NewAsync(tips)

	h := hip.New(pool, nil)
	demux := bip.New(pool, h, svmTable, tips, async)
	h.SetDispatcher(demux)

	in := make(chan master.Packet, 8)
	c := core.New(in, h, svmTable, tips, async, netTable)

	conf := pool.Get()
	block.BuildHeader(conf.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	conf.Data[block.OffPFC], conf.Data[block.OffSFC] = 0x03, 0x00
	conf.Data[block.OffP], conf.Data[block.OffSP] = 3, 0
	conf.Data[block.OffLT], conf.Data[block.OffTT] = 6, 0x88
	conf.Len = 10
	svmTable.Process(conf, h, async)
	drainUpline(h)

	ena := pool.Get()
	block.BuildHeader(ena.Data[:4], 0, 2, 0, block.BTHTCMD, 0)
	ena.Data[block.OffPFC], ena.Data[block.OffSFC] = 0x08, 0x00
	ena.Data[block.OffP] = 3
	ena.Len = 8
	svmTable.Process(ena, h, async)
	drainUpline(h)

	if svmTable.LCB(3).ConfigState != svm.InoperativeWaiting {
		t.Fatalf("ConfigState = %v, want InoperativeWaiting", svmTable.LCB(3).ConfigState)
	}

	c.Dispatch(master.Packet{Msg: master.TermConnect, PortNo: 3, Conn: fakeConn()})
	drainUpline(h)
	if svmTable.LCB(3).ConfigState != svm.OperationalNoTcbs {
		t.Fatalf("ConfigState = %v, want OperationalNoTcbs after connect", svmTable.LCB(3).ConfigState)
	}

	if _, err := tips.ConfigureTerminal(5, 3, 1, 2, 0x00, 0x08, 3, 0); err != nil {
		t.Fatal(err)
	}
	svmTable.LCB(3).ConfigState = svm.OperationalTcbsConfigured
	svmTable.LCB(3).NumTerminals = 1

	c.Dispatch(master.Packet{Msg: master.TermReceive, PortNo: 3, Data: []byte("HI\r")})
	tcb := tips.Get(5)
	if tcb.UplineBSN != 1 {
		t.Fatalf("UplineBSN = %d, want 1 after one framed message", tcb.UplineBSN)
	}
}

// drainUpline acts as the (out-of-scope) channel simulator would, reading
// whatever buffer HIP currently holds upline so the next UplineBlock call
// can succeed.
func drainUpline(h *hip.HIP) {
	if !h.HasUpline() {
		return
	}
	for {
		v, _ := h.InData()
		if v&hip.EndOfRecord != 0 {
			return
		}
	}
}
