package hip_test

import (
	"testing"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/internal/npubuf"
)

// fakeDispatcher stands in for BIP so HIP can be tested without the rest
// of the stack.
type fakeDispatcher struct {
	downlineComplete *npubuf.Buffer
	downlineAborted  bool
	uplineSent       bool
	orders           []hip.OrderCode
	images           []hip.Image
}

func (f *fakeDispatcher) DownlineComplete(buf *npubuf.Buffer) { f.downlineComplete = buf }
func (f *fakeDispatcher) DownlineAbort()                      { f.downlineAborted = true }
func (f *fakeDispatcher) UplineSent()                         { f.uplineSent = true }
func (f *fakeDispatcher) Order(code hip.OrderCode)             { f.orders = append(f.orders, code) }
func (f *fakeDispatcher) ImageRecognized(img hip.Image)        { f.images = append(f.images, img) }

func newHIP() (*hip.HIP, *fakeDispatcher, *npubuf.Pool) {
	pool := &npubuf.Pool{}
	disp := &fakeDispatcher{}
	return hip.New(pool, disp), disp, pool
}

func TestMemAddrRoundTrip(t *testing.T) {
	h, _, _ := newHIP()

	h.OutMemAddr0(0x12)
	h.OutMemAddr1(0x34)

	if h.CouplerStatus&hip.AddrLoaded == 0 {
		t.Fatal("AddrLoaded not set after OutMemAddr1")
	}
	if got := h.InMemAddr0(); got != 0x12 {
		t.Fatalf("InMemAddr0 = %#x, want 0x12", got)
	}
	if got := h.InMemAddr1(); got != 0x34 {
		t.Fatalf("InMemAddr1 = %#x, want 0x34", got)
	}
}

func TestProgramRoundTrip(t *testing.T) {
	h, _, _ := newHIP()

	h.OutMemAddr0(0)
	h.OutMemAddr1(10)

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	for _, b := range want {
		h.OutProgram(b)
	}
	if h.MemAddr != 13 {
		t.Fatalf("MemAddr after writing 3 words = %d, want 13", h.MemAddr)
	}

	h.OutMemAddr0(0)
	h.OutMemAddr1(10)
	var got []byte
	for range want {
		got = append(got, uint8(h.InProgram()))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
	if h.MemAddr != 13 {
		t.Fatalf("MemAddr after reading back = %d, want 13", h.MemAddr)
	}
}

func TestClearCouplerPreservesStatusLoaded(t *testing.T) {
	h, _, _ := newHIP()
	h.CouplerStatus = hip.StatusLoaded | hip.AddrLoaded | hip.OrderLoaded
	h.ClearCoupler()
	if h.CouplerStatus != hip.StatusLoaded {
		t.Fatalf("CouplerStatus after ClearCoupler = %#x, want only StatusLoaded", h.CouplerStatus)
	}
}

func TestStartNpuMacroBootEmitsNoDirectStatus(t *testing.T) {
	h, disp, _ := newHIP()
	h.Memory[0] = 0x8610 // fingerprint sums memory[0..15]; put it all in word 0.
	h.StartNpu()

	if len(disp.images) != 1 || disp.images[0] != hip.ImageMacro {
		t.Fatalf("images = %v, want [Macro]", disp.images)
	}
	if h.HcpState() != hip.HcpRunning {
		t.Fatalf("HcpState = %v, want Running", h.HcpState())
	}
	if h.NpuStatus != hip.StatusIgnore || h.CouplerStatus&hip.StatusLoaded != 0 {
		t.Fatalf("NpuStatus = %#o, CouplerStatus = %#o; want no status written", h.NpuStatus, h.CouplerStatus)
	}
}

func TestDownlineOverflowAborts(t *testing.T) {
	h, disp, _ := newHIP()
	h.DownlineBlock()
	for i := 0; i < npubuf.MaxBuffer; i++ {
		if !h.OutData(uint16(i & 0xFF)) {
			t.Fatalf("unexpected abort at byte %d", i)
		}
	}
	// One more byte overflows before end-of-message.
	if h.OutData(0x41) {
		t.Fatal("expected overflow to report failure")
	}
	if !disp.downlineAborted {
		t.Fatal("expected DownlineAbort notification")
	}
}

func TestDownlineRoundTripThroughEndOfMessage(t *testing.T) {
	h, disp, _ := newHIP()
	h.DownlineBlock()
	h.OutData('H')
	h.OutData('I')
	h.OutData(uint16('!') | hip.EndOfRecord)

	if disp.downlineComplete == nil {
		t.Fatal("expected DownlineComplete notification")
	}
	if got := string(disp.downlineComplete.Bytes()); got != "HI!" {
		t.Fatalf("downline buffer = %q, want %q", got, "HI!")
	}
}

func TestUplineBlockStreamsAndSetsEndOfRecord(t *testing.T) {
	h, disp, pool := newHIP()
	buf := pool.Get()
	block.BuildHeader(buf.Data[:4], 2, 0, 0, block.BTHTMSG, 0)
	buf.Len = 4
	buf.AppendBytes([]byte{block.DBCNonTransparent, 'h', 'i'})

	if !h.UplineBlock(buf) {
		t.Fatal("UplineBlock rejected while Idle")
	}
	if h.NpuStatus != hip.StatusInputAvailLe256 {
		t.Fatalf("NpuStatus = %#o, want InputAvailLe256", h.NpuStatus)
	}

	var got []byte
	var sawEOR bool
	for {
		v, ok := h.InData()
		if !ok {
			t.Fatal("InData returned not-ok before end of record")
		}
		got = append(got, byte(v))
		if v&hip.EndOfRecord != 0 {
			sawEOR = true
			break
		}
	}
	want := []byte{2, 0, 0, block.BTHTMSG, block.DBCNonTransparent, 'h', 'i'}
	if len(got) != len(want) {
		t.Fatalf("streamed %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
	if !sawEOR {
		t.Fatal("expected EndOfRecord marker on final byte")
	}
	if !disp.uplineSent {
		t.Fatal("expected UplineSent notification")
	}
}
