// Package hip emulates the Host Interface Protocol: the function-code-driven
// register and memory engine a CDC-style coupler exposes to the host
// channel. It owns the three 12-bit registers the host polls and writes,
// the 65536-word program memory the boot image lands in, and the
// upline/downline block framer that hands buffers to and from BIP.
package hip

import (
	"log/slog"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/internal/npubuf"
)

// Function codes (octal in the source protocol, kept here as the same
// numeric values) recognized by the dispatch surface. The equipment mask is
// assumed already stripped by the caller.
const (
	FcInMemAddr0     = 0o00
	FcInMemAddr1     = 0o01
	FcInData         = 0o03
	FcInNpuStatus    = 0o04
	FcInCouplerStatus = 0o05
	FcInNpuOrder     = 0o06
	FcInProgram      = 0o07
	FcOutMemAddr0    = 0o10
	FcOutMemAddr1    = 0o11
	FcOutData        = 0o14
	FcOutProgram     = 0o15
	FcOutNpuOrder    = 0o16
	FcStartNpu       = 0o40
	FcClearNpu       = 0o200
	FcClearCoupler   = 0o400
)

// Coupler-status register bits.
const (
	StatusLoaded       uint16 = 1 << 2
	AddrLoaded         uint16 = 1 << 3
	TransferCompleted  uint16 = 1 << 5
	HostTransferTerm   uint16 = 1 << 7
	OrderLoaded        uint16 = 1 << 8
	NpuStatusRead      uint16 = 1 << 9
	Timeout            uint16 = 1 << 10
)

// NPU-status register values.
const (
	StatusIgnore          uint16 = 0o00
	StatusIdle            uint16 = 0o01
	StatusReadyOutput     uint16 = 0o04
	StatusNotReadyOutput  uint16 = 0o07
	StatusReadyForDump    uint16 = 0o10
	StatusInputAvailPru   uint16 = 0o14
	StatusInputAvailLe256 uint16 = 0o15
	StatusInputAvailGt256 uint16 = 0o16
	StatusDumpOk          uint16 = 0o10
)

// EndOfRecord is the marker bit InData sets on the final streamed byte and
// OutData expects on the final absorbed byte.
const EndOfRecord uint16 = 0o4000

// Image fingerprints: 16-bit wrapping sum of memory words 0..15.
const (
	FingerprintMicro  uint16 = 0xAC79
	FingerprintDump   uint16 = 0x4A2B
	FingerprintMacro1 uint16 = 0x8610
	FingerprintMacro2 uint16 = 0xEC98
)

// OrderCode is the top-7-bit decode of the NPU order register.
type OrderCode int

const (
	OrderOutServiceMsg   OrderCode = 1
	OrderOutPriorHigh    OrderCode = 2
	OrderOutPriorLow     OrderCode = 3
	OrderNotReadyForInput OrderCode = 5
)

// Image identifies which boot image StartNpu recognized.
type Image int

const (
	ImageUnknown Image = iota
	ImageMicro
	ImageDump
	ImageMacro
)

type hipState int

const (
	stateIdle hipState = iota
	stateUpline
	stateDownline
)

// HcpState is the host control program lifecycle state: whether the macro
// image has ever been started, is currently running, or was reset pending
// restart.
type HcpState int

const (
	HcpNotInitialized HcpState = iota
	HcpRunning
	HcpReset
)

// HeartbeatIdleTicks is the number of heartbeat ticks (each one emulated
// second) of silence before InCouplerStatus injects an Idle status write.
const HeartbeatIdleTicks = 1

// Dispatcher receives the notifications HIP emits toward BIP: downline
// buffer completion/abort, order-word events, and image recognition on
// StartNpu. The core wires this to the bip package.
type Dispatcher interface {
	DownlineComplete(buf *npubuf.Buffer)
	DownlineAbort()
	UplineSent()
	Order(code OrderCode)
	ImageRecognized(img Image)
}

// HIP is the register/memory engine and block framer. One instance exists
// per emulated NPU; it is not safe for concurrent use -- the core loop that
// owns it guarantees single-threaded access.
type HIP struct {
	pool *npubuf.Pool
	disp Dispatcher

	CouplerStatus uint16
	NpuStatus     uint16
	NpuOrder      uint16

	Memory  [65536]uint16
	MemAddr uint16

	memAddrHigh         uint8
	halfWordTransferred bool
	halfWordTemp        uint16

	state hipState
	hcp   HcpState

	buffer    *npubuf.Buffer
	bufCursor int

	idleTicks int
}

// New creates a HIP engine bound to the given buffer pool and dispatcher.
// disp may be nil if the dispatcher is constructed after HIP (it typically
// needs a *HIP reference of its own); wire it in with SetDispatcher before
// driving any function code that can emit a notification.
func New(pool *npubuf.Pool, disp Dispatcher) *HIP {
	return &HIP{pool: pool, disp: disp, hcp: HcpNotInitialized}
}

// SetDispatcher binds (or replaces) HIP's notification target.
func (h *HIP) SetDispatcher(disp Dispatcher) {
	h.disp = disp
}

// HcpState reports whether the macro image has ever been booted.
func (h *HIP) HcpState() HcpState {
	return h.hcp
}

// HasUpline reports whether HIP currently holds a buffer awaiting
// streaming to the host via InData. The channel simulator (out of this
// core's scope) uses this to know when to drive InData.
func (h *HIP) HasUpline() bool {
	return h.state == stateUpline
}

func (h *HIP) setStatus(v uint16) {
	h.NpuStatus = v
	h.CouplerStatus |= StatusLoaded
	h.idleTicks = 0
}

// Advance accounts for elapsed heartbeat ticks, used by InCouplerStatus's
// idle-heartbeat check.
func (h *HIP) Advance(ticks int) {
	h.idleTicks += ticks
}

// InCouplerStatus returns the coupler-status word, marking it read and,
// while idle with the macro image running, injecting an Idle heartbeat after
// a full heartbeat period of silence.
func (h *HIP) InCouplerStatus() uint16 {
	if h.state == stateIdle && h.hcp == HcpRunning && h.idleTicks >= HeartbeatIdleTicks {
		h.setStatus(StatusIdle)
	}
	h.CouplerStatus |= NpuStatusRead
	return h.CouplerStatus
}

// InNpuStatus returns the NPU-status word, clears StatusLoaded, and resets
// the register to Ignore.
func (h *HIP) InNpuStatus() uint16 {
	v := h.NpuStatus
	h.CouplerStatus &^= StatusLoaded
	h.NpuStatus = StatusIgnore
	return v
}

// InNpuOrder returns the latched order register.
func (h *HIP) InNpuOrder() uint16 {
	return h.NpuOrder
}

// InMemAddr0 returns the high byte of the memory-address register.
func (h *HIP) InMemAddr0() uint16 {
	return uint16(h.MemAddr >> 8)
}

// InMemAddr1 returns the low byte of the memory-address register and marks
// it loaded.
func (h *HIP) InMemAddr1() uint16 {
	h.CouplerStatus |= AddrLoaded
	return uint16(h.MemAddr & 0xFF)
}

// OutMemAddr0 captures the high byte of a two-phase memory-address write.
func (h *HIP) OutMemAddr0(b uint8) {
	h.memAddrHigh = b
}

// OutMemAddr1 completes a two-phase memory-address write and marks it loaded.
func (h *HIP) OutMemAddr1(b uint8) {
	h.MemAddr = uint16(h.memAddrHigh)<<8 | uint16(b)
	h.CouplerStatus |= AddrLoaded
}

// InProgram streams one byte of the half-word program memory at MemAddr,
// high byte first. After the low byte of a pair the address auto-increments
// and TransferCompleted is set.
func (h *HIP) InProgram() uint16 {
	word := h.Memory[h.MemAddr]
	if !h.halfWordTransferred {
		h.halfWordTransferred = true
		return word >> 8
	}
	h.halfWordTransferred = false
	h.MemAddr++
	h.CouplerStatus |= TransferCompleted
	return word & 0xFF
}

// OutProgram absorbs one byte of a half-word pair into program memory, high
// byte first. After the low byte the address auto-increments and
// TransferCompleted is set.
func (h *HIP) OutProgram(b uint8) {
	if !h.halfWordTransferred {
		h.halfWordTransferred = true
		h.halfWordTemp = uint16(b)
		return
	}
	h.halfWordTransferred = false
	h.Memory[h.MemAddr] = h.halfWordTemp<<8 | uint16(b)
	h.MemAddr++
	h.CouplerStatus |= TransferCompleted
}

// InData streams the current upline buffer one byte at a time. The final
// byte carries EndOfRecord, releases the buffer, returns HIP to Idle, and
// notifies the dispatcher the buffer has been sent.
func (h *HIP) InData() (uint16, bool) {
	if h.state != stateUpline || h.buffer == nil {
		return 0, false
	}
	b := h.buffer.Data[h.bufCursor]
	h.bufCursor++
	val := uint16(b)
	if h.bufCursor >= h.buffer.Len {
		val |= EndOfRecord
		buf := h.buffer
		h.buffer = nil
		h.bufCursor = 0
		h.state = stateIdle
		h.pool.Release(buf)
		h.disp.UplineSent()
	}
	return val, true
}

// OutData absorbs one byte into the current downline buffer, acquiring a
// fresh buffer first if HIP was Idle. A byte carrying EndOfRecord finalizes
// the buffer and hands it to the dispatcher. Overflow before end-of-message
// aborts the buffer and returns to Idle.
func (h *HIP) OutData(v uint16) bool {
	if h.state != stateDownline {
		if !h.tryDownline() {
			return false
		}
	}
	b := byte(v & 0xFF)
	if !h.buffer.Append(b) {
		h.pool.Release(h.buffer)
		h.buffer = nil
		h.state = stateIdle
		h.disp.DownlineAbort()
		return false
	}
	if v&EndOfRecord != 0 {
		buf := h.buffer
		h.buffer = nil
		h.state = stateIdle
		h.disp.DownlineComplete(buf)
		h.tryDownline()
	}
	return true
}

// OutNpuOrder latches the order register and decodes its top 7 bits as an
// order code, invoking the matching BIP notification.
func (h *HIP) OutNpuOrder(v uint16) {
	h.NpuOrder = v
	h.CouplerStatus |= OrderLoaded
	switch OrderCode(v >> 9) {
	case OrderOutServiceMsg, OrderOutPriorHigh, OrderOutPriorLow, OrderNotReadyForInput:
		traceOrder(OrderCode(v >> 9))
		h.disp.Order(OrderCode(v >> 9))
	default:
		slog.Warn("hip: unrecognized order code", "code", v>>9)
	}
}

// ClearCoupler clears all coupler-status bits except StatusLoaded.
func (h *HIP) ClearCoupler() {
	h.CouplerStatus &= StatusLoaded
}

// ClearNpu performs the full reset sequence.
func (h *HIP) ClearNpu(resetSubsystems func()) {
	if h.hcp == HcpRunning && resetSubsystems != nil {
		resetSubsystems()
		h.hcp = HcpReset
	}
	h.CouplerStatus = 0
	h.halfWordTransferred = false
	h.buffer = nil
	h.bufCursor = 0
	h.state = stateIdle
}

// StartNpu computes the boot image fingerprint and recognizes it, notifying
// the dispatcher which image was selected. Starting the macro image while
// one is already running is a fatal, logged-only error.
func (h *HIP) StartNpu() {
	var sum uint16
	for i := 0; i < 16; i++ {
		sum += h.Memory[i]
	}

	switch sum {
	case FingerprintMicro:
		h.state = stateIdle
		h.hcp = HcpRunning
		h.setStatus(StatusIdle)
		traceImage(ImageMicro)
		h.disp.ImageRecognized(ImageMicro)

	case FingerprintDump:
		h.state = stateIdle
		h.Memory[0x1FF] = 1024
		h.setStatus(StatusDumpOk)
		traceImage(ImageDump)
		h.disp.ImageRecognized(ImageDump)

	case FingerprintMacro1, FingerprintMacro2:
		switch h.hcp {
		case HcpNotInitialized, HcpReset:
			h.state = stateIdle
			h.hcp = HcpRunning
			traceImage(ImageMacro)
			h.disp.ImageRecognized(ImageMacro)
		case HcpRunning:
			slog.Error("hip: StartNpu invoked for macro image while already running")
		}

	default:
		slog.Warn("hip: StartNpu with unrecognized fingerprint", "fingerprint", sum)
		traceImage(ImageUnknown)
		h.disp.ImageRecognized(ImageUnknown)
	}
}

// DownlineBlock attempts to acquire a buffer and transition to Downline,
// writing ReadyOutput on success or NotReadyOutput if the pool is exhausted.
// It is a no-op returning the current readiness when not Idle.
func (h *HIP) DownlineBlock() bool {
	return h.tryDownline()
}

func (h *HIP) tryDownline() bool {
	if h.state == stateDownline {
		return true
	}
	if h.state != stateIdle {
		return false
	}
	buf := h.pool.Get()
	if buf == nil {
		h.setStatus(StatusNotReadyOutput)
		return false
	}
	h.buffer = buf
	h.state = stateDownline
	h.setStatus(StatusReadyOutput)
	return true
}

// UplineBlock hands a framed buffer to HIP for upline transmission. It
// computes the NPU-status value describing the buffer per spec 4.1 and
// transitions Idle to Upline. Returns false if HIP already holds a buffer.
func (h *HIP) UplineBlock(buf *npubuf.Buffer) bool {
	if h.state != stateIdle {
		return false
	}

	status := classifyUpline(buf)
	h.buffer = buf
	h.bufCursor = 0
	h.state = stateUpline
	h.setStatus(status)
	return true
}

func classifyUpline(buf *npubuf.Buffer) uint16 {
	data := buf.Bytes()

	if len(data) > block.OffDBC &&
		block.BT(data[block.OffBTBSN]) == block.BTHTMSG &&
		data[block.OffDBC]&block.DBCPRU == block.DBCPRU {
		eightBit := data[block.OffDBC]&block.DBC8Bit != 0
		bitsPerByte := 6
		if eightBit {
			bitsPerByte = 8
		}
		bits := (len(data) - (block.OffDBC + 1)) * bitsPerByte
		words := bits / 60
		if bits%60 != 0 {
			words++
		}
		prus := words / 64
		if words%64 != 0 {
			prus++
		}
		if prus < 1 {
			prus = 1
		}
		return StatusInputAvailPru | uint16(prus<<10)
	}

	if len(data) <= 256 {
		return StatusInputAvailLe256
	}
	return StatusInputAvailGt256
}
