// Package bip implements the demultiplexer the system overview calls BIP:
// it sits between HIP's block framer and the SVM/TIP protocol packages,
// routing a completed downline buffer to whichever of the two owns its
// block type, and forwarding SVM/TIP's upline buffers back through HIP.
package bip

import (
	"log/slog"

	"github.com/rcornwell/npu-cci/block"
	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/internal/npubuf"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

// Demux implements hip.Dispatcher, routing downline buffers to SVM or TIP
// by block type and reacting to order-word and image-recognition events.
type Demux struct {
	pool  *npubuf.Pool
	hip   *hip.HIP
	svm   *svm.Table
	tips  *tip.Table
	async *tip.Async
}

// New binds a demultiplexer to the packages it glues together. hip is
// passed separately from the three protocol tables because it both
// receives buffers from Demux (as a Dispatcher) and supplies them (as the
// svm.Upline/tip.Upline implementation every response is framed through).
func New(pool *npubuf.Pool, h *hip.HIP, s *svm.Table, t *tip.Table, a *tip.Async) *Demux {
	return &Demux{pool: pool, hip: h, svm: s, tips: t, async: a}
}

// DownlineComplete routes a finished downline buffer by its block type:
// Command blocks go to SVM (which itself forwards non-zero-CN commands to
// TIP), everything else goes straight to TIP.
func (d *Demux) DownlineComplete(buf *npubuf.Buffer) {
	defer d.pool.Release(buf)

	if buf.Len <= int(block.OffBTBSN) {
		return
	}
	switch block.BT(buf.Data[block.OffBTBSN]) {
	case block.BTHTCMD:
		d.svm.Process(buf, d.hip, d.async)
	default:
		d.tips.ProcessDownline(buf, d.hip, d.async)
	}
}

// DownlineAbort is called when a downline transfer overflows before
// end-of-message; there is no partial buffer to route.
func (d *Demux) DownlineAbort() {
	slog.Warn("bip: downline transfer aborted (overflow)")
}

// UplineSent notifies that HIP finished streaming the last upline buffer
// to the host. Nothing further is required: HIP has already released the
// buffer after streaming its last byte.
func (d *Demux) UplineSent() {}

// Order reacts to the OutNpuOrder function, logging the event. The source
// protocol's priority/service-message order codes only matter to a
// multi-queue BIP; this core already forwards command blocks to SVM as
// soon as they arrive, so there is nothing further to schedule here.
func (d *Demux) Order(code hip.OrderCode) {
	slog.Debug("bip: NPU order received", "code", code)
}

// ImageRecognized reacts to StartNpu's fingerprint detection. Only the
// macro image requires further action: it announces itself upline with
// the fixed NPU-init service message.
func (d *Demux) ImageRecognized(img hip.Image) {
	switch img {
	case hip.ImageMacro:
		d.svm.NPUInit(d.hip)
	case hip.ImageUnknown:
		slog.Warn("bip: unrecognized boot image fingerprint")
	}
}
