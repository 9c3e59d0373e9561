// Package heartbeat drives the emulated one-second idle heartbeat: each
// tick advances HIP's idle counter, which InCouplerStatus uses to decide
// when to write an Idle NPU status after a period of silence. One emulated
// second is approximated with a wall-clock
// ticker instead of being derived from a host instruction-cycle count: this
// core has no CPU of its own to count cycles against.
package heartbeat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/npu-cci/internal/master"
)

const tick = time.Second

type Heartbeat struct {
	wg      sync.WaitGroup
	running bool
	out     chan master.Packet
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
}

// New creates a heartbeat source posting HeartbeatTick packets onto out.
func New(out chan master.Packet) *Heartbeat {
	h := &Heartbeat{
		out:    out,
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Start enables tick delivery.
func (h *Heartbeat) Start() {
	h.enable <- true
}

// Stop disables tick delivery without shutting the goroutine down.
func (h *Heartbeat) Stop() {
	h.enable <- false
}

// Shutdown terminates the heartbeat goroutine.
func (h *Heartbeat) Shutdown() {
	close(h.done)
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for heartbeat to finish")
	}
}

func (h *Heartbeat) run() {
	defer h.wg.Done()
	h.ticker = time.NewTicker(tick)
	defer h.ticker.Stop()

	for {
		select {
		case <-h.ticker.C:
			if h.running {
				h.out <- master.Packet{Msg: master.HeartbeatTick}
			}
		case h.running = <-h.enable:
			if h.running {
				h.ticker.Reset(tick)
			}
		case <-h.done:
			return
		}
	}
}
