/*
 * npu-cci - core emulation loop
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package core runs the single cooperative thread the whole emulator
// executes on: it drains the master-packet queue that serializes
// terminal-network and heartbeat events onto the core, and advances HIP's
// idle clock between packets. No HIP/SVM/TIP operation is ever preempted.
package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/npu-cci/hip"
	"github.com/rcornwell/npu-cci/internal/clock"
	"github.com/rcornwell/npu-cci/internal/master"
	"github.com/rcornwell/npu-cci/netterm"
	"github.com/rcornwell/npu-cci/svm"
	"github.com/rcornwell/npu-cci/tip"
)

// Core owns the cooperative loop. Exactly one exists per emulated NPU.
type Core struct {
	wg      sync.WaitGroup
	done    chan struct{}
	in      chan master.Packet
	running bool

	hip   *hip.HIP
	svm   *svm.Table
	tips  *tip.Table
	async *tip.Async
	net   *netterm.Table
	clk   *clock.Queue
}

// New builds a core bound to the protocol tables a prior construction step
// (typically main.go) has already wired together through bip.
func New(in chan master.Packet, h *hip.HIP, s *svm.Table, t *tip.Table, a *tip.Async, net *netterm.Table) *Core {
	return &Core{
		in:    in,
		done:  make(chan struct{}),
		hip:   h,
		svm:   s,
		tips:  t,
		async: a,
		net:   net,
		clk:   &clock.Queue{},
	}
}

// Start runs the cooperative loop until Stop is called. It is meant to be
// invoked as `go core.Start()`.
func (c *Core) Start() {
	c.wg.Add(1)
	defer c.wg.Done()

	for {
		if c.running {
			c.hip.Advance(1)
		} else if c.clk.AnyEvent() {
			c.clk.Advance(1)
		}

		select {
		case <-c.done:
			slog.Info("core: shutdown")
			return
		case packet := <-c.in:
			c.Dispatch(packet)
		default:
		}
	}
}

// Stop signals the loop to exit and waits (with a timeout, matching the
// teacher's shutdown idiom) for it to actually do so.
func (c *Core) Stop() {
	close(c.done)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("core: timed out waiting for shutdown")
	}
}

// Dispatch handles one event off the master queue. This is the only place
// terminal-network and heartbeat events cross onto the core thread; the
// loop in Start calls it for every packet it drains. Exported so tests can
// drive the core deterministically without a background goroutine.
func (c *Core) Dispatch(packet master.Packet) {
	switch packet.Msg {
	case master.TermConnect:
		c.net.Attach(packet.PortNo, packet.Conn)
		c.svm.OnConnect(packet.PortNo, c.hip)

	case master.TermDisconnect:
		c.net.Detach(packet.PortNo)
		if cn := c.findConnectedCN(packet.PortNo); cn >= 0 {
			c.svm.SendDiscRequest(cn, c.hip)
		}

	case master.TermReceive:
		if cn := c.findConnectedCN(packet.PortNo); cn >= 0 {
			c.async.ProcessUplineNormal(cn, packet.Data, c.hip)
		}

	case master.HeartbeatTick:
		c.hip.Advance(1)

	case master.Start:
		c.running = true

	case master.Stop:
		c.running = false
	}
}

// findConnectedCN locates a Connected TCB bound to a CLA port; TIP keeps
// no port→CN index, so this is a linear scan over the (small) fixed-size
// TCB table.
func (c *Core) findConnectedCN(port int) int {
	for cn := 0; ; cn++ {
		tcb := c.tips.Get(cn)
		if tcb == nil {
			return -1
		}
		if tcb.Port == port && tcb.State == tip.Connected {
			return cn
		}
	}
}
