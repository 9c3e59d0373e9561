/*
 * npu-cci - terminal network listener
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

package netterm

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/rcornwell/npu-cci/internal/master"
)

// Listener binds one CLA port to a TCP address. Every accepted connection is
// served; the listener does not limit a port to one session at a time.
type Listener struct {
	wg         sync.WaitGroup
	listener   net.Listener
	shutdown   chan struct{}
	connection chan net.Conn
	out        chan master.Packet
	port       int // CLA port number, not the TCP address.
}

var listeners []*Listener

// Start configures a PCB for every CLA port in addrs, opens a TCP listener
// on that port's address, and begins posting connect/disconnect/receive
// events to out.
func Start(table *Table, addrs map[int]string, out chan master.Packet) error {
	for port, addr := range addrs {
		table.Configure(port)

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("netterm: listen on %s: %w", addr, err)
		}

		l := &Listener{
			listener:   ln,
			shutdown:   make(chan struct{}),
			connection: make(chan net.Conn),
			out:        out,
			port:       port,
		}
		listeners = append(listeners, l)

		slog.Info("netterm: listening", "port", port, "addr", addr)

		l.wg.Add(2)
		go l.acceptConnections()
		go l.handleConnections()
	}
	return nil
}

// Stop closes every listener and waits for its goroutines to exit.
func Stop() {
	for _, l := range listeners {
		close(l.shutdown)
		l.listener.Close()
		l.wg.Wait()
	}
	listeners = nil
}

func (l *Listener) acceptConnections() {
	defer l.wg.Done()
	for {
		select {
		case <-l.shutdown:
			return
		default:
			conn, err := l.listener.Accept()
			if err != nil {
				continue
			}
			l.connection <- conn
		}
	}
}

func (l *Listener) handleConnections() {
	defer l.wg.Done()
	for {
		select {
		case <-l.shutdown:
			return
		case conn := <-l.connection:
			go l.serve(conn)
		}
	}
}

// serve reads raw bytes off conn and posts them upline until the
// connection closes. A connection arriving while another is active on the
// same port is served as well; it is not rejected.
func (l *Listener) serve(conn net.Conn) {
	if debugMsk&debugConn != 0 {
		slog.Debug("netterm: connected", "port", l.port, "remote", conn.RemoteAddr())
	}
	l.out <- master.Packet{Msg: master.TermConnect, PortNo: l.port, Conn: conn}

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			l.out <- master.Packet{Msg: master.TermReceive, PortNo: l.port, Conn: conn, Data: data}
		}
		if err != nil {
			l.out <- master.Packet{Msg: master.TermDisconnect, PortNo: l.port, Conn: conn}
			conn.Close()
			return
		}
	}
}
