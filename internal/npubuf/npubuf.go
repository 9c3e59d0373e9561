// Package npubuf implements the buffer pool that HIP, SVM and TIP borrow
// framed message buffers from. It stands in for the "Buffer pool (external)"
// component of the system overview: allocation, sizing and release policy
// live here so the three protocol packages only ever see a borrowed handle.
package npubuf

import "sync"

// MaxBuffer is the largest framed block the core will build or accept.
// Downline data exceeding this before end-of-message triggers HIP's
// overflow/abort path.
const MaxBuffer = 4000

// Buffer is a fixed-capacity byte container with a used-length field. It is
// a move-only handle by convention: callers pass *Buffer around and must
// call Release exactly once on every exit path, including error paths.
type Buffer struct {
	Data [MaxBuffer]byte
	Len  int
}

// Bytes returns the buffer's used prefix.
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.Len]
}

// Reset clears the used length without touching backing storage.
func (b *Buffer) Reset() {
	b.Len = 0
}

// Append adds a single byte, reporting false if it would overflow MaxBuffer.
func (b *Buffer) Append(v byte) bool {
	if b.Len >= MaxBuffer {
		return false
	}
	b.Data[b.Len] = v
	b.Len++
	return true
}

// AppendBytes adds a byte slice, reporting false (and leaving the buffer
// untouched) if it would overflow MaxBuffer.
func (b *Buffer) AppendBytes(v []byte) bool {
	if b.Len+len(v) > MaxBuffer {
		return false
	}
	copy(b.Data[b.Len:], v)
	b.Len += len(v)
	return true
}

// Pool is a shared pool of Buffer values. The zero Pool is unbounded and
// ready to use; set Cap to simulate the fixed-size pool the host protocol
// expects buffer exhaustion from (HIP's NotReadyOutput, SVM's dropped
// response on allocation failure).
type Pool struct {
	sp  sync.Pool
	mu  sync.Mutex
	Cap int // 0 means unbounded.
	out int
}

// Get borrows a zero-length buffer from the pool, or returns nil if Cap is
// set and every buffer is already checked out.
func (p *Pool) Get() *Buffer {
	if p.Cap > 0 {
		p.mu.Lock()
		if p.out >= p.Cap {
			p.mu.Unlock()
			return nil
		}
		p.out++
		p.mu.Unlock()
	}
	if v := p.sp.Get(); v != nil {
		buf := v.(*Buffer)
		buf.Reset()
		return buf
	}
	return &Buffer{}
}

// Release returns a buffer to the pool. Passing nil is a no-op, so release
// sites that may or may not hold a buffer can call it unconditionally.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	if p.Cap > 0 {
		p.mu.Lock()
		p.out--
		p.mu.Unlock()
	}
	p.sp.Put(b)
}
