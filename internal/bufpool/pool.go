// Package bufpool hands out fixed-size byte buffers for hashing and copying.
package bufpool

import "sync"

// Pool provides a pool of byte buffers of a fixed size.
type Pool struct {
	pool    sync.Pool
	bufSize int
}

// New creates a pool that returns buffers of exactly bufSize bytes.
func New(bufSize int) *Pool {
	if bufSize <= 0 {
		panic("bufpool: bufSize must be positive")
	}
	p := &Pool{bufSize: bufSize}
	p.pool.New = func() interface{} {
		b := make([]byte, bufSize)
		return &b
	}
	return p
}

// Get returns a buffer of BufSize bytes.
func (p *Pool) Get() []byte {
	b := *(p.pool.Get().(*[]byte))
	if cap(b) < p.bufSize {
		return make([]byte, p.bufSize)
	}
	return b[:p.bufSize]
}

// Put returns buf to the pool. Buffers smaller than BufSize are dropped.
func (p *Pool) Put(buf []byte) {
	if cap(buf) < p.bufSize {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}

// BufSize returns the size of buffers in this pool.
func (p *Pool) BufSize() int {
	return p.bufSize
}
