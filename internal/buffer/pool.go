// Package buffer pools the scratch buffers used to render log lines.
package buffer

import (
	"bytes"
	"sync"
)

// DefaultCapacity fits a typical log line plus its prefix.
const DefaultCapacity = 512

// maxPooled keeps one oversized record from pinning memory in the pool.
const maxPooled = 32 * 1024

// Pool is a sync.Pool of *bytes.Buffer with a fixed initial capacity.
type Pool struct {
	pool     sync.Pool
	capacity int
}

// NewPool creates a pool with DefaultCapacity buffers.
func NewPool() *Pool {
	return NewPoolWithCapacity(DefaultCapacity)
}

// NewPoolWithCapacity creates a pool whose new buffers start with capacity
// bytes. Non-positive values fall back to DefaultCapacity.
func NewPoolWithCapacity(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{capacity: capacity}
	p.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, capacity))
	}
	return p
}

// Get returns an empty buffer. Hand it back with Put.
func (p *Pool) Get() *bytes.Buffer {
	buf, ok := p.pool.Get().(*bytes.Buffer)
	if !ok {
		return bytes.NewBuffer(make([]byte, 0, p.capacity))
	}
	buf.Reset()
	return buf
}

// Put returns buf to the pool. The caller must not use buf afterwards.
func (p *Pool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooled {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

// Capacity reports the initial capacity of new buffers.
func (p *Pool) Capacity() int {
	return p.capacity
}
