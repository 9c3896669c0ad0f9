// Package pool provides typed wrappers around sync.Pool for the buffers and
// compressors that archive writes reuse.
package pool

import "sync"

// Pool is a typed sync.Pool. Items may be dropped at any garbage collection, so it
// only suits short lived objects.
type Pool[T any] struct {
	pool sync.Pool
}

// New creates a Pool that calls newFn when it is empty.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{pool: sync.Pool{New: func() any { return newFn() }}}
}

// Get takes an item from the pool.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *Pool[T]) Put(v T) {
	p.pool.Put(v)
}

// FixedBufferPool hands out byte slices of one fixed size.
type FixedBufferPool struct {
	size int
	pool *Pool[*[]byte]
}

// NewFixedBuffer creates a pool of size byte buffers.
func NewFixedBuffer(size int) *FixedBufferPool {
	return &FixedBufferPool{
		size: size,
		pool: New(func() *[]byte {
			b := make([]byte, size)
			return &b
		}),
	}
}

// Size returns the length of the buffers handed out by Get.
func (fp *FixedBufferPool) Size() int {
	return fp.size
}

// Get returns a buffer of exactly Size bytes.
func (fp *FixedBufferPool) Get() *[]byte {
	return fp.pool.Get()
}

// Put returns b to the pool. Buffers of a different capacity are dropped.
func (fp *FixedBufferPool) Put(b *[]byte) {
	if b == nil || cap(*b) != fp.size {
		return
	}
	*b = (*b)[:fp.size]
	fp.pool.Put(b)
}
