package fsys

import "sync"

// Pooled scratch buffers for the bounded read path. The shell's file
// commands read through short-lived buffers of a handful of sizes, so
// size-bucketed pools keep those reads allocation-free.

const (
	size1k  = 1024
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

var scratchPool = struct {
	pool1k  sync.Pool
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool1k:  sync.Pool{New: func() any { b := make([]byte, size1k); return &b }},
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size,
// sliced to exactly size. Caller must call PutBuffer when done.
func GetBuffer(size uint32) []byte {
	switch {
	case size <= size1k:
		return (*scratchPool.pool1k.Get().(*[]byte))[:size]
	case size <= size4k:
		return (*scratchPool.pool4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*scratchPool.pool16k.Get().(*[]byte))[:size]
	default:
		return (*scratchPool.pool64k.Get().(*[]byte))[:size]
	}
}

// PutBuffer returns a buffer to its pool. Buffers with a non-bucket
// capacity are dropped for the GC to take.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size1k:
		scratchPool.pool1k.Put(&buf)
	case size4k:
		scratchPool.pool4k.Put(&buf)
	case size16k:
		scratchPool.pool16k.Put(&buf)
	case size64k:
		scratchPool.pool64k.Put(&buf)
	}
}
