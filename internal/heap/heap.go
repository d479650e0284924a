// Package heap implements the kernel's bump/free-list allocator: a
// first-fit allocator over a fixed-size arena, with block splitting,
// bidirectional coalescing on free, and guard-byte overflow detection.
// Block headers live in an out-of-band struct list addressed by logical
// offset into the arena rather than in-band in the pool itself;
// idiomatic Go has no use for pointer arithmetic into a byte slice, so
// headers keep their own side table instead of stealing pool bytes.
package heap

import (
	"encoding/binary"

	"github.com/kernellabs/prokernel/internal/constants"
	"github.com/kernellabs/prokernel/internal/kernelerr"
)

// MaxRequest is the hard upper bound on a single allocation, fixed by
// the kernel ABI independently of the arena size. Higher layers never
// hand out more than a file's worth of bytes in one block.
const MaxRequest = constants.MaxFileSize

// Handle identifies a live allocation. It is the byte offset of the
// allocation's payload within the arena.
type Handle uint32

// block is a free-list node. Blocks form a singly linked, address-ordered
// list starting at Heap.head. size is the number of arena bytes the block
// owns (payload + guard, for an allocated block; total free span, for a
// free block). capacity is only meaningful while allocated: the number of
// payload bytes the caller asked for, not rounded; the guard starts there.
type block struct {
	offset   uint32
	size     uint32
	capacity uint32
	isFree   bool
	next     *block
}

// Stats is a point-in-time snapshot of allocator counters.
type Stats struct {
	TotalMemory     uint64
	UsedMemory      uint64
	FreeMemory      uint64
	BlockCount      uint64
	AllocationCount uint64
	FreeCount       uint64
}

// Heap is a first-fit allocator over a fixed-size byte arena.
type Heap struct {
	arena     []byte
	blockSize uint32
	guardSize uint32
	guard     []byte

	head    *block
	byHand  map[Handle]*block
	stats   Stats
}

// Option configures a Heap at construction time. The defaults are the
// kernel ABI values (16-byte granularity, 4 guard bytes, 0xDEADBEEF).
type Option func(*config)

type config struct {
	blockSize uint32
	guardSize uint32
	sentinel  uint32
}

// WithBlockSize overrides the minimum allocation granularity. Exposed
// for tests that need to force the guard-placement bound check.
func WithBlockSize(n uint32) Option {
	return func(c *config) { c.blockSize = n }
}

// WithGuardSize overrides the guard region size in bytes.
func WithGuardSize(n uint32) Option {
	return func(c *config) { c.guardSize = n }
}

// WithSentinel overrides the 32-bit guard sentinel pattern.
func WithSentinel(n uint32) Option {
	return func(c *config) { c.sentinel = n }
}

// New creates a Heap backed by an arena of size bytes, entirely free.
func New(size uint32, opts ...Option) *Heap {
	c := config{blockSize: 16, guardSize: 4, sentinel: 0xDEADBEEF}
	for _, opt := range opts {
		opt(&c)
	}

	h := &Heap{
		arena:     make([]byte, size),
		blockSize: c.blockSize,
		guardSize: c.guardSize,
		byHand:    make(map[Handle]*block),
	}

	var pattern [4]byte
	binary.BigEndian.PutUint32(pattern[:], c.sentinel)
	h.guard = make([]byte, c.guardSize)
	for i := range h.guard {
		h.guard[i] = pattern[i%4]
	}

	h.head = &block{offset: 0, size: size, isFree: true}
	h.stats = Stats{
		TotalMemory: uint64(size),
		FreeMemory:  uint64(size),
		BlockCount:  1,
	}
	return h
}

// Size returns the arena's total byte capacity.
func (h *Heap) Size() uint32 {
	return uint32(len(h.arena))
}

func (h *Heap) findFree(total uint32) *block {
	for b := h.head; b != nil; b = b.next {
		if b.isFree && b.size >= total {
			return b
		}
	}
	return nil
}

// Alloc reserves size bytes and returns a handle to the payload. Requests
// smaller than the block granularity are rounded up; requests of zero,
// above MaxRequest, or above the arena's own capacity return
// CodeInvalidArgument. An arena with no free block large enough returns
// CodeResourceExhausted.
func (h *Heap) Alloc(size uint32) (Handle, error) {
	if size == 0 {
		return 0, kernelerr.New("heap.Alloc", kernelerr.CodeInvalidArgument, "size must be > 0")
	}
	if size > MaxRequest {
		return 0, kernelerr.New("heap.Alloc", kernelerr.CodeInvalidArgument, "size exceeds maximum allocation")
	}
	if size > h.Size() {
		return 0, kernelerr.New("heap.Alloc", kernelerr.CodeInvalidArgument, "size exceeds arena capacity")
	}

	// Round the block's payload region up to the allocation granularity;
	// capacity stays at the requested size so the guard sits immediately
	// after the caller's usable bytes.
	rounded := (size + h.blockSize - 1) / h.blockSize * h.blockSize
	total := rounded + h.guardSize

	b := h.findFree(total)
	if b == nil {
		return 0, kernelerr.New("heap.Alloc", kernelerr.CodeResourceExhausted, "no free block large enough")
	}

	if guardEnd := uint64(b.offset) + uint64(size) + uint64(h.guardSize); guardEnd > uint64(len(h.arena)) {
		return 0, kernelerr.New("heap.Alloc", kernelerr.CodeIntegrity, "guard placement exceeds arena bounds")
	}

	if b.size > total {
		remainder := &block{
			offset: b.offset + total,
			size:   b.size - total,
			isFree: true,
			next:   b.next,
		}
		b.next = remainder
		b.size = total
		h.stats.BlockCount++
	}

	b.isFree = false
	b.capacity = size

	payloadOff := b.offset
	guardOff := payloadOff + size
	copy(h.arena[guardOff:guardOff+h.guardSize], h.guard[:])

	handle := Handle(payloadOff)
	h.byHand[handle] = b

	h.stats.UsedMemory += uint64(b.size)
	if h.stats.FreeMemory >= uint64(b.size) {
		h.stats.FreeMemory -= uint64(b.size)
	} else {
		h.stats.FreeMemory = 0
	}
	h.stats.AllocationCount++

	return handle, nil
}

// Free releases the allocation identified by handle and coalesces it
// with adjacent free neighbors. Double-free and unknown handles are
// silently ignored rather than reported as errors; release never traps.
func (h *Heap) Free(handle Handle) error {
	b, ok := h.byHand[handle]
	if !ok || b.isFree {
		return nil
	}

	b.isFree = true
	delete(h.byHand, handle)

	h.stats.UsedMemory -= uint64(b.size)
	h.stats.FreeMemory += uint64(b.size)
	h.stats.FreeCount++

	if b.next != nil && b.next.isFree {
		b.size += b.next.size
		b.next = b.next.next
		h.stats.BlockCount--
	}

	if h.head != b {
		prev := h.head
		for prev != nil && prev.next != b {
			prev = prev.next
		}
		if prev != nil && prev.isFree {
			prev.size += b.size
			prev.next = b.next
			h.stats.BlockCount--
		}
	}

	return nil
}

// Payload returns the live allocation's bytes, sliced so append cannot
// grow past the allocation into its guard region.
func (h *Heap) Payload(handle Handle) ([]byte, error) {
	b, ok := h.byHand[handle]
	if !ok || b.isFree {
		return nil, kernelerr.New("heap.Payload", kernelerr.CodeNotFound, "unknown allocation handle")
	}
	start := b.offset
	end := start + b.capacity
	return h.arena[start:end:end], nil
}

// PokeAt writes a single byte at the given offset from the start of the
// allocation's payload, without bounds checking against capacity. It
// exists to let tests deliberately corrupt guard bytes or write past an
// allocation's declared capacity, which Payload's sliced return otherwise
// prevents.
func (h *Heap) PokeAt(handle Handle, offset uint32, v byte) error {
	b, ok := h.byHand[handle]
	if !ok {
		return kernelerr.New("heap.PokeAt", kernelerr.CodeNotFound, "unknown allocation handle")
	}
	at := uint64(b.offset) + uint64(offset)
	if at >= uint64(len(h.arena)) {
		return kernelerr.New("heap.PokeAt", kernelerr.CodeIntegrity, "offset outside arena")
	}
	h.arena[at] = v
	return nil
}

// Valid reports whether handle names a live allocation.
func (h *Heap) Valid(handle Handle) bool {
	b, ok := h.byHand[handle]
	return ok && !b.isFree
}

// CheckBounds reports whether offset is a valid access into the
// allocation's declared capacity. An offset equal to capacity is still
// accepted (it addresses the guard's first byte); anything beyond is not.
func (h *Heap) CheckBounds(handle Handle, offset uint32) bool {
	b, ok := h.byHand[handle]
	if !ok || b.isFree {
		return false
	}
	return offset <= b.capacity
}

// CheckGuard reports whether the allocation's trailing guard bytes still
// match the sentinel pattern. A mismatch means something wrote past the
// allocation's declared capacity.
func (h *Heap) CheckGuard(handle Handle) bool {
	b, ok := h.byHand[handle]
	if !ok || b.isFree {
		return false
	}
	guardOff := b.offset + b.capacity
	if uint64(guardOff)+uint64(h.guardSize) > uint64(len(h.arena)) {
		return false
	}
	for i := uint32(0); i < h.guardSize; i++ {
		if h.arena[guardOff+i] != h.guard[i] {
			return false
		}
	}
	return true
}

// Stats returns a point-in-time snapshot of allocator statistics.
func (h *Heap) Stats() Stats {
	return h.stats
}
