package heap

import (
	"testing"

	"github.com/kernellabs/prokernel/internal/kernelerr"
	"github.com/stretchr/testify/require"
)

func TestAllocRejectsZeroSize(t *testing.T) {
	h := New(4096)
	_, err := h.Alloc(0)
	require.Error(t, err)
	require.True(t, kernelerr.IsCode(err, kernelerr.CodeInvalidArgument))
}

func TestAllocRejectsOversize(t *testing.T) {
	h := New(1024)
	_, err := h.Alloc(2048)
	require.True(t, kernelerr.IsCode(err, kernelerr.CodeInvalidArgument))
}

// MaxRequest binds every allocation regardless of how much arena is
// actually free.
func TestAllocRejectsAboveMaxRequest(t *testing.T) {
	h := New(1 << 20)

	_, err := h.Alloc(MaxRequest + 1)
	require.True(t, kernelerr.IsCode(err, kernelerr.CodeInvalidArgument))

	p, err := h.Alloc(MaxRequest)
	require.NoError(t, err)
	require.True(t, h.CheckGuard(p))
}

// Alloc, write full capacity, release; re-alloc of the same size
// returns the same handle because the sole free block is reused.
func TestAllocReleaseReuse(t *testing.T) {
	h := New(4096)

	p, err := h.Alloc(100)
	require.NoError(t, err)
	require.True(t, h.CheckGuard(p))

	payload, err := h.Payload(p)
	require.NoError(t, err)
	require.Len(t, payload, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.True(t, h.CheckGuard(p))

	require.NoError(t, h.Free(p))

	q, err := h.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, p, q)
}

// Writing exactly `capacity` bytes preserves the guard;
// writing one byte past it does not.
func TestGuardDetectsOverflow(t *testing.T) {
	h := New(4096)
	p, err := h.Alloc(32)
	require.NoError(t, err)
	require.True(t, h.CheckGuard(p))

	require.NoError(t, h.PokeAt(p, 31, 0xAA))
	require.True(t, h.CheckGuard(p))

	require.NoError(t, h.PokeAt(p, 32, 0xAA))
	require.False(t, h.CheckGuard(p))
}

func TestCheckBoundsAllowsCapacityInclusive(t *testing.T) {
	h := New(4096)
	p, err := h.Alloc(16)
	require.NoError(t, err)
	require.True(t, h.CheckBounds(p, 16))
	require.False(t, h.CheckBounds(p, 17))
}

// After every release, no two adjacent blocks are both free.
func TestCoalescingLeavesNoAdjacentFreeBlocks(t *testing.T) {
	h := New(1024, WithBlockSize(16), WithGuardSize(4))

	var handles []Handle
	for i := 0; i < 4; i++ {
		p, err := h.Alloc(16)
		require.NoError(t, err)
		handles = append(handles, p)
	}

	require.NoError(t, h.Free(handles[1]))
	require.NoError(t, h.Free(handles[2]))

	adjacentFree := 0
	for b := h.head; b != nil && b.next != nil; b = b.next {
		if b.isFree && b.next.isFree {
			adjacentFree++
		}
	}
	require.Equal(t, 0, adjacentFree)

	require.NoError(t, h.Free(handles[0]))
	require.NoError(t, h.Free(handles[3]))

	adjacentFree = 0
	for b := h.head; b != nil && b.next != nil; b = b.next {
		if b.isFree && b.next.isFree {
			adjacentFree++
		}
	}
	require.Equal(t, 0, adjacentFree)
	require.Equal(t, uint64(1), h.Stats().BlockCount)
}

func TestDoubleFreeIsSilentlyIgnored(t *testing.T) {
	h := New(4096)
	p, err := h.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, h.Free(p))
	require.NoError(t, h.Free(p))
}

func TestFreeUnknownHandleIsSilentlyIgnored(t *testing.T) {
	h := New(4096)
	require.NoError(t, h.Free(Handle(999)))
}

func TestAllocExhaustsArena(t *testing.T) {
	// Each 16-byte request consumes 20 bytes (16 + GUARD_SIZE); a 64-byte
	// arena fits exactly three before the remaining 4 bytes are too small
	// for a fourth.
	h := New(64, WithBlockSize(16), WithGuardSize(4))
	for i := 0; i < 3; i++ {
		_, err := h.Alloc(16)
		require.NoError(t, err)
	}
	_, err := h.Alloc(16)
	require.True(t, kernelerr.IsCode(err, kernelerr.CodeResourceExhausted))
}

// The guard-placement bound is checked at allocation time. Correct
// bookkeeping never produces a free block whose recorded size
// overruns the arena, so this test installs a deliberately corrupted free
// block (as a bug elsewhere in the allocator might) to prove the bound
// check fires instead of writing the guard past the arena.
func TestGuardPlacementBoundIsChecked(t *testing.T) {
	h := New(20, WithBlockSize(16), WithGuardSize(8))
	h.head = &block{offset: 5, size: 24, isFree: true}

	_, err := h.Alloc(16)
	require.True(t, kernelerr.IsCode(err, kernelerr.CodeIntegrity))
}

func TestStatsTrackLiveAllocations(t *testing.T) {
	h := New(4096)
	_, err := h.Alloc(100)
	require.NoError(t, err)

	stats := h.Stats()
	require.Equal(t, uint64(1), stats.AllocationCount)
	require.Equal(t, uint64(0), stats.FreeCount)
	require.Greater(t, stats.UsedMemory, uint64(0))
}
