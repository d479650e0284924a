package prokernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := NewPIDError("process.Create", 3, CodeResourceExhausted, "process table full")
	require.Contains(t, err.Error(), "process.Create")
	require.Contains(t, err.Error(), "pid=3")
	require.Contains(t, err.Error(), "process table full")
}

func TestErrorIsBySentinel(t *testing.T) {
	err := NewFDError("fs.Read", 4, CodeNotFound, "no such descriptor")
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, ErrIntegrity))
}

func TestWrapErrorPreservesCode(t *testing.T) {
	inner := NewError("heap.Alloc", CodeIntegrity, "guard corrupted")
	wrapped := WrapError("fs.Write", CodeResourceExhausted, inner)
	require.True(t, errors.Is(wrapped, ErrIntegrity))
	require.ErrorIs(t, wrapped, inner)
}

func TestWrapErrorNil(t *testing.T) {
	require.Nil(t, WrapError("op", CodeNotFound, nil))
}

func TestIsCode(t *testing.T) {
	err := NewError("ipc.Send", CodeResourceExhausted, "mailbox full")
	require.True(t, IsCode(err, CodeResourceExhausted))
	require.False(t, IsCode(err, CodeNotFound))
	require.False(t, IsCode(errors.New("plain error"), CodeNotFound))
}
