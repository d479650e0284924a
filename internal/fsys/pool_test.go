package fsys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetBufferSizes(t *testing.T) {
	for _, size := range []uint32{1, 1024, 1025, 4096, 16384, 65536} {
		buf := GetBuffer(size)
		require.Len(t, buf, int(size))
		PutBuffer(buf)
	}
}

func TestPutBufferRestoresCapacity(t *testing.T) {
	buf := GetBuffer(10)
	require.Equal(t, size1k, cap(buf))
	PutBuffer(buf)

	again := GetBuffer(size1k)
	require.Len(t, again, size1k)
	PutBuffer(again)
}

func TestPutBufferDropsForeignCapacity(t *testing.T) {
	PutBuffer(make([]byte, 100))
}
