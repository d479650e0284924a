package klog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndAllPreserveOrder(t *testing.T) {
	l := New(nil, 256, 128)
	l.Info("one")
	l.Warning("two")
	l.Error("three")

	entries := l.All()
	require.Len(t, entries, 3)
	require.Equal(t, "one", entries[0].Message)
	require.Equal(t, "two", entries[1].Message)
	require.Equal(t, "three", entries[2].Message)
	require.Equal(t, LevelWarning, entries[1].Level)
}

// Log circularity after writing past capacity.
func TestCircularityAfterSaturation(t *testing.T) {
	l := New(nil, 256, 128)
	for i := 0; i < 256+10; i++ {
		l.Info(fmt.Sprintf("x%d", i))
	}

	require.Equal(t, 256, l.Count())
	all := l.All()
	require.Len(t, all, 256)
	// Entry #10 (0-indexed from the first write) is the oldest surviving.
	require.Equal(t, "x10", all[0].Message)
	require.Equal(t, "x265", all[len(all)-1].Message)
}

// Last(3) after writing x1..x266 yields exactly the final three.
func TestLastThreeAfter266Writes(t *testing.T) {
	l := New(nil, 256, 128)
	for i := 1; i <= 266; i++ {
		l.Info(fmt.Sprintf("x%d", i))
	}

	last, err := l.Last(3)
	require.NoError(t, err)
	require.Equal(t, []string{"x264", "x265", "x266"}, messages(last))
}

func TestLastExceedingCountReturnsEverything(t *testing.T) {
	l := New(nil, 256, 128)
	l.Info("a")
	l.Info("b")

	last, err := l.Last(50)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, messages(last))
}

func TestClearResetsCount(t *testing.T) {
	l := New(nil, 256, 128)
	l.Info("a")
	l.Clear()
	require.Equal(t, 0, l.Count())
	require.Empty(t, l.All())
}

func TestMessageTruncation(t *testing.T) {
	l := New(nil, 4, 5)
	l.Info("abcdefgh")
	require.Equal(t, "abcd", l.All()[0].Message)
}

func messages(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
