// Package klog implements the kernel's ring-buffered log: a fixed
// capacity of timestamped, bounded-length text records. This is the
// in-kernel facility the shell's dmesg command reads, distinct from
// internal/diag's operator-facing logger: klog entries are kernel
// state, diag output is process diagnostics on stderr.
package klog

import "github.com/kernellabs/prokernel/internal/kernelerr"

// Level is a log entry's severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelDebug
)

// String renders a level as the shell's dmesg output prints it.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Entry is a single ring-buffer record.
type Entry struct {
	Timestamp uint32
	Level     Level
	Message   string
}

// TickSource supplies the monotonic tick counter used to timestamp
// entries. internal/clock.Clock satisfies this without klog needing to
// import it directly.
type TickSource interface {
	Ticks() uint32
}

type noTicks struct{}

func (noTicks) Ticks() uint32 { return 0 }

// Log is a fixed-capacity circular buffer of log entries. The oldest
// entry is overwritten once the buffer saturates; logging never blocks
// and never grows.
type Log struct {
	ticks      TickSource
	maxEntries int
	maxMessage int

	entries []Entry
	cursor  int // next write index
	count   int // entries written, saturating at maxEntries
}

// New creates a Log with room for maxEntries records, each message
// truncated to maxMessage bytes.
func New(ticks TickSource, maxEntries, maxMessage int) *Log {
	if ticks == nil {
		ticks = noTicks{}
	}
	return &Log{
		ticks:      ticks,
		maxEntries: maxEntries,
		maxMessage: maxMessage,
		entries:    make([]Entry, maxEntries),
	}
}

func (l *Log) truncate(message string) string {
	if len(message) > l.maxMessage-1 {
		return message[:l.maxMessage-1]
	}
	return message
}

// Write appends a record at the given level, overwriting the oldest
// entry once the ring is full.
func (l *Log) Write(level Level, message string) {
	l.entries[l.cursor] = Entry{
		Timestamp: l.ticks.Ticks(),
		Level:     level,
		Message:   l.truncate(message),
	}
	l.cursor = (l.cursor + 1) % l.maxEntries
	if l.count < l.maxEntries {
		l.count++
	}
}

// Info logs at LevelInfo.
func (l *Log) Info(message string) { l.Write(LevelInfo, message) }

// Warning logs at LevelWarning.
func (l *Log) Warning(message string) { l.Write(LevelWarning, message) }

// Error logs at LevelError.
func (l *Log) Error(message string) { l.Write(LevelError, message) }

// Debug logs at LevelDebug.
func (l *Log) Debug(message string) { l.Write(LevelDebug, message) }

// chronological returns entries oldest-first: starting at index 0 while
// the ring hasn't saturated, otherwise starting at the write cursor,
// which points at the oldest surviving entry.
func (l *Log) chronological() []Entry {
	out := make([]Entry, 0, l.count)
	start := 0
	if l.count == l.maxEntries {
		start = l.cursor
	}
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(start+i)%l.maxEntries])
	}
	return out
}

// All returns every live entry, oldest first.
func (l *Log) All() []Entry {
	return l.chronological()
}

// Last returns the most recent k entries, oldest first within that
// window. Requesting more than Count() returns every entry.
func (l *Log) Last(k int) ([]Entry, error) {
	if k < 0 {
		return nil, kernelerr.New("klog.Last", kernelerr.CodeInvalidArgument, "k must be >= 0")
	}
	all := l.chronological()
	if k > len(all) {
		k = len(all)
	}
	return all[len(all)-k:], nil
}

// Clear empties the ring.
func (l *Log) Clear() {
	l.cursor = 0
	l.count = 0
	l.entries = make([]Entry, l.maxEntries)
}

// Count returns the number of live entries (<= maxEntries).
func (l *Log) Count() int {
	return l.count
}
