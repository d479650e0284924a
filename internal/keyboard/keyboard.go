// Package keyboard implements the kernel's keyboard collaborator: a
// line accumulator that reads the input source byte-by-byte, handles
// backspace editing itself, and delivers completed NUL-free lines to
// the shell. When the input is a real terminal the caller puts it into
// raw mode first (see EnableRaw), so canonical-mode line editing in the
// tty driver never hides keystrokes from the accumulator.
package keyboard

import (
	"context"
	"io"
	"sync/atomic"
)

const maxLine = 256

// Keyboard accumulates keystrokes into completed lines. The reader
// goroutine is the only writer of the accumulator; the shell polls
// ReadLine from mainline context, and the ready flag is the one piece
// of state shared between the two.
type Keyboard struct {
	in         io.Reader
	echo       func(byte)
	lines      chan string
	inputReady atomic.Bool
	buf        []byte
}

// New creates a Keyboard reading from in. echo, if non-nil, receives
// every byte the accumulator consumes so the console can reflect typing;
// backspace is echoed as 0x08 only when there was a byte to erase.
func New(in io.Reader, echo func(byte)) *Keyboard {
	return &Keyboard{
		in:    in,
		echo:  echo,
		lines: make(chan string, 8),
		buf:   make([]byte, 0, maxLine),
	}
}

// Run reads input until ctx is canceled or the source is exhausted.
// Meant to run in its own goroutine, started by the caller that owns the
// input source (cmd/prokernel's main).
func (k *Keyboard) Run(ctx context.Context) {
	one := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := k.in.Read(one)
		if n == 1 {
			k.consume(one[0])
		}
		if err != nil {
			return
		}
	}
}

func (k *Keyboard) consume(ch byte) {
	switch ch {
	case '\n', '\r':
		if k.echo != nil {
			k.echo('\n')
		}
		line := string(k.buf)
		k.buf = k.buf[:0]
		select {
		case k.lines <- line:
			k.inputReady.Store(true)
		default:
			// shell is far behind; drop the line rather than block
		}
	case 0x08, 0x7f:
		if len(k.buf) > 0 {
			k.buf = k.buf[:len(k.buf)-1]
			if k.echo != nil {
				k.echo(0x08)
			}
		}
	default:
		if ch >= 0x20 && len(k.buf) < maxLine-1 {
			k.buf = append(k.buf, ch)
			if k.echo != nil {
				k.echo(ch)
			}
		}
	}
}

// ReadLine returns the next completed line without blocking. The second
// return is false when no line is ready.
func (k *Keyboard) ReadLine() (string, bool) {
	select {
	case line := <-k.lines:
		if len(k.lines) == 0 {
			k.inputReady.Store(false)
		}
		return line, true
	default:
		return "", false
	}
}

// Lines exposes the completed-line channel for callers that want to
// select on input alongside other events.
func (k *Keyboard) Lines() <-chan string {
	return k.lines
}

// InputReady reports whether at least one completed line is waiting.
func (k *Keyboard) InputReady() bool {
	return k.inputReady.Load()
}
