// Package clock provides the kernel's monotonic tick counter, the
// software stand-in for a ~100 Hz programmable interval timer. Every
// subsystem that stamps a timestamp (klog entries, ipc messages, inode
// created/modified ticks, process creation) reads Ticks() from here.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock is a free-running tick counter, advanced by a single goroutine
// standing in for the timer interrupt. The count is 32 bits and wraps,
// after roughly 497 days at 100 Hz.
type Clock struct {
	ticks atomic.Uint32
	every time.Duration
}

// New creates a Clock that advances once per interval when Run is
// driving it. interval defaults to 10ms (~100 Hz) if zero or negative.
func New(interval time.Duration) *Clock {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Clock{every: interval}
}

// Ticks returns the current tick count. Safe to call concurrently with
// Run's tick goroutine; the counter is the one piece of kernel state
// mutated outside mainline context.
func (c *Clock) Ticks() uint32 {
	return c.ticks.Load()
}

// Tick advances the counter by one, wrapping on overflow. Exposed so
// tests can drive it without a real timer.
func (c *Clock) Tick() uint32 {
	return c.ticks.Add(1)
}

// Run drives the tick counter at the configured interval until ctx is
// canceled. It is meant to run in its own goroutine, started from
// Kernel.Boot.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(c.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}
