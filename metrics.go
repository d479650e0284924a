package prokernel

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the scheduling-dispatch latency histogram buckets
// in nanoseconds, logarithmically spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks operational counters across every kernel subsystem.
type Metrics struct {
	// Heap
	Allocations atomic.Uint64
	Frees       atomic.Uint64
	AllocBytes  atomic.Uint64
	OOMCount    atomic.Uint64

	// File store
	FileOpens    atomic.Uint64
	FileReads    atomic.Uint64
	FileWrites   atomic.Uint64
	FileDeletes  atomic.Uint64
	BytesRead    atomic.Uint64
	BytesWritten atomic.Uint64

	// Message bus
	MessagesSent     atomic.Uint64
	MessagesReceived atomic.Uint64
	MessagesDropped  atomic.Uint64

	// Process/thread scheduler
	ThreadsScheduled atomic.Uint64
	ThreadsCreated   atomic.Uint64
	ProcessesCreated atomic.Uint64

	// Kernel log
	LogWrites   atomic.Uint64
	LogOverruns atomic.Uint64

	// Scheduling dispatch latency
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Kernel lifecycle
	BootTime     atomic.Int64
	ShutdownTime atomic.Int64
}

// NewMetrics creates a new metrics instance with BootTime stamped to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.BootTime.Store(time.Now().UnixNano())
	return m
}

// RecordAlloc records a successful heap allocation.
func (m *Metrics) RecordAlloc(bytes uint64) {
	m.Allocations.Add(1)
	m.AllocBytes.Add(bytes)
}

// RecordFree records a heap deallocation.
func (m *Metrics) RecordFree() {
	m.Frees.Add(1)
}

// RecordOOM records a failed heap allocation. Kernel.Alloc calls it for
// every rejected request, including invalid sizes, not only when the
// heap has no free block large enough.
func (m *Metrics) RecordOOM() {
	m.OOMCount.Add(1)
}

// RecordFileOpen records a file descriptor being opened.
func (m *Metrics) RecordFileOpen() {
	m.FileOpens.Add(1)
}

// RecordFileRead records a read of n bytes from the file store.
func (m *Metrics) RecordFileRead(n uint64) {
	m.FileReads.Add(1)
	m.BytesRead.Add(n)
}

// RecordFileWrite records a write of n bytes to the file store.
func (m *Metrics) RecordFileWrite(n uint64) {
	m.FileWrites.Add(1)
	m.BytesWritten.Add(n)
}

// RecordFileDelete records a file deletion.
func (m *Metrics) RecordFileDelete() {
	m.FileDeletes.Add(1)
}

// RecordMessageSent records a message enqueued onto a mailbox.
func (m *Metrics) RecordMessageSent() {
	m.MessagesSent.Add(1)
}

// RecordMessageReceived records a message dequeued from a mailbox.
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Add(1)
}

// RecordMessageDropped records a message rejected because its mailbox was full.
func (m *Metrics) RecordMessageDropped() {
	m.MessagesDropped.Add(1)
}

// RecordThreadScheduled records a scheduler dispatch, together with the
// latency the caller measured for it (Kernel.Schedule passes the time
// spent in the dispatch call itself).
func (m *Metrics) RecordThreadScheduled(latencyNs uint64) {
	m.ThreadsScheduled.Add(1)
	m.recordLatency(latencyNs)
}

// RecordThreadCreated records a thread being added to a process.
func (m *Metrics) RecordThreadCreated() {
	m.ThreadsCreated.Add(1)
}

// RecordProcessCreated records a process table entry being allocated.
func (m *Metrics) RecordProcessCreated() {
	m.ProcessesCreated.Add(1)
}

// RecordLogWrite records an entry appended to the kernel log ring.
func (m *Metrics) RecordLogWrite() {
	m.LogWrites.Add(1)
}

// RecordLogOverrun records an entry appended to the kernel log ring that
// overwrote the oldest entry.
func (m *Metrics) RecordLogOverrun() {
	m.LogOverruns.Add(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Shutdown marks the kernel as stopped.
func (m *Metrics) Shutdown() {
	m.ShutdownTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics, suitable
// for display.
type MetricsSnapshot struct {
	Allocations uint64
	Frees       uint64
	AllocBytes  uint64
	OOMCount    uint64
	LiveAllocs  uint64

	FileOpens    uint64
	FileReads    uint64
	FileWrites   uint64
	FileDeletes  uint64
	BytesRead    uint64
	BytesWritten uint64

	MessagesSent     uint64
	MessagesReceived uint64
	MessagesDropped  uint64

	ThreadsScheduled uint64
	ThreadsCreated   uint64
	ProcessesCreated uint64

	LogWrites   uint64
	LogOverruns uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Allocations:      m.Allocations.Load(),
		Frees:            m.Frees.Load(),
		AllocBytes:       m.AllocBytes.Load(),
		OOMCount:         m.OOMCount.Load(),
		FileOpens:        m.FileOpens.Load(),
		FileReads:        m.FileReads.Load(),
		FileWrites:       m.FileWrites.Load(),
		FileDeletes:      m.FileDeletes.Load(),
		BytesRead:        m.BytesRead.Load(),
		BytesWritten:     m.BytesWritten.Load(),
		MessagesSent:     m.MessagesSent.Load(),
		MessagesReceived: m.MessagesReceived.Load(),
		MessagesDropped:  m.MessagesDropped.Load(),
		ThreadsScheduled: m.ThreadsScheduled.Load(),
		ThreadsCreated:   m.ThreadsCreated.Load(),
		ProcessesCreated: m.ProcessesCreated.Load(),
		LogWrites:        m.LogWrites.Load(),
		LogOverruns:      m.LogOverruns.Load(),
	}

	if snap.Allocations > snap.Frees {
		snap.LiveAllocs = snap.Allocations - snap.Frees
	}

	opCount := m.OpCount.Load()
	totalLatencyNs := m.TotalLatencyNs.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	bootTime := m.BootTime.Load()
	shutdownTime := m.ShutdownTime.Load()
	if shutdownTime > 0 {
		snap.UptimeNs = uint64(shutdownTime - bootTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - bootTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// Reset zeroes all counters. Useful for test isolation.
func (m *Metrics) Reset() {
	m.Allocations.Store(0)
	m.Frees.Store(0)
	m.AllocBytes.Store(0)
	m.OOMCount.Store(0)
	m.FileOpens.Store(0)
	m.FileReads.Store(0)
	m.FileWrites.Store(0)
	m.FileDeletes.Store(0)
	m.BytesRead.Store(0)
	m.BytesWritten.Store(0)
	m.MessagesSent.Store(0)
	m.MessagesReceived.Store(0)
	m.MessagesDropped.Store(0)
	m.ThreadsScheduled.Store(0)
	m.ThreadsCreated.Store(0)
	m.ProcessesCreated.Store(0)
	m.LogWrites.Store(0)
	m.LogOverruns.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.BootTime.Store(time.Now().UnixNano())
	m.ShutdownTime.Store(0)
}

// Observer allows pluggable metrics collection, mirroring the shape of
// subsystem callbacks without requiring a direct *Metrics dependency.
type Observer interface {
	ObserveAlloc(bytes uint64)
	ObserveFree()
	ObserveSchedule(latencyNs uint64)
}

// NoOpObserver is a no-op Observer, used where metrics are not wired.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAlloc(uint64)    {}
func (NoOpObserver) ObserveFree()           {}
func (NoOpObserver) ObserveSchedule(uint64) {}

// MetricsObserver implements Observer by recording into a *Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer backed by the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAlloc(bytes uint64) {
	o.metrics.RecordAlloc(bytes)
}

func (o *MetricsObserver) ObserveFree() {
	o.metrics.RecordFree()
}

func (o *MetricsObserver) ObserveSchedule(latencyNs uint64) {
	o.metrics.RecordThreadScheduled(latencyNs)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
