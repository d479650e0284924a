// Package prokernel is an in-process simulation of a small 32-bit
// protected-mode kernel: a first-fit heap with guard bytes, a volatile
// inode-based file store, a two-level process/thread table with a
// priority scheduler, per-process bounded mailboxes, a ring-buffered
// kernel log, and an interactive shell driving all of it from a text
// console. The "hardware" collaborators (console, keyboard, interval
// timer) are backed by the host terminal and a ticker goroutine, but
// their contracts match the real thing: a ~100 Hz tick source and a
// keyboard-driven line accumulator.
package prokernel

import (
	"context"
	"sync"
	"time"

	"github.com/kernellabs/prokernel/internal/clock"
	"github.com/kernellabs/prokernel/internal/constants"
	"github.com/kernellabs/prokernel/internal/diag"
	"github.com/kernellabs/prokernel/internal/fsys"
	"github.com/kernellabs/prokernel/internal/heap"
	"github.com/kernellabs/prokernel/internal/ipc"
	"github.com/kernellabs/prokernel/internal/klog"
	"github.com/kernellabs/prokernel/internal/procsched"
)

// TickSource supplies the monotonic tick counter. The kernel's own
// clock satisfies it, as does ManualClock for tests.
type TickSource interface {
	Ticks() uint32
}

// BootConfig configures a Kernel. The zero value is not usable; start
// from DefaultBootConfig and override what the test or deployment
// needs. Shrinking the table sizes makes exhaustion cases cheap to
// trigger.
type BootConfig struct {
	HeapSize             uint32
	MaxFiles             int
	MaxFilename          int
	MaxFileSize          uint32
	MaxProcesses         int
	MaxThreadsPerProcess int
	ThreadStackSize      uint32
	MaxMessageQueues     int
	MaxMessagesPerQueue  int
	MaxMessageSize       int
	MaxLogEntries        int
	MaxLogMessage        int
	TickInterval         time.Duration

	// Clock overrides the internal ticker-driven clock when non-nil.
	// Tests install a ManualClock here.
	Clock TickSource

	// Observer receives heap and scheduler events as they happen, as a
	// side channel alongside the kernel's own metrics. Defaults to
	// NoOpObserver.
	Observer Observer

	// Logger receives operator-facing diagnostics. Defaults to the
	// package-level diag logger.
	Logger *diag.Logger
}

// DefaultBootConfig returns a BootConfig loaded with the kernel ABI
// limits.
func DefaultBootConfig() BootConfig {
	return BootConfig{
		HeapSize:             constants.MemorySize,
		MaxFiles:             constants.MaxFiles,
		MaxFilename:          constants.MaxFilename,
		MaxFileSize:          constants.MaxFileSize,
		MaxProcesses:         constants.MaxProcesses,
		MaxThreadsPerProcess: constants.MaxThreadsPerProcess,
		ThreadStackSize:      constants.ThreadStackSize,
		MaxMessageQueues:     constants.MaxMessageQueues,
		MaxMessagesPerQueue:  constants.MaxMessagesPerQueue,
		MaxMessageSize:       constants.MaxMessageSize,
		MaxLogEntries:        constants.MaxLogEntries,
		MaxLogMessage:        constants.MaxLogMessage,
		TickInterval:         constants.TickInterval,
	}
}

// Kernel owns the six subsystems and their shared lifetime. All
// mutation happens from the caller's goroutine; the only concurrent
// writer is the clock goroutine advancing its atomic tick counter.
type Kernel struct {
	cfg      BootConfig
	logger   *diag.Logger
	metrics  *Metrics
	observer Observer

	clk   *clock.Clock
	ticks TickSource

	heap  *heap.Heap
	klog  *klog.Log
	fs    *fsys.FileStore
	bus   *ipc.Bus
	procs *procsched.Manager

	cancel context.CancelFunc
	wg     sync.WaitGroup
	booted bool
}

// NewKernel constructs a Kernel and its subsystems from cfg. Nothing
// runs until Boot.
func NewKernel(cfg BootConfig) *Kernel {
	if cfg.Logger == nil {
		cfg.Logger = diag.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}

	k := &Kernel{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  NewMetrics(),
		observer: cfg.Observer,
	}

	if cfg.Clock != nil {
		k.ticks = cfg.Clock
	} else {
		k.clk = clock.New(cfg.TickInterval)
		k.ticks = k.clk
	}
	k.logger.SetTicks(k.ticks)

	k.heap = heap.New(cfg.HeapSize)
	k.klog = klog.New(k.ticks, cfg.MaxLogEntries, cfg.MaxLogMessage)
	k.fs = fsys.New(k.heap, k.ticks, cfg.MaxFiles, cfg.MaxFilename, cfg.MaxFileSize)
	k.bus = ipc.New(k.ticks, cfg.MaxMessageQueues, cfg.MaxMessagesPerQueue, cfg.MaxMessageSize)
	k.procs = procsched.New(k.heap, k.ticks, cfg.MaxProcesses, cfg.MaxThreadsPerProcess, cfg.ThreadStackSize)

	return k
}

// Boot starts the kernel's background machinery (the tick goroutine,
// when the kernel owns its clock) and writes the boot banner into the
// kernel log. Boot is idempotent per Kernel.
func (k *Kernel) Boot(ctx context.Context) error {
	if k.booted {
		return nil
	}
	k.booted = true

	ctx, k.cancel = context.WithCancel(ctx)
	if k.clk != nil {
		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			k.clk.Run(ctx)
		}()
	}

	k.logger.Info("kernel booting",
		"heap_bytes", k.cfg.HeapSize,
		"max_processes", k.cfg.MaxProcesses,
		"max_files", k.cfg.MaxFiles)
	k.LogInfo("kernel initialized")
	return nil
}

// Shutdown stops the background machinery and stamps the metrics. The
// in-memory state stays readable afterwards; there is nothing to
// persist.
func (k *Kernel) Shutdown() {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	k.metrics.Shutdown()
	k.logger.Info("kernel stopped")
}

// Ticks returns the current kernel tick count.
func (k *Kernel) Ticks() uint32 {
	return k.ticks.Ticks()
}

// Metrics returns the kernel's metrics instance.
func (k *Kernel) Metrics() *Metrics {
	return k.metrics
}

// Alloc reserves size bytes from the kernel heap.
func (k *Kernel) Alloc(size uint32) (heap.Handle, error) {
	h, err := k.heap.Alloc(size)
	if err != nil {
		k.metrics.RecordOOM()
		return 0, err
	}
	k.metrics.RecordAlloc(uint64(size))
	k.observer.ObserveAlloc(uint64(size))
	return h, nil
}

// Free releases a heap allocation.
func (k *Kernel) Free(h heap.Handle) error {
	if err := k.heap.Free(h); err != nil {
		return err
	}
	k.metrics.RecordFree()
	k.observer.ObserveFree()
	return nil
}

// ValidPtr reports whether h names a live allocation.
func (k *Kernel) ValidPtr(h heap.Handle) bool {
	return k.heap.Valid(h)
}

// BoundsOK reports whether offset is a valid access into h.
func (k *Kernel) BoundsOK(h heap.Handle, offset uint32) bool {
	return k.heap.CheckBounds(h, offset)
}

// GuardsOK reports whether h's guard bytes are intact.
func (k *Kernel) GuardsOK(h heap.Handle) bool {
	return k.heap.CheckGuard(h)
}

// HeapPayload returns h's payload bytes.
func (k *Kernel) HeapPayload(h heap.Handle) ([]byte, error) {
	return k.heap.Payload(h)
}

// HeapStats returns allocator statistics for the shell's /memstat.
func (k *Kernel) HeapStats() heap.Stats {
	return k.heap.Stats()
}

// FOpen opens filename under mode on behalf of pid.
func (k *Kernel) FOpen(filename string, mode fsys.Mode, pid uint32) (int32, error) {
	fd, err := k.fs.Open(filename, mode, pid)
	if err != nil {
		return fd, err
	}
	k.metrics.RecordFileOpen()
	return fd, nil
}

// FClose closes fd, renumbering every higher descriptor down by one.
func (k *Kernel) FClose(fd int32) error {
	return k.fs.Close(fd)
}

// FRead reads from fd into buf, returning 0 at EOF.
func (k *Kernel) FRead(fd int32, buf []byte) (int, error) {
	n, err := k.fs.Read(fd, buf)
	if err != nil {
		return n, err
	}
	k.metrics.RecordFileRead(uint64(n))
	return n, nil
}

// FWrite writes data at fd's write cursor.
func (k *Kernel) FWrite(fd int32, data []byte) (int, error) {
	n, err := k.fs.Write(fd, data)
	if err != nil {
		return n, err
	}
	k.metrics.RecordFileWrite(uint64(n))
	return n, nil
}

// FDelete removes filename, closing its open descriptors first.
func (k *Kernel) FDelete(filename string) error {
	if err := k.fs.Delete(filename); err != nil {
		return err
	}
	k.metrics.RecordFileDelete()
	return nil
}

// FExists reports whether filename is present.
func (k *Kernel) FExists(filename string) bool {
	return k.fs.Exists(filename)
}

// FileSize returns filename's size, or 0 when absent.
func (k *Kernel) FileSize(filename string) uint32 {
	return k.fs.FileSize(filename)
}

// GetFile returns filename's inode metadata.
func (k *Kernel) GetFile(filename string) (fsys.Inode, bool) {
	return k.fs.GetFile(filename)
}

// ListFiles returns every in-use inode.
func (k *Kernel) ListFiles() []fsys.Inode {
	return k.fs.ListFiles()
}

// FSStats returns file store statistics for the shell's /fsstat.
func (k *Kernel) FSStats() fsys.Stats {
	return k.fs.Stats()
}

// ProcessCreate allocates a process with a default-priority main thread.
func (k *Kernel) ProcessCreate(entry uintptr, memSize uint32, name string) (uint32, error) {
	pid, err := k.procs.ProcessCreate(entry, memSize, name)
	if err != nil {
		return 0, err
	}
	k.metrics.RecordProcessCreated()
	k.metrics.RecordThreadCreated()
	return pid, nil
}

// ProcessTerminate terminates pid and everything it owns.
func (k *Kernel) ProcessTerminate(pid uint32) error {
	return k.procs.ProcessTerminate(pid)
}

// GetProcess returns pid's table entry.
func (k *Kernel) GetProcess(pid uint32) (*procsched.Process, bool) {
	return k.procs.GetProcess(pid)
}

// GetProcessState returns pid's state, StateTerminated when unknown.
func (k *Kernel) GetProcessState(pid uint32) procsched.State {
	return k.procs.GetProcessState(pid)
}

// ListProcesses returns every process in creation order.
func (k *Kernel) ListProcesses() []*procsched.Process {
	return k.procs.ListProcesses()
}

// ThreadCreate adds a thread to pid at the given priority.
func (k *Kernel) ThreadCreate(pid uint32, entry uintptr, priority uint32) (uint32, error) {
	tid, err := k.procs.ThreadCreate(pid, entry, priority)
	if err != nil {
		return 0, err
	}
	k.metrics.RecordThreadCreated()
	return tid, nil
}

// ThreadTerminate terminates tid and releases its stack.
func (k *Kernel) ThreadTerminate(tid uint32) error {
	return k.procs.ThreadTerminate(tid)
}

// GetThread returns tid's control block.
func (k *Kernel) GetThread(tid uint32) (*procsched.Thread, bool) {
	return k.procs.GetThread(tid)
}

// GetThreadState returns tid's state, StateTerminated when unknown.
func (k *Kernel) GetThreadState(tid uint32) procsched.State {
	return k.procs.GetThreadState(tid)
}

// SetPriority updates tid's scheduling priority, clamped to [0, 10].
func (k *Kernel) SetPriority(tid uint32, priority uint32) error {
	return k.procs.SetPriority(tid, priority)
}

// Schedule dispatches the next ready thread and records the dispatch
// latency.
func (k *Kernel) Schedule() (*procsched.Thread, bool) {
	start := time.Now()
	th, ok := k.procs.Schedule()
	if ok {
		latency := uint64(time.Since(start).Nanoseconds())
		k.metrics.RecordThreadScheduled(latency)
		k.observer.ObserveSchedule(latency)
	}
	return th, ok
}

// CurrentPID returns the pid last dispatched.
func (k *Kernel) CurrentPID() uint32 { return k.procs.CurrentPID() }

// CurrentTID returns the tid last dispatched.
func (k *Kernel) CurrentTID() uint32 { return k.procs.CurrentTID() }

// ProcStats returns process/thread statistics for the shell's /procstat.
func (k *Kernel) ProcStats() procsched.Stats {
	return k.procs.Stats()
}

// CreateQueue claims a mailbox for ownerPID. 0 means the table is full.
func (k *Kernel) CreateQueue(ownerPID uint32) uint32 {
	return k.bus.CreateQueue(ownerPID)
}

// DestroyQueue removes queueID's mailbox.
func (k *Kernel) DestroyQueue(queueID uint32) error {
	return k.bus.DestroyQueue(queueID)
}

// QueueExists reports whether queueID names a live mailbox.
func (k *Kernel) QueueExists(queueID uint32) bool {
	return k.bus.QueueExists(queueID)
}

// Send enqueues data onto toPID's mailbox.
func (k *Kernel) Send(fromPID, toPID uint32, data []byte) error {
	if err := k.bus.Send(fromPID, toPID, data); err != nil {
		if IsCode(err, CodeResourceExhausted) {
			k.metrics.RecordMessageDropped()
		}
		return err
	}
	k.metrics.RecordMessageSent()
	return nil
}

// Receive dequeues the oldest message addressed to toPID.
func (k *Kernel) Receive(toPID uint32) (ipc.Message, error) {
	msg, err := k.bus.Receive(toPID)
	if err != nil {
		return msg, err
	}
	k.metrics.RecordMessageReceived()
	return msg, nil
}

// IPCStats returns message bus statistics.
func (k *Kernel) IPCStats() ipc.Stats {
	return k.bus.Stats()
}

func (k *Kernel) logWrite(level klog.Level, message string) {
	if k.klog.Count() == k.cfg.MaxLogEntries {
		k.metrics.RecordLogOverrun()
	}
	k.klog.Write(level, message)
	k.metrics.RecordLogWrite()
}

// LogInfo writes an info entry into the kernel log ring.
func (k *Kernel) LogInfo(message string) { k.logWrite(klog.LevelInfo, message) }

// LogWarning writes a warning entry into the kernel log ring.
func (k *Kernel) LogWarning(message string) { k.logWrite(klog.LevelWarning, message) }

// LogError writes an error entry into the kernel log ring.
func (k *Kernel) LogError(message string) { k.logWrite(klog.LevelError, message) }

// LogDebug writes a debug entry into the kernel log ring.
func (k *Kernel) LogDebug(message string) { k.logWrite(klog.LevelDebug, message) }

// LogAll returns every live log entry, oldest first.
func (k *Kernel) LogAll() []klog.Entry {
	return k.klog.All()
}

// LogLast returns the most recent n entries.
func (k *Kernel) LogLast(n int) ([]klog.Entry, error) {
	return k.klog.Last(n)
}

// LogClear empties the kernel log ring.
func (k *Kernel) LogClear() {
	k.klog.Clear()
}

// LogCount returns the number of live log entries.
func (k *Kernel) LogCount() int {
	return k.klog.Count()
}
