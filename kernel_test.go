package prokernel

import (
	"context"
	"testing"
	"time"

	"github.com/kernellabs/prokernel/internal/fsys"
	"github.com/stretchr/testify/require"
)

func newTestKernel() (*Kernel, *ManualClock) {
	clk := &ManualClock{}
	cfg := DefaultBootConfig()
	cfg.Clock = clk
	return NewKernel(cfg), clk
}

func TestKernelAllocRecordsMetrics(t *testing.T) {
	k, _ := newTestKernel()

	h, err := k.Alloc(100)
	require.NoError(t, err)
	require.True(t, k.ValidPtr(h))
	require.True(t, k.GuardsOK(h))
	require.True(t, k.BoundsOK(h, 50))

	require.NoError(t, k.Free(h))
	require.False(t, k.ValidPtr(h))

	snap := k.Metrics().Snapshot()
	require.Equal(t, uint64(1), snap.Allocations)
	require.Equal(t, uint64(1), snap.Frees)
}

func TestKernelAllocOOMRecordsMetrics(t *testing.T) {
	clk := &ManualClock{}
	cfg := DefaultBootConfig()
	cfg.Clock = clk
	cfg.HeapSize = 256
	k := NewKernel(cfg)

	_, err := k.Alloc(1024)
	require.Error(t, err)
	require.Equal(t, uint64(1), k.Metrics().Snapshot().OOMCount)
}

func TestKernelFileOperationsRecordMetrics(t *testing.T) {
	k, _ := newTestKernel()

	fd, err := k.FOpen("notes", fsys.ModeWrite, 1)
	require.NoError(t, err)
	_, err = k.FWrite(fd, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, k.FClose(fd))

	fd, err = k.FOpen("notes", fsys.ModeRead, 1)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := k.FRead(fd, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, k.FClose(fd))
	require.NoError(t, k.FDelete("notes"))

	snap := k.Metrics().Snapshot()
	require.Equal(t, uint64(2), snap.FileOpens)
	require.Equal(t, uint64(1), snap.FileWrites)
	require.Equal(t, uint64(5), snap.BytesWritten)
	require.Equal(t, uint64(1), snap.FileReads)
	require.Equal(t, uint64(5), snap.BytesRead)
	require.Equal(t, uint64(1), snap.FileDeletes)
}

func TestKernelMessagingRecordsMetrics(t *testing.T) {
	clk := &ManualClock{}
	cfg := DefaultBootConfig()
	cfg.Clock = clk
	cfg.MaxMessagesPerQueue = 1
	k := NewKernel(cfg)

	qid := k.CreateQueue(7)
	require.NotZero(t, qid)
	require.True(t, k.QueueExists(qid))

	clk.Advance(3)
	require.NoError(t, k.Send(1, 7, []byte("A")))
	err := k.Send(1, 7, []byte("B"))
	require.True(t, IsCode(err, CodeResourceExhausted))

	msg, err := k.Receive(7)
	require.NoError(t, err)
	require.EqualValues(t, 1, msg.FromPID)
	require.EqualValues(t, 3, msg.Timestamp)

	snap := k.Metrics().Snapshot()
	require.Equal(t, uint64(1), snap.MessagesSent)
	require.Equal(t, uint64(1), snap.MessagesReceived)
	require.Equal(t, uint64(1), snap.MessagesDropped)

	require.NoError(t, k.DestroyQueue(qid))
	require.False(t, k.QueueExists(qid))
}

func TestKernelScheduleDispatches(t *testing.T) {
	k, _ := newTestKernel()

	pid, err := k.ProcessCreate(0x1000, 4096, "init")
	require.NoError(t, err)
	tid, err := k.ThreadCreate(pid, 0x2000, 9)
	require.NoError(t, err)

	th, ok := k.Schedule()
	require.True(t, ok)
	require.Equal(t, tid, th.TID)
	require.Equal(t, pid, k.CurrentPID())
	require.Equal(t, tid, k.CurrentTID())

	snap := k.Metrics().Snapshot()
	require.Equal(t, uint64(1), snap.ThreadsScheduled)
	require.Equal(t, uint64(1), snap.ProcessesCreated)
	require.Equal(t, uint64(2), snap.ThreadsCreated)

	require.NoError(t, k.ThreadTerminate(tid))
	require.NoError(t, k.ProcessTerminate(pid))
}

type countingObserver struct {
	allocs     int
	allocBytes uint64
	frees      int
	schedules  int
}

func (o *countingObserver) ObserveAlloc(bytes uint64) {
	o.allocs++
	o.allocBytes += bytes
}

func (o *countingObserver) ObserveFree() { o.frees++ }

func (o *countingObserver) ObserveSchedule(uint64) { o.schedules++ }

func TestKernelObserverReceivesEvents(t *testing.T) {
	obs := &countingObserver{}
	cfg := DefaultBootConfig()
	cfg.Clock = &ManualClock{}
	cfg.Observer = obs
	k := NewKernel(cfg)

	h, err := k.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, k.Free(h))

	_, err = k.ProcessCreate(0x1000, 1024, "p")
	require.NoError(t, err)
	_, ok := k.Schedule()
	require.True(t, ok)

	require.Equal(t, 1, obs.allocs)
	require.EqualValues(t, 64, obs.allocBytes)
	require.Equal(t, 1, obs.frees)
	require.Equal(t, 1, obs.schedules)

	// The kernel's own metrics record alongside the observer.
	require.Equal(t, uint64(1), k.Metrics().Snapshot().Allocations)
}

func TestKernelLogStampsTicks(t *testing.T) {
	k, clk := newTestKernel()

	clk.Advance(42)
	k.LogInfo("after 42 ticks")

	entries := k.LogAll()
	require.Len(t, entries, 1)
	require.EqualValues(t, 42, entries[0].Timestamp)
	require.Equal(t, 1, k.LogCount())

	k.LogClear()
	require.Equal(t, 0, k.LogCount())
}

func TestKernelLogOverrunMetric(t *testing.T) {
	clk := &ManualClock{}
	cfg := DefaultBootConfig()
	cfg.Clock = clk
	cfg.MaxLogEntries = 4
	k := NewKernel(cfg)

	for i := 0; i < 6; i++ {
		k.LogInfo("entry")
	}

	snap := k.Metrics().Snapshot()
	require.Equal(t, uint64(6), snap.LogWrites)
	require.Equal(t, uint64(2), snap.LogOverruns)
	require.Equal(t, 4, k.LogCount())
}

func TestKernelBootShutdownWithInternalClock(t *testing.T) {
	cfg := DefaultBootConfig()
	cfg.TickInterval = time.Millisecond
	k := NewKernel(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, k.Boot(ctx))
	require.NoError(t, k.Boot(ctx)) // idempotent

	require.Eventually(t, func() bool {
		return k.Ticks() > 0
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, k.LogCount()) // boot banner

	k.Shutdown()
	after := k.Ticks()
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, after, k.Ticks())
}
