// Package procsched implements the kernel's two-level process/thread
// model and its priority-ordered cooperative scheduler.
//
// The ready queue holds dense indices into a thread arena rather than
// next pointers threaded through the control blocks themselves. Index
// handles remove the owning/non-owning ambiguity an intrusive linked
// list creates, while keeping the priority-ordered, rotate-on-pop
// scheduling behavior: strict priority dominance at the head, FIFO
// rotation among equal priorities.
package procsched

import (
	"github.com/kernellabs/prokernel/internal/heap"
	"github.com/kernellabs/prokernel/internal/kernelerr"
)

// State is a process or thread's lifecycle state.
type State int

const (
	StateCreated State = iota
	StateReady
	StateRunning
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// TickSource supplies the monotonic tick counter used to stamp process
// creation times. internal/clock.Clock satisfies this.
type TickSource interface {
	Ticks() uint32
}

type noTicks struct{}

func (noTicks) Ticks() uint32 { return 0 }

// Registers is the thread's saved execution context. No real context
// switch is performed; these fields are vestigial until a preemptive
// switch primitive exists, and are preserved bitwise unless explicitly
// changed.
type Registers struct {
	ESP uint32
	EBP uint32
	EIP uint32
}

// Thread is a schedulable unit of execution within a process.
type Thread struct {
	TID       uint32
	PID       uint32
	State     State
	Regs      Registers
	Stack     heap.Handle
	StackSize uint32
	Priority  uint32
	Ticks     uint32

	arenaIdx int // index into Manager.threads, the ready-queue's handle space
}

// Process is a process table entry: owned memory plus a fixed-capacity
// thread array.
type Process struct {
	PID          uint32
	Name         string
	State        State
	MemoryStart  heap.Handle
	MemorySize   uint32
	Threads      []*Thread
	MainThread   *Thread
	CreatedTicks uint32

	memAllocated bool
}

// Stats is a point-in-time snapshot of process/thread counters.
type Stats struct {
	TotalProcesses      uint32
	RunningProcesses    uint32
	ReadyProcesses      uint32
	BlockedProcesses    uint32
	TerminatedProcesses uint32
	TotalThreads        uint32
	ReadyThreads        uint32
	RunningThreads      uint32
}

const (
	minPriority     = 0
	maxPriority     = 10
	defaultPriority = 5
)

func clampPriority(p uint32) uint32 {
	if p > maxPriority {
		return maxPriority
	}
	return p
}

// Manager is the kernel's process/thread table and ready queue.
type Manager struct {
	heap  *heap.Heap
	ticks TickSource

	maxProcesses         int
	maxThreadsPerProcess int
	threadStackSize      uint32

	processes []*Process
	byPID     map[uint32]*Process
	byTID     map[uint32]*Thread

	nextPID uint32
	nextTID uint32

	// threads is the dense arena every ready-queue entry indexes into.
	threads []*Thread
	ready   []int // indices into threads, priority-ordered

	currentPID uint32
	currentTID uint32
}

// New creates a Manager with room for maxProcesses processes, each
// capped at maxThreadsPerProcess threads of threadStackSize bytes.
func New(h *heap.Heap, ticks TickSource, maxProcesses, maxThreadsPerProcess int, threadStackSize uint32) *Manager {
	if ticks == nil {
		ticks = noTicks{}
	}
	return &Manager{
		heap:                 h,
		ticks:                ticks,
		maxProcesses:         maxProcesses,
		maxThreadsPerProcess: maxThreadsPerProcess,
		threadStackSize:      threadStackSize,
		byPID:                make(map[uint32]*Process),
		byTID:                make(map[uint32]*Thread),
		nextPID:              1,
		nextTID:              1,
	}
}

// ProcessCreate allocates memSize bytes of process memory and a main
// thread at default priority 5, returning the new process's pid.
func (m *Manager) ProcessCreate(entry uintptr, memSize uint32, name string) (uint32, error) {
	if len(m.processes) >= m.maxProcesses {
		return 0, kernelerr.New("process.Create", kernelerr.CodeResourceExhausted, "process table full")
	}
	if entry == 0 {
		return 0, kernelerr.New("process.Create", kernelerr.CodeInvalidArgument, "nil entry point")
	}

	memHandle, err := m.heap.Alloc(memSize)
	if err != nil {
		return 0, kernelerr.Wrap("process.Create", kernelerr.CodeResourceExhausted, err)
	}

	proc := &Process{
		PID:          m.nextPID,
		Name:         name,
		State:        StateCreated,
		MemoryStart:  memHandle,
		MemorySize:   memSize,
		CreatedTicks: m.ticks.Ticks(),
		memAllocated: true,
	}
	m.nextPID++
	m.byPID[proc.PID] = proc
	m.processes = append(m.processes, proc)

	tid, err := m.ThreadCreate(proc.PID, entry, defaultPriority)
	if err != nil {
		_ = m.heap.Free(memHandle)
		delete(m.byPID, proc.PID)
		m.processes = m.processes[:len(m.processes)-1]
		return 0, kernelerr.Wrap("process.Create", kernelerr.CodeResourceExhausted, err)
	}

	proc.MainThread = m.byTID[tid]
	proc.State = StateReady
	return proc.PID, nil
}

// ProcessTerminate unlinks every thread the process owns from the
// ready queue, releases the process's memory, and marks the process and
// its threads Terminated.
func (m *Manager) ProcessTerminate(pid uint32) error {
	proc, ok := m.byPID[pid]
	if !ok {
		return kernelerr.NewPID("process.Terminate", pid, kernelerr.CodeNotFound, "process not found")
	}

	for _, th := range proc.Threads {
		m.removeFromReady(th.arenaIdx)
		th.State = StateTerminated
	}

	if proc.memAllocated {
		_ = m.heap.Free(proc.MemoryStart)
		proc.memAllocated = false
	}
	proc.State = StateTerminated
	return nil
}

// GetProcess returns the process with the given pid.
func (m *Manager) GetProcess(pid uint32) (*Process, bool) {
	p, ok := m.byPID[pid]
	return p, ok
}

// GetProcessState returns pid's state, or StateTerminated if unknown.
func (m *Manager) GetProcessState(pid uint32) State {
	if p, ok := m.byPID[pid]; ok {
		return p.State
	}
	return StateTerminated
}

// ListProcesses returns every process in creation order, for the
// shell's /proclist, /proc, and top commands.
func (m *Manager) ListProcesses() []*Process {
	out := make([]*Process, len(m.processes))
	copy(out, m.processes)
	return out
}

// ThreadCreate allocates a stack and control block for a new thread
// under pid, inserts it into the process's thread array, and enqueues
// it onto the ready queue in priority order.
func (m *Manager) ThreadCreate(pid uint32, entry uintptr, priority uint32) (uint32, error) {
	proc, ok := m.byPID[pid]
	if !ok {
		return 0, kernelerr.NewPID("thread.Create", pid, kernelerr.CodeNotFound, "process not found")
	}
	if len(proc.Threads) >= m.maxThreadsPerProcess {
		return 0, kernelerr.NewPID("thread.Create", pid, kernelerr.CodeResourceExhausted, "thread table full")
	}

	stackHandle, err := m.heap.Alloc(m.threadStackSize)
	if err != nil {
		return 0, kernelerr.Wrap("thread.Create", kernelerr.CodeResourceExhausted, err)
	}

	esp := m.threadStackSize - 4
	th := &Thread{
		TID:       m.nextTID,
		PID:       pid,
		State:     StateCreated,
		Stack:     stackHandle,
		StackSize: m.threadStackSize,
		Priority:  clampPriority(priority),
		Regs: Registers{
			ESP: esp,
			EBP: esp,
			EIP: uint32(entry),
		},
	}
	m.nextTID++

	m.threads = append(m.threads, th)
	th.arenaIdx = len(m.threads) - 1
	m.byTID[th.TID] = th
	proc.Threads = append(proc.Threads, th)

	th.State = StateReady
	m.insertReady(th.arenaIdx)

	return th.TID, nil
}

// ThreadTerminate unlinks tid from the ready queue, releases its stack,
// and marks it Terminated.
func (m *Manager) ThreadTerminate(tid uint32) error {
	th, ok := m.byTID[tid]
	if !ok {
		return kernelerr.New("thread.Terminate", kernelerr.CodeNotFound, "thread not found")
	}

	m.removeFromReady(th.arenaIdx)
	th.State = StateTerminated
	_ = m.heap.Free(th.Stack)
	return nil
}

// GetThread returns the thread with the given tid.
func (m *Manager) GetThread(tid uint32) (*Thread, bool) {
	t, ok := m.byTID[tid]
	return t, ok
}

// GetThreadState returns tid's state, or StateTerminated if unknown.
func (m *Manager) GetThreadState(tid uint32) State {
	if t, ok := m.byTID[tid]; ok {
		return t.State
	}
	return StateTerminated
}

// SetPriority updates tid's scheduling priority, clamped to [0, 10].
// The thread keeps its current position in the ready queue; the queue
// is not re-sorted.
func (m *Manager) SetPriority(tid uint32, priority uint32) error {
	th, ok := m.byTID[tid]
	if !ok {
		return kernelerr.New("thread.SetPriority", kernelerr.CodeNotFound, "thread not found")
	}
	th.Priority = clampPriority(priority)
	return nil
}

// insertReady inserts arenaIdx into the ready queue preserving
// non-increasing priority order: it walks until the first entry with
// strictly lower priority and inserts before it, so ties land after
// existing same-priority entries and scheduling among equals is FIFO.
func (m *Manager) insertReady(arenaIdx int) {
	priority := m.threads[arenaIdx].Priority
	pos := len(m.ready)
	for i, idx := range m.ready {
		if m.threads[idx].Priority < priority {
			pos = i
			break
		}
	}
	m.ready = append(m.ready, 0)
	copy(m.ready[pos+1:], m.ready[pos:])
	m.ready[pos] = arenaIdx
}

func (m *Manager) removeFromReady(arenaIdx int) {
	for i, idx := range m.ready {
		if idx == arenaIdx {
			m.ready = append(m.ready[:i], m.ready[i+1:]...)
			return
		}
	}
}

// Next pops the head of the ready queue and re-appends it at the tail
// before returning it. The rotation happens before the popped thread has
// yielded, which can briefly demote it below lower-priority entries;
// consumers mark it Running immediately on pop, so the window is
// harmless and equals cycle FIFO.
func (m *Manager) Next() (*Thread, bool) {
	if len(m.ready) == 0 {
		return nil, false
	}
	idx := m.ready[0]
	m.ready = append(m.ready[1:], idx)
	return m.threads[idx], true
}

// Schedule pops the next ready thread, marks it Running, and publishes
// CurrentPID/CurrentTID. It is the cooperative scheduling point, called
// between shell commands; the tick goroutine never calls it.
func (m *Manager) Schedule() (*Thread, bool) {
	th, ok := m.Next()
	if !ok {
		return nil, false
	}
	th.State = StateRunning
	m.currentPID = th.PID
	m.currentTID = th.TID
	return th, true
}

// ContextSwitch updates the scheduler's administrative pointers only; no
// register state is saved or restored. It exists so a real switch
// primitive can drop in later without changing callers.
func (m *Manager) ContextSwitch() (*Thread, bool) {
	return m.Schedule()
}

// CurrentPID returns the pid of the thread last dispatched by Schedule.
func (m *Manager) CurrentPID() uint32 { return m.currentPID }

// CurrentTID returns the tid of the thread last dispatched by Schedule.
func (m *Manager) CurrentTID() uint32 { return m.currentTID }

// Stats returns a point-in-time snapshot of process/thread statistics.
func (m *Manager) Stats() Stats {
	var s Stats
	s.TotalProcesses = uint32(len(m.processes))
	for _, proc := range m.processes {
		switch proc.State {
		case StateRunning:
			s.RunningProcesses++
		case StateReady:
			s.ReadyProcesses++
		case StateBlocked:
			s.BlockedProcesses++
		case StateTerminated:
			s.TerminatedProcesses++
		}
		s.TotalThreads += uint32(len(proc.Threads))
		for _, th := range proc.Threads {
			switch th.State {
			case StateReady:
				s.ReadyThreads++
			case StateRunning:
				s.RunningThreads++
			}
		}
	}
	return s
}
