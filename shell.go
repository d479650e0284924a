package prokernel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kernellabs/prokernel/internal/console"
	"github.com/kernellabs/prokernel/internal/fsys"
	"github.com/kernellabs/prokernel/internal/keyboard"
)

// catLimit bounds how much of a file /cat prints in one go.
const catLimit = 1023

// shellPID is the pid file operations issued from the shell are
// attributed to. The shell predates the first user process, so it
// claims pid 0.
const shellPID = 0

// Shell consumes completed lines from the keyboard collaborator and
// drives the kernel. It never aborts on a subsystem error; every
// failure becomes a single console line and the prompt comes back.
type Shell struct {
	kernel *Kernel
	con    console.Console
}

// NewShell creates a Shell printing through con.
func NewShell(k *Kernel, con console.Console) *Shell {
	return &Shell{kernel: k, con: con}
}

func (s *Shell) print(text string) {
	for i := 0; i < len(text); i++ {
		s.con.PutChar(text[i])
	}
}

func (s *Shell) println(text string) {
	s.print(text)
	s.con.PutChar('\n')
}

func (s *Shell) printf(format string, args ...any) {
	s.print(fmt.Sprintf(format, args...))
}

func (s *Shell) printError(err error) {
	var ke *Error
	if errors.As(err, &ke) && ke.Msg != "" {
		s.println("Error: " + ke.Msg)
		return
	}
	s.println("Error: " + err.Error())
}

// Run prompts, dispatches completed lines, and schedules the next ready
// thread between commands, which is the shell's turn of the cooperative
// scheduling point. It returns when ctx is canceled or the keyboard
// closes its line channel.
func (s *Shell) Run(ctx context.Context, kbd *keyboard.Keyboard) {
	s.print("> ")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-kbd.Lines():
			if !ok {
				return
			}
			s.Dispatch(line)
			s.kernel.Schedule()
			s.print("> ")
		}
	}
}

// Dispatch runs a single command line. Prefixes are case-sensitive.
func (s *Shell) Dispatch(line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
	case strings.HasPrefix(line, "/pr "):
		s.println(line[len("/pr "):])
	case strings.HasPrefix(line, "/math "):
		s.cmdMath(line[len("/math "):])
	case line == "/memstat":
		s.cmdMemstat()
	case line == "/fsstat":
		s.cmdFsstat()
	case line == "/procstat":
		s.cmdProcstat()
	case line == "/proclist", line == "/proc":
		s.cmdProclist()
	case line == "top":
		s.cmdTop()
	case strings.HasPrefix(line, "/procinfo "):
		s.cmdProcinfo(line[len("/procinfo "):])
	case line == "/ls":
		s.cmdLs()
	case strings.HasPrefix(line, "/cat "):
		s.cmdCat(line[len("/cat "):])
	case strings.HasPrefix(line, "/write "):
		s.cmdWrite(line[len("/write "):])
	case strings.HasPrefix(line, "/rm "):
		s.cmdRm(line[len("/rm "):])
	case line == "dmesg":
		s.cmdDmesg("")
	case strings.HasPrefix(line, "dmesg "):
		s.cmdDmesg(line[len("dmesg "):])
	case line == "help":
		s.cmdHelp()
	default:
		s.println("Unknown command: " + line)
		s.println("Type 'help' for available commands")
	}
}

// cmdMath evaluates an integer expression strictly left-to-right, no
// operator precedence. An optional leading '=' is accepted.
func (s *Shell) cmdMath(expr string) {
	expr = strings.TrimSpace(expr)
	expr = strings.TrimPrefix(expr, "=")
	result, err := evalMath(expr)
	if err != nil {
		s.println("Error: " + err.Error())
		return
	}
	s.printf("= %d\n", result)
}

func evalMath(expr string) (int64, error) {
	expr = strings.ReplaceAll(expr, " ", "")
	if expr == "" {
		return 0, errors.New("empty expression")
	}

	pos := 0
	readNumber := func() (int64, error) {
		start := pos
		if pos < len(expr) && (expr[pos] == '-' || expr[pos] == '+') {
			pos++
		}
		for pos < len(expr) && expr[pos] >= '0' && expr[pos] <= '9' {
			pos++
		}
		if pos == start {
			return 0, errors.New("invalid expression")
		}
		return strconv.ParseInt(expr[start:pos], 10, 64)
	}

	acc, err := readNumber()
	if err != nil {
		return 0, err
	}
	for pos < len(expr) {
		op := expr[pos]
		pos++
		rhs, err := readNumber()
		if err != nil {
			return 0, err
		}
		switch op {
		case '+':
			acc += rhs
		case '-':
			acc -= rhs
		case '*':
			acc *= rhs
		case '/':
			if rhs == 0 {
				return 0, errors.New("division by zero")
			}
			acc /= rhs
		default:
			return 0, errors.New("invalid expression")
		}
	}
	return acc, nil
}

func (s *Shell) cmdMemstat() {
	st := s.kernel.HeapStats()
	s.println("Memory statistics:")
	s.printf("  Total:       %d bytes\n", st.TotalMemory)
	s.printf("  Used:        %d bytes\n", st.UsedMemory)
	s.printf("  Free:        %d bytes\n", st.FreeMemory)
	s.printf("  Blocks:      %d\n", st.BlockCount)
	s.printf("  Allocations: %d\n", st.AllocationCount)
	s.printf("  Frees:       %d\n", st.FreeCount)
}

func (s *Shell) cmdFsstat() {
	st := s.kernel.FSStats()
	s.println("Filesystem statistics:")
	s.printf("  Files:      %d/%d\n", st.UsedFiles, st.TotalFiles)
	s.printf("  Open:       %d\n", st.OpenFiles)
	s.printf("  Used space: %d bytes\n", st.UsedSpace)
	s.printf("  Free space: %d bytes\n", st.FreeSpace)
}

func (s *Shell) cmdProcstat() {
	st := s.kernel.ProcStats()
	s.println("Process statistics:")
	s.printf("  Processes:  %d\n", st.TotalProcesses)
	s.printf("  Running:    %d\n", st.RunningProcesses)
	s.printf("  Ready:      %d\n", st.ReadyProcesses)
	s.printf("  Blocked:    %d\n", st.BlockedProcesses)
	s.printf("  Terminated: %d\n", st.TerminatedProcesses)
	s.printf("  Threads:    %d\n", st.TotalThreads)
}

func (s *Shell) processBlock(p *procDisplay) {
	s.printf("PID %d (%s) [%s] mem=%dKB threads=%d\n",
		p.pid, p.name, p.state, p.memKB, len(p.threads))
	for _, t := range p.threads {
		s.printf("  TID %d prio=%d [%s]\n", t.tid, t.priority, t.state)
	}
}

type threadDisplay struct {
	tid      uint32
	priority uint32
	state    string
}

type procDisplay struct {
	pid     uint32
	name    string
	state   string
	memKB   uint32
	threads []threadDisplay
}

func (s *Shell) displayList() []*procDisplay {
	var out []*procDisplay
	for _, p := range s.kernel.ListProcesses() {
		d := &procDisplay{
			pid:   p.PID,
			name:  p.Name,
			state: p.State.String(),
			memKB: p.MemorySize / 1024,
		}
		for _, t := range p.Threads {
			d.threads = append(d.threads, threadDisplay{
				tid:      t.TID,
				priority: t.Priority,
				state:    t.State.String(),
			})
		}
		out = append(out, d)
	}
	return out
}

func (s *Shell) cmdProclist() {
	list := s.displayList()
	if len(list) == 0 {
		s.println("No processes")
		return
	}
	for _, p := range list {
		s.processBlock(p)
	}
}

func (s *Shell) cmdTop() {
	st := s.kernel.ProcStats()
	s.printf("Processes: %d | Running: %d | Ready: %d\n",
		st.TotalProcesses, st.RunningProcesses, st.ReadyProcesses)
	s.printf("Threads: %d | Running: %d | Ready: %d\n",
		st.TotalThreads, st.RunningThreads, st.ReadyThreads)
	s.cmdProclist()
}

func (s *Shell) cmdProcinfo(arg string) {
	pid, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 32)
	if err != nil {
		s.println("Error: Invalid pid")
		return
	}
	p, ok := s.kernel.GetProcess(uint32(pid))
	if !ok {
		s.println("Error: Process not found")
		return
	}
	d := &procDisplay{
		pid:   p.PID,
		name:  p.Name,
		state: p.State.String(),
		memKB: p.MemorySize / 1024,
	}
	for _, t := range p.Threads {
		d.threads = append(d.threads, threadDisplay{
			tid:      t.TID,
			priority: t.Priority,
			state:    t.State.String(),
		})
	}
	s.processBlock(d)
}

func (s *Shell) cmdLs() {
	files := s.kernel.ListFiles()
	if len(files) == 0 {
		s.println("No files")
		return
	}
	for _, f := range files {
		s.printf("%-32s %6d bytes\n", f.Filename, f.Size)
	}
}

func (s *Shell) cmdCat(name string) {
	name = strings.TrimSpace(name)
	fd, err := s.kernel.FOpen(name, fsys.ModeRead, shellPID)
	if err != nil {
		s.printError(err)
		return
	}

	buf := fsys.GetBuffer(catLimit + 1)
	defer fsys.PutBuffer(buf)

	n, err := s.kernel.FRead(fd, buf[:catLimit])
	if err != nil {
		s.printError(err)
		_ = s.kernel.FClose(fd)
		return
	}
	s.println(string(buf[:n]))
	if err := s.kernel.FClose(fd); err != nil {
		s.printError(err)
	}
}

func (s *Shell) cmdWrite(args string) {
	name, text, ok := strings.Cut(args, " ")
	if !ok || name == "" {
		s.println("Usage: /write <name> <text>")
		return
	}
	fd, err := s.kernel.FOpen(name, fsys.ModeWrite, shellPID)
	if err != nil {
		s.printError(err)
		return
	}
	if _, err := s.kernel.FWrite(fd, []byte(text)); err != nil {
		s.printError(err)
		_ = s.kernel.FClose(fd)
		return
	}
	if err := s.kernel.FClose(fd); err != nil {
		s.printError(err)
		return
	}
	s.printf("Wrote %d bytes to %s\n", len(text), name)
}

func (s *Shell) cmdRm(name string) {
	name = strings.TrimSpace(name)
	if err := s.kernel.FDelete(name); err != nil {
		s.printError(err)
		return
	}
	s.println("Deleted " + name)
}

func (s *Shell) cmdDmesg(arg string) {
	arg = strings.TrimSpace(arg)
	entries := s.kernel.LogAll()
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			s.println("Error: Invalid count")
			return
		}
		entries, err = s.kernel.LogLast(n)
		if err != nil {
			s.printError(err)
			return
		}
	}
	for _, e := range entries {
		s.printf("[%08d] %-5s %s\n", e.Timestamp, e.Level, e.Message)
	}
}

func (s *Shell) cmdHelp() {
	s.println("Available commands:")
	s.println("  /pr <text>          Echo text")
	s.println("  /math <expr>        Evaluate expression left-to-right (+ - * /)")
	s.println("  /memstat            Memory statistics")
	s.println("  /fsstat             Filesystem statistics")
	s.println("  /procstat           Process statistics")
	s.println("  /proclist           List processes and threads")
	s.println("  /proc               Alias for /proclist")
	s.println("  /procinfo <pid>     Per-process summary")
	s.println("  top                 Aggregate stats plus process listing")
	s.println("  /ls                 List files")
	s.println("  /cat <name>         Print a file")
	s.println("  /write <name> <text> Write text into a file")
	s.println("  /rm <name>          Delete a file")
	s.println("  dmesg [k]           Print all or last k log entries")
	s.println("  help                This help")
}
