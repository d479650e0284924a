//go:build integration

package prokernel

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kernellabs/prokernel/internal/console"
	"github.com/kernellabs/prokernel/internal/fsys"
	"github.com/kernellabs/prokernel/internal/keyboard"
	"github.com/stretchr/testify/require"
)

// End-to-end runs through the public kernel surface: boot a kernel with
// its real ticking clock, drive it through the shell the way a user at
// the console would, and check the cross-subsystem contracts hold.

func bootKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := DefaultBootConfig()
	cfg.TickInterval = time.Millisecond
	k := NewKernel(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, k.Boot(ctx))
	t.Cleanup(k.Shutdown)
	return k
}

func TestIntegrationHeapReuseAfterRelease(t *testing.T) {
	k := bootKernel(t)

	p, err := k.Alloc(100)
	require.NoError(t, err)
	require.True(t, k.ValidPtr(p))
	require.True(t, k.GuardsOK(p))

	payload, err := k.HeapPayload(p)
	require.NoError(t, err)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.True(t, k.GuardsOK(p))

	require.NoError(t, k.Free(p))
	q, err := k.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, p, q)
}

func TestIntegrationFileRoundTripThroughShell(t *testing.T) {
	k := bootKernel(t)
	con := NewMockConsole()
	s := NewShell(k, con)

	s.Dispatch("/write a hello")
	con.Reset()
	s.Dispatch("/cat a")
	require.Equal(t, "hello\n", con.Output())
}

func TestIntegrationDescriptorRenumbering(t *testing.T) {
	k := bootKernel(t)

	fd0, err := k.FOpen("a", fsys.ModeWrite, 1)
	require.NoError(t, err)
	fd1, err := k.FOpen("b", fsys.ModeWrite, 1)
	require.NoError(t, err)
	require.Greater(t, fd1, fd0)

	require.NoError(t, k.FClose(fd0))

	// Descriptor 0 now refers to the file previously known as fd1.
	_, err = k.FWrite(0, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, k.FClose(0))
	require.True(t, k.FExists("b"))
	require.EqualValues(t, 1, k.FileSize("b"))
	require.EqualValues(t, 0, k.FileSize("a"))
}

func TestIntegrationSchedulerPriorityDispatch(t *testing.T) {
	k := bootKernel(t)

	pid, err := k.ProcessCreate(0x1000, 4096, "p")
	require.NoError(t, err)
	require.EqualValues(t, 1, pid)

	tidHigh, err := k.ThreadCreate(pid, 0x2000, 9)
	require.NoError(t, err)
	_, err = k.ThreadCreate(pid, 0x2000, 1)
	require.NoError(t, err)

	_, ok := k.Schedule()
	require.True(t, ok)
	require.Equal(t, tidHigh, k.CurrentTID())

	proc, ok2 := k.GetProcess(pid)
	require.True(t, ok2)
	_, ok = k.Schedule()
	require.True(t, ok)
	require.Equal(t, proc.MainThread.TID, k.CurrentTID())
}

func TestIntegrationMailboxFIFO(t *testing.T) {
	k := bootKernel(t)

	qid := k.CreateQueue(7)
	require.NotZero(t, qid)

	require.NoError(t, k.Send(1, 7, []byte("A")))
	require.NoError(t, k.Send(1, 7, []byte("BB")))

	msg, err := k.Receive(7)
	require.NoError(t, err)
	require.EqualValues(t, 1, msg.FromPID)
	require.Equal(t, []byte("A"), msg.Data)

	msg, err = k.Receive(7)
	require.NoError(t, err)
	require.Equal(t, []byte("BB"), msg.Data)

	_, err = k.Receive(7)
	require.Error(t, err)
}

func TestIntegrationLogCircularityThroughDmesg(t *testing.T) {
	cfg := DefaultBootConfig()
	cfg.TickInterval = time.Millisecond
	k := NewKernel(cfg)
	// Not booted: keeps the boot banner out of the ring for exact counts.

	for i := 1; i <= 266; i++ {
		k.LogInfo("x" + strconv.Itoa(i))
	}
	require.Equal(t, cfg.MaxLogEntries, k.LogCount())

	con := NewMockConsole()
	s := NewShell(k, con)
	s.Dispatch("dmesg 3")

	lines := con.Lines()
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "x264")
	require.Contains(t, lines[1], "x265")
	require.Contains(t, lines[2], "x266")

	// The oldest surviving entry is the 10-overwritten mark.
	all := k.LogAll()
	require.Contains(t, all[0].Message, "x11")
}

func TestIntegrationKeyboardToShellPipeline(t *testing.T) {
	k := bootKernel(t)

	var grid strings.Builder
	con := console.NewGrid(&grid, 80, 25, 8)
	s := NewShell(k, con)

	input := "/write f typed\n/cat f\n"
	kbd := keyboard.New(strings.NewReader(input), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		kbd.Run(ctx)
		// Keep the shell from blocking forever once input is drained.
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	s.Run(ctx, kbd)

	out := grid.String()
	require.Contains(t, out, "Wrote 5 bytes to f")
	require.Contains(t, out, "typed")
	require.True(t, k.FExists("f"))

	// The shell scheduled between commands; with no processes there was
	// nothing to dispatch, so the current ids stay at their zero values.
	require.EqualValues(t, 0, k.CurrentTID())
}
