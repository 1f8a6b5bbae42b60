package proc

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// TestMain routes SIGCHLD before the testing framework spawns anything, the
// same ordering main() guarantees for the real binary.
func TestMain(m *testing.M) {
	BlockChildSignal()
	os.Exit(m.Run())
}

func TestTrivialExit(t *testing.T) {
	p := NewProcess("/bin/true")
	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	pid, err := handle.Finish(1 * time.Second)
	if err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if pid != handle.Pid() {
		t.Errorf("Finish() = %d, want pid %d", pid, handle.Pid())
	}
	if !handle.Status().Exited() || handle.Status().ExitStatus() != 0 {
		t.Errorf("Status() = %#x, want clean exit", handle.Status())
	}

	out, err := handle.ReadStdout()
	if err != nil {
		t.Fatalf("ReadStdout() error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("ReadStdout() = %q, want empty", out)
	}
}

func TestEchoStdin(t *testing.T) {
	p := NewProcess("/bin/cat")
	p.Input([]byte("hello\n"))

	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if _, err := handle.Finish(5 * time.Second); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	out, err := handle.ReadStdout()
	if err != nil {
		t.Fatalf("ReadStdout() error: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("ReadStdout() = %q, want %q", out, "hello\n")
	}
}

func TestFinishTimeout(t *testing.T) {
	p := NewProcess("/bin/sleep")
	p.Arg("10")

	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	pid := handle.Pid()

	start := time.Now()
	_, err = handle.Finish(200 * time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("Finish() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Finish() took %s, want prompt timeout", elapsed)
	}

	// The child must not outlive a timed-out Finish.
	time.Sleep(50 * time.Millisecond)
	if err := unix.Kill(pid, 0); err == nil {
		t.Errorf("child %d still alive after timeout", pid)
	}
}

func TestZeroTimeout(t *testing.T) {
	p := NewProcess("/bin/sleep")
	p.Arg("10")

	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if _, err := handle.Finish(0); !IsTimeout(err) {
		t.Errorf("Finish(0) error = %v, want timeout", err)
	}
}

func TestSpawnMissingPath(t *testing.T) {
	before := Waiter().pending()

	p := NewProcess("/nonexistent/no-such-binary")
	_, err := p.Spawn()
	if err == nil {
		t.Fatal("Spawn() of nonexistent path succeeded")
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindIO {
		t.Errorf("Spawn() error = %v, want io kind", err)
	}

	if after := Waiter().pending(); after != before {
		t.Errorf("pending queues changed %d -> %d on failed spawn", before, after)
	}
}

func TestDoubleSpawn(t *testing.T) {
	p := NewProcess("/bin/true")
	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer handle.Finish(time.Second)

	if _, err := p.Spawn(); err == nil {
		t.Error("second Spawn() of the same Process succeeded")
	}
}

func TestSignaledChild(t *testing.T) {
	p := NewProcess("/bin/sleep")
	p.Arg("10")

	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		unix.Kill(handle.Pid(), unix.SIGKILL)
	}()

	if _, err := handle.Finish(5 * time.Second); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if !handle.Status().Signaled() || handle.Status().Signal() != unix.SIGKILL {
		t.Errorf("Status() = %#x, want SIGKILL death", handle.Status())
	}
}

// TestFastExitRace spawns many immediately-exiting children concurrently.
// Every Finish must observe the exit even when the child is reaped before
// the spawner registers interest, and no queues may linger afterwards.
func TestFastExitRace(t *testing.T) {
	const (
		threads   = 16
		perThread = 13 // ~200 children total
	)

	var wg sync.WaitGroup
	errs := make(chan error, threads*perThread)

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perThread; j++ {
				p := NewProcess("/bin/true")
				handle, err := p.Spawn()
				if err != nil {
					errs <- fmt.Errorf("spawn: %w", err)
					continue
				}
				if _, err := handle.Finish(2 * time.Second); err != nil {
					errs <- fmt.Errorf("finish pid %d: %w", handle.Pid(), err)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if n := Waiter().pending(); n != 0 {
		t.Errorf("%d queues still registered after all children finished", n)
	}
}

func TestPtracedChildRunsToCompletion(t *testing.T) {
	p := NewProcess("/bin/echo")
	p.Arg("traced")
	p.WithPtrace(true)

	handle, err := p.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	if _, err := handle.Finish(5 * time.Second); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	out, err := handle.ReadStdout()
	if err != nil {
		t.Fatalf("ReadStdout() error: %v", err)
	}
	if string(out) != "traced\n" {
		t.Errorf("ReadStdout() = %q, want %q", out, "traced\n")
	}
}

func TestReadStdoutBeforeSpawn(t *testing.T) {
	h := &Handle{proc: NewProcess("/bin/true")}
	if _, err := h.ReadStdout(); err == nil {
		t.Error("ReadStdout() on unspawned child succeeded")
	}
}
