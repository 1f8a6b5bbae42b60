package proc

import (
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// killGrace is how long Finish waits for the exit event after SIGKILLing a
// timed-out child, so the wait-map entry can be cleaned instead of leaked.
const killGrace = 500 * time.Millisecond

// Handle represents one live spawned child. Exactly one Handle exists per
// pid; dropping it without observing the exit leaks the child unless it is
// killed explicitly.
type Handle struct {
	pid    int
	recv   <-chan WaitEvent
	proc   *Process
	waiter *ProcessWaiter

	status unix.WaitStatus // terminal status, valid once done is set
	done   bool
}

// Pid returns the kernel process identifier, stable until the child is
// reaped.
func (h *Handle) Pid() int {
	return h.pid
}

// Status returns the terminal wait status. Valid only after Finish has
// returned successfully.
func (h *Handle) Status() unix.WaitStatus {
	return h.status
}

// Finish waits for the child to run to completion, resuming it after every
// trace stop if it was spawned under tracing. On deadline expiry the child
// is SIGKILLed (process group first, then the pid) and a timeout error is
// returned; the child never outlives a timed-out Finish.
//
// For a traced child, Finish must be called on the goroutine that called
// Spawn. The OS-thread pin taken at spawn is released when Finish returns.
func (h *Handle) Finish(timeout time.Duration) (int, error) {
	defer h.proc.unlockThread()

	if h.done {
		return 0, NewError(KindRunner, "child already finished")
	}

	start := time.Now()
	for {
		remaining := timeout - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}

		select {
		case ev := <-h.recv:
			if ev.Status.Exited() || ev.Status.Signaled() {
				h.finalize(ev.Status)
				return h.pid, nil
			}

			// Stopped or Continued: a traced child sits in a trace stop
			// until told to resume.
			if h.proc.ptrace && ev.Status.Stopped() {
				if err := unix.PtraceCont(h.pid, 0); err != nil {
					h.kill()
					return 0, WrapError(KindSyscall, "ptrace continue", err)
				}
			}
			if time.Since(start) > timeout {
				return 0, h.timeoutKill()
			}

		case <-time.After(remaining):
			return 0, h.timeoutKill()
		}
	}
}

// ReadStdout reads the child's captured stdout to end of stream and
// releases the pipe. Call it only after Finish has returned; on a live
// child it blocks until the child closes its end.
func (h *Handle) ReadStdout() ([]byte, error) {
	if h.proc == nil || !h.proc.spawned {
		return nil, NewError(KindRunner, "child process not running")
	}
	if h.proc.stdout == nil {
		return nil, NewError(KindRunner, "stdout already consumed")
	}
	buf, err := io.ReadAll(h.proc.stdout)
	if err != nil {
		return nil, WrapError(KindIO, "reading child stdout", err)
	}
	h.proc.stdout.Close()
	h.proc.stdout = nil
	return buf, nil
}

// ReadStderr reads the child's captured stderr to end of stream and
// releases the pipe. Same calling rules as ReadStdout.
func (h *Handle) ReadStderr() ([]byte, error) {
	if h.proc == nil || !h.proc.spawned {
		return nil, NewError(KindRunner, "child process not running")
	}
	if h.proc.stderr == nil {
		return nil, NewError(KindRunner, "stderr already consumed")
	}
	buf, err := io.ReadAll(h.proc.stderr)
	if err != nil {
		return nil, WrapError(KindIO, "reading child stderr", err)
	}
	h.proc.stderr.Close()
	h.proc.stderr = nil
	return buf, nil
}

// Kill forcibly terminates the child and consumes its exit event so the
// waiter does not keep a stale queue for the pid. Releases the OS-thread
// pin of a traced child that will never reach Finish.
func (h *Handle) Kill() {
	defer h.proc.unlockThread()
	if !h.done {
		h.kill()
	}
}

// finalize records the terminal status and drops the pid's wait-map entry.
func (h *Handle) finalize(status unix.WaitStatus) {
	h.status = status
	h.done = true
	h.waiter.release(h.pid)
}

// timeoutKill kills the child on deadline expiry, then waits briefly for
// the reaper to deliver the exit before dropping the map entry.
func (h *Handle) timeoutKill() error {
	h.kill()
	return NewError(KindTimeout, "child timed out")
}

func (h *Handle) kill() {
	// The group first: a traced or forking target may have descendants.
	unix.Kill(-h.pid, unix.SIGKILL)
	unix.Kill(h.pid, unix.SIGKILL)
	h.proc.closePipes()

	grace := time.After(killGrace)
	for {
		select {
		case ev := <-h.recv:
			if ev.Status.Exited() || ev.Status.Signaled() {
				h.finalize(ev.Status)
				return
			}
		case <-grace:
			// The exit never arrived; give the entry up rather than leak it.
			h.done = true
			h.waiter.release(h.pid)
			return
		}
	}
}
