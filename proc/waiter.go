// Package proc spawns target binaries under a process-wide child waiter and
// hands out per-child handles for awaiting exit under a deadline.
//
// SIGCHLD for the whole process is owned by a single reaper goroutine
// started with the waiter singleton. Children spawned through the waiter
// must never be waited on directly (no exec.Cmd.Wait); the reaper reaps
// every child and fans the wait statuses out to per-pid queues consumed by
// Handle.Finish.
package proc

import (
	"sync"
	"time"

	"b7/log"

	"golang.org/x/sys/unix"
)

// WaitEvent is one waitpid result for a child, as delivered by the reaper.
// The pid is carried alongside the status so consumers never have to guess
// which child a status belongs to.
type WaitEvent struct {
	Pid    int
	Status unix.WaitStatus
}

// chanPair holds the two ends of a per-pid event queue. The sender side is
// used only by the reaper; the receiver side is taken exactly once by the
// spawner.
type chanPair struct {
	ch    chan WaitEvent
	taken bool
}

// eventQueueCap bounds a per-pid queue. A child produces at most a handful
// of statuses between Finish receives (trace stops, continue, exit), so the
// queue never fills in practice; if it ever does the reaper drops the event
// rather than block.
const eventQueueCap = 64

func newChanPair() *chanPair {
	return &chanPair{ch: make(chan WaitEvent, eventQueueCap)}
}

func (cp *chanPair) takeRecv() (<-chan WaitEvent, error) {
	if cp.taken {
		return nil, NewError(KindUnknown, "receiver already taken")
	}
	cp.taken = true
	return cp.ch, nil
}

// ProcessWaiter multiplexes child-exit handling for the entire process.
// There is exactly one instance, obtained from Waiter; a second instance
// would fight the first over SIGCHLD delivery.
type ProcessWaiter struct {
	mu        sync.Mutex
	procChans map[int]*chanPair
	logger    log.LibraryLogger
}

var (
	waiterOnce sync.Once
	waiter     *ProcessWaiter
)

// Waiter returns the process-wide ProcessWaiter, constructing it on first
// use. Construction routes SIGCHLD to the reaper and starts the reaper
// goroutine.
func Waiter() *ProcessWaiter {
	waiterOnce.Do(func() {
		BlockChildSignal()
		waiter = &ProcessWaiter{
			procChans: make(map[int]*chanPair),
			logger:    log.NoOpLogger{},
		}
		go waiter.reap()
	})
	return waiter
}

// SetLogger directs reaper diagnostics somewhere visible. The reaper never
// propagates errors to callers, so this is the only way to observe them.
func (w *ProcessWaiter) SetLogger(l log.LibraryLogger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l == nil {
		l = log.NoOpLogger{}
	}
	w.logger = l
}

// SpawnProcess starts the described child and registers it with the reaper,
// returning the Handle used to await it. The stdin payload is written and
// stdin closed before the pid is registered; a child that exits during that
// window still gets its exit event queued, because the reaper creates the
// queue itself when it reaps an unregistered pid.
func (w *ProcessWaiter) SpawnProcess(p *Process) (*Handle, error) {
	if err := p.start(); err != nil {
		return nil, err
	}
	pid := p.cmd.Process.Pid

	if err := p.writeInput(); err != nil {
		// The child is already running; kill it and consume its exit so
		// neither the child nor its queue entry lingers.
		if h, herr := w.handleFor(pid, p); herr == nil {
			h.kill()
		} else {
			unix.Kill(pid, unix.SIGKILL)
		}
		return nil, err
	}

	return w.handleFor(pid, p)
}

// handleFor takes the receiver half of pid's queue and wraps it in a
// Handle.
func (w *ProcessWaiter) handleFor(pid int, p *Process) (*Handle, error) {
	w.mu.Lock()
	recv, err := w.pairLocked(pid).takeRecv()
	w.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Handle{pid: pid, recv: recv, proc: p, waiter: w}, nil
}

// pairLocked returns the queue for pid, creating it if neither the reaper
// nor a spawner has yet. Callers must hold w.mu.
func (w *ProcessWaiter) pairLocked(pid int) *chanPair {
	pair, ok := w.procChans[pid]
	if !ok {
		pair = newChanPair()
		w.procChans[pid] = pair
	}
	return pair
}

// release drops the queue for a pid whose terminal event has been consumed.
func (w *ProcessWaiter) release(pid int) {
	w.mu.Lock()
	delete(w.procChans, pid)
	w.mu.Unlock()
}

// pending reports how many pids currently have queues registered.
func (w *ProcessWaiter) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.procChans)
}

// reap runs for the life of the process. Each wakeup (a SIGCHLD
// notification, or the 1-second tick in case one was lost) drains every
// reapable child status, because the kernel coalesces SIGCHLD: one
// notification can stand for many children.
func (w *ProcessWaiter) reap() {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-sigChld:
		case <-tick.C:
		}
		w.drainWaits()
	}
}

// drainWaits repeatedly calls non-blocking waitpid until no child is ready.
// The mutex is held for the whole drain, but never across a blocking call:
// WNOHANG guarantees each waitpid returns immediately.
func (w *ProcessWaiter) drainWaits() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.ECHILD:
			return
		default:
			// A malformed wait result must not poison unrelated pids.
			w.logger.Error("waitpid: %v", err)
			return
		}
		if pid <= 0 {
			// No child ready.
			return
		}

		pair := w.pairLocked(pid)
		select {
		case pair.ch <- WaitEvent{Pid: pid, Status: ws}:
		default:
			w.logger.Error("event queue full for pid %d, dropping status %#x", pid, ws)
		}
	}
}
