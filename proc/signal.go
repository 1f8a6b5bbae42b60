package proc

import (
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	sigOnce sync.Once

	// sigChld receives SIGCHLD notifications for the whole process. The
	// buffer only needs to absorb bursts between reaper wakeups; the kernel
	// coalesces pending SIGCHLDs anyway, and every wakeup drains all
	// reapable children regardless of how many notifications arrived.
	sigChld = make(chan os.Signal, 32)
)

// BlockChildSignal routes SIGCHLD to the reaper's channel for the entire
// process. Signal routing in Go is process-wide, so a single call suffices
// no matter how many goroutines later spawn children; calling it N times is
// the same as calling it once.
//
// It must run before any goroutine spawns a child through the waiter. The
// waiter calls it on construction, but a test harness that spawns worker
// goroutines before first touching the waiter should call it from TestMain
// to meet the invariant.
func BlockChildSignal() {
	sigOnce.Do(func() {
		signal.Notify(sigChld, unix.SIGCHLD)
	})
}
