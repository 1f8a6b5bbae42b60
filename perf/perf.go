// Package perf opens pid-scoped hardware instruction counters through the
// kernel's perf_event_open interface.
package perf

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Counter is an open perf-event file descriptor counting retired
// instructions for one pid. The descriptor is owned exclusively by whoever
// opened it; Close it once the count has been read.
type Counter struct {
	fd int
}

// OpenInstCounter attaches a retired-instruction counter to pid on every
// CPU. The counter starts enabled and is inherited by any threads or
// children the target spawns, so the value read is the total for the whole
// invocation. Kernel and hypervisor instructions are excluded.
//
// Open it while the child sits in its exec stop, so counting effectively
// begins at the first continue.
func OpenInstCounter(pid int) (*Counter, error) {
	attr := unix.PerfEventAttr{
		Type:   unix.PERF_TYPE_HARDWARE,
		Config: unix.PERF_COUNT_HW_INSTRUCTIONS,
		Size:   uint32(unsafe.Sizeof(unix.PerfEventAttr{})),
		Bits:   unix.PerfBitInherit | unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv,
	}

	fd, err := unix.PerfEventOpen(&attr, pid, -1, -1, 0)
	if err != nil {
		return nil, fmt.Errorf("perf_event_open pid %d: %w", pid, err)
	}
	return &Counter{fd: fd}, nil
}

// ReadCount reads the current value of the counter. The kernel hands the
// count back as exactly eight bytes; anything shorter is an error.
func (c *Counter) ReadCount() (int64, error) {
	var buf [8]byte
	n, err := unix.Read(c.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("reading perf counter: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short read from perf counter: %d bytes", n)
	}
	return int64(binary.NativeEndian.Uint64(buf[:])), nil
}

// Close releases the descriptor. Reads after Close fail.
func (c *Counter) Close() error {
	return unix.Close(c.fd)
}
