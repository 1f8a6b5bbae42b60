package solver

import (
	"time"

	"b7/perf"
	"b7/proc"
)

// PerfSolver counts instructions in-process through a pid-scoped hardware
// counter. The target is spawned under tracing so it stops at exec; the
// counter is opened against the stopped child and starts counting at the
// first continue, so parent-side setup never pollutes the measurement.
type PerfSolver struct {
	// Timeout bounds one run of the target. Zero means 5 seconds.
	Timeout time.Duration
}

func (s PerfSolver) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 5 * time.Second
}

// GetInstCount runs the target to completion under tracing and returns the
// number of instructions it retired.
func (s PerfSolver) GetInstCount(data InstCountData) (int64, error) {
	p := proc.NewProcess(data.Path)
	for _, arg := range data.Inp.Argv {
		p.Arg(string(arg))
	}
	p.Input(data.Inp.Stdin)
	p.WithPtrace(true)

	handle, err := p.Spawn()
	if err != nil {
		return 0, err
	}

	counter, err := perf.OpenInstCounter(handle.Pid())
	if err != nil {
		handle.Kill()
		return 0, proc.WrapError(proc.KindSyscall, "opening instruction counter", err)
	}
	defer counter.Close()

	if _, err := handle.Finish(s.timeout()); err != nil {
		return 0, err
	}

	count, err := counter.ReadCount()
	if err != nil {
		return 0, proc.WrapError(proc.KindIO, "reading instruction counter", err)
	}
	return count, nil
}
