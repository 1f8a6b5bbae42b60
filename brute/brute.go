// Package brute drives the instruction-count search. It generates
// candidate inputs for the target, measures each candidate through an
// InstCounter, and keeps whichever candidate made the target execute the
// most instructions, on the premise that a correct input steers execution
// past more of the program's checks.
package brute

import (
	"bytes"
	"fmt"
	"time"

	"b7/log"
	"b7/solver"
	"b7/tui"
)

// Search depth limits. Candidate inputs beyond these sizes stop improving
// real targets long before the limits are reached.
const (
	maxStdinLen = 32
	maxArgc     = 5
	maxArgLen   = 16
)

// Options configures one run of the search.
type Options struct {
	// Path is the target executable.
	Path string

	// ArgvBrute and StdinBrute select which inputs to search for.
	ArgvBrute  bool
	StdinBrute bool

	// Solver measures candidates.
	Solver solver.InstCounter

	// UI receives per-generation results. Nil means no UI.
	UI tui.UI

	// Logger receives progress and per-candidate failures. Nil means
	// silent.
	Logger log.LibraryLogger

	// Vars is passed through to the solver (e.g. dynpath).
	Vars map[string]string

	// Workers is the number of concurrent measurement goroutines.
	// Zero means 1.
	Workers int
}

// Results holds what the search discovered.
type Results struct {
	Argv      []string
	Stdin     string
	InstCount int64
	Tries     int
	Duration  time.Duration
}

// Run executes the configured searches and returns the discovered inputs.
func Run(opts Options) (*Results, error) {
	if opts.Solver == nil {
		return nil, fmt.Errorf("no solver configured")
	}
	if opts.Logger == nil {
		opts.Logger = log.NoOpLogger{}
	}
	if opts.UI == nil {
		opts.UI = tui.NewEnvUI(log.NoOpLogger{})
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	b := &bruter{opts: opts}
	start := time.Now()

	res := &Results{}
	if opts.ArgvBrute {
		argv, count, err := b.bruteArgv()
		if err != nil {
			return nil, err
		}
		for _, a := range argv {
			res.Argv = append(res.Argv, string(a))
		}
		res.InstCount = count
		// Later searches run with the discovered argv in place.
		b.argv = argv
	}
	if opts.StdinBrute {
		stdin, count, err := b.bruteStdin()
		if err != nil {
			return nil, err
		}
		res.Stdin = string(stdin)
		res.InstCount = count
	}

	res.Tries = b.tries
	res.Duration = time.Since(start)
	opts.UI.Done()
	return res, nil
}

// bruter carries search state across generations.
type bruter struct {
	opts  Options
	argv  [][]byte // fixed argv for stdin search, set by the argv search
	tries int
}

// bruteStdin finds a stdin payload: first the length that maximizes the
// count, then the byte at each position in turn.
func (b *bruter) bruteStdin() ([]byte, int64, error) {
	b.opts.Logger.Info("bruting stdin length...")

	lengths := make([]candidate, 0, maxStdinLen+1)
	for n := 0; n <= maxStdinLen; n++ {
		payload := bytes.Repeat([]byte{'A'}, n)
		lengths = append(lengths, candidate{
			label: fmt.Sprintf("len %d", n),
			inp:   solver.Input{Argv: b.argv, Stdin: payload},
		})
	}
	best, bestCount, err := b.runGeneration(lengths)
	if err != nil {
		return nil, 0, fmt.Errorf("stdin length search: %w", err)
	}

	payload := append([]byte(nil), best.inp.Stdin...)
	b.opts.Logger.Info("stdin length %d (count %d), bruting bytes...", len(payload), bestCount)

	for pos := range payload {
		cands := make([]candidate, 0, 256)
		for c := 0; c < 256; c++ {
			trial := append([]byte(nil), payload...)
			trial[pos] = byte(c)
			cands = append(cands, candidate{
				label: printableLabel(byte(c)),
				inp:   solver.Input{Argv: b.argv, Stdin: trial},
			})
		}
		best, bestCount, err = b.runGeneration(cands)
		if err != nil {
			return nil, 0, fmt.Errorf("stdin byte %d search: %w", pos, err)
		}
		payload[pos] = best.inp.Stdin[pos]
		b.opts.Logger.Debug("stdin[%d] = %q (count %d)", pos, payload[pos], bestCount)
	}

	return payload, bestCount, nil
}

// bruteArgv finds an argument vector: the argument count, each argument's
// length, then each argument's bytes.
func (b *bruter) bruteArgv() ([][]byte, int64, error) {
	b.opts.Logger.Info("bruting argument count...")

	counts := make([]candidate, 0, maxArgc+1)
	for n := 0; n <= maxArgc; n++ {
		argv := make([][]byte, n)
		for i := range argv {
			argv[i] = []byte{'A'}
		}
		counts = append(counts, candidate{
			label: fmt.Sprintf("argc %d", n),
			inp:   solver.Input{Argv: argv},
		})
	}
	best, bestCount, err := b.runGeneration(counts)
	if err != nil {
		return nil, 0, fmt.Errorf("argc search: %w", err)
	}

	argv := cloneArgv(best.inp.Argv)
	b.opts.Logger.Info("argc %d (count %d), bruting argument lengths...", len(argv), bestCount)

	for i := range argv {
		cands := make([]candidate, 0, maxArgLen)
		for n := 1; n <= maxArgLen; n++ {
			trial := cloneArgv(argv)
			trial[i] = bytes.Repeat([]byte{'A'}, n)
			cands = append(cands, candidate{
				label: fmt.Sprintf("arg%d len %d", i, n),
				inp:   solver.Input{Argv: trial},
			})
		}
		best, bestCount, err = b.runGeneration(cands)
		if err != nil {
			return nil, 0, fmt.Errorf("arg %d length search: %w", i, err)
		}
		argv = cloneArgv(best.inp.Argv)
	}

	b.opts.Logger.Info("bruting argument bytes...")
	for i := range argv {
		for pos := range argv[i] {
			cands := make([]candidate, 0, 256)
			for c := 0; c < 256; c++ {
				if c == 0 {
					// Arguments are NUL-terminated on the way to exec.
					continue
				}
				trial := cloneArgv(argv)
				trial[i][pos] = byte(c)
				cands = append(cands, candidate{
					label: printableLabel(byte(c)),
					inp:   solver.Input{Argv: trial},
				})
			}
			best, bestCount, err = b.runGeneration(cands)
			if err != nil {
				return nil, 0, fmt.Errorf("arg %d byte %d search: %w", i, pos, err)
			}
			argv = cloneArgv(best.inp.Argv)
		}
	}

	return argv, bestCount, nil
}

func cloneArgv(argv [][]byte) [][]byte {
	out := make([][]byte, len(argv))
	for i, a := range argv {
		out[i] = append([]byte(nil), a...)
	}
	return out
}

func printableLabel(c byte) string {
	if c >= 0x20 && c < 0x7f {
		return string([]byte{c})
	}
	return fmt.Sprintf("\\x%02x", c)
}
