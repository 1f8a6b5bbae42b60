// Package solver measures how many instructions a target binary executes
// for one candidate input. Two interchangeable backends implement the
// InstCounter contract: PerfSolver counts in-process through a pid-scoped
// hardware counter, and DynamorioSolver shells out through a
// dynamic-binary-instrumentation runner and parses the count from its
// stdout.
package solver

// Input is one candidate command line and stdin payload for the target.
// Argument bytes are not required to be valid UTF-8.
type Input struct {
	Argv  [][]byte
	Stdin []byte
}

// Clone returns a deep copy, so generators can mutate candidates without
// aliasing each other's buffers.
func (in Input) Clone() Input {
	out := Input{
		Argv:  make([][]byte, len(in.Argv)),
		Stdin: append([]byte(nil), in.Stdin...),
	}
	for i, a := range in.Argv {
		out.Argv[i] = append([]byte(nil), a...)
	}
	return out
}

// InstCountData carries everything a solver needs for one measurement:
// the target path, the candidate input, and free-form configuration
// variables. The only variable recognized by the bundled solvers is
// "dynpath", the root of the instrumentation toolchain.
type InstCountData struct {
	Path string
	Inp  Input
	Vars map[string]string
}

// InstCounter is implemented by every instruction-count backend. A failed
// measurement surfaces as an error; the search driver treats such a
// candidate as unusable and proceeds.
type InstCounter interface {
	GetInstCount(data InstCountData) (int64, error)
}
