package solver

import (
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"b7/proc"
)

// dynamorioTimeout bounds one instrumented run of the target.
const dynamorioTimeout = 5 * time.Second

var instResultRe = regexp.MustCompile(`Instrumentation results: (\d+) instructions executed`)

// DynamorioSolver counts instructions by running the target under the
// drrun launcher with the inscount client and parsing the count the client
// prints to stdout. It requires the "dynpath" variable to point at the
// root of the built toolchain.
type DynamorioSolver struct{}

// GetInstCount spawns {dynpath}/bin64/drrun -c {dynpath}/api/bin/libinscount.so
// -- target args..., feeds it the candidate stdin, and parses the reported
// instruction count.
func (DynamorioSolver) GetInstCount(data InstCountData) (int64, error) {
	dynpath, ok := data.Vars["dynpath"]
	if !ok || dynpath == "" {
		return 0, proc.NewError(proc.KindMissingArgs, "dynpath is not configured")
	}

	p := proc.NewProcess(filepath.Join(dynpath, "bin64", "drrun"))
	p.Arg("-c")
	p.Arg(filepath.Join(dynpath, "api", "bin", "libinscount.so"))
	p.Arg("--")
	p.Arg(data.Path)
	for _, arg := range data.Inp.Argv {
		p.Arg(string(arg))
	}
	p.Input(data.Inp.Stdin)

	handle, err := p.Spawn()
	if err != nil {
		return 0, err
	}
	if _, err := handle.Finish(dynamorioTimeout); err != nil {
		return 0, err
	}

	out, err := handle.ReadStdout()
	if err != nil {
		return 0, err
	}
	return parseInstCount(out)
}

// parseInstCount extracts the instruction count from instrumentation
// output. It is a left inverse of the client's output format: for any
// count n, parsing "Instrumentation results: n instructions executed"
// yields n back.
func parseInstCount(out []byte) (int64, error) {
	m := instResultRe.FindSubmatch(out)
	if m == nil {
		return 0, proc.NewError(proc.KindIO, "could not parse instrumentation output")
	}
	n, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return 0, proc.WrapError(proc.KindIO, "malformed instruction count", err)
	}
	return n, nil
}
