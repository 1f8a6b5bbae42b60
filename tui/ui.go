// Package tui renders the progress of a brute run. The search driver feeds
// each generation's per-candidate instruction counts to a UI; the bundled
// implementations are EnvUI (plain logger output) and BarUI (a tcell/tview
// bar chart).
package tui

import (
	"sort"

	"b7/log"
)

// Result pairs one candidate input with its measured instruction count.
type Result struct {
	Label string
	Count int64
}

// UI receives per-generation results from the search driver.
type UI interface {
	// Update is called once per generation with every scored candidate
	// and the best count within that generation.
	Update(results []Result, best int64)

	// Done signals that all generations have finished.
	Done()

	// Close tears the UI down.
	Close()
}

// EnvUI logs generation summaries through a LibraryLogger. It is the
// non-interactive UI used for tests and --no-ui runs.
type EnvUI struct {
	Log log.LibraryLogger
}

// NewEnvUI returns an EnvUI writing to the given logger, or a silent one
// when nil.
func NewEnvUI(l log.LibraryLogger) *EnvUI {
	if l == nil {
		l = log.NoOpLogger{}
	}
	return &EnvUI{Log: l}
}

// Update logs the top candidates of the generation.
func (u *EnvUI) Update(results []Result, best int64) {
	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })

	top := sorted
	if len(top) > 5 {
		top = top[:5]
	}
	u.Log.Info("generation: %d candidates, best %d", len(results), best)
	for _, r := range top {
		u.Log.Debug("  %-12q %d", r.Label, r.Count)
	}
}

// Done logs completion.
func (u *EnvUI) Done() {
	u.Log.Info("search finished")
}

// Close is a no-op for the logger-backed UI.
func (u *EnvUI) Close() {}
