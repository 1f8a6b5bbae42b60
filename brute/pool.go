package brute

import (
	"fmt"
	"sync"

	"b7/solver"
	"b7/tui"
)

// candidate is one input to measure, with a short label for the UI.
type candidate struct {
	label string
	inp   solver.Input
}

type scored struct {
	cand  candidate
	count int64
	err   error
}

// runGeneration measures every candidate across the worker pool and
// returns the one with the highest instruction count. A candidate whose
// measurement fails is logged and skipped; the generation only fails if no
// candidate could be measured at all.
func (b *bruter) runGeneration(cands []candidate) (candidate, int64, error) {
	if len(cands) == 0 {
		return candidate{}, 0, fmt.Errorf("empty generation")
	}

	work := make(chan candidate)
	results := make(chan scored, len(cands))

	var wg sync.WaitGroup
	for w := 0; w < b.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range work {
				count, err := b.opts.Solver.GetInstCount(solver.InstCountData{
					Path: b.opts.Path,
					Inp:  cand.inp,
					Vars: b.opts.Vars,
				})
				results <- scored{cand: cand, count: count, err: err}
			}
		}()
	}

	for _, cand := range cands {
		work <- cand
	}
	close(work)
	wg.Wait()
	close(results)

	var (
		best      candidate
		bestCount int64 = -1
		uiResults       = make([]tui.Result, 0, len(cands))
	)
	for s := range results {
		b.tries++
		if s.err != nil {
			b.opts.Logger.Warn("candidate %q unusable: %v", s.cand.label, s.err)
			continue
		}
		uiResults = append(uiResults, tui.Result{Label: s.cand.label, Count: s.count})
		if s.count > bestCount {
			best = s.cand
			bestCount = s.count
		}
	}

	if bestCount < 0 {
		return candidate{}, 0, fmt.Errorf("no candidate in generation could be measured")
	}

	b.opts.UI.Update(uiResults, bestCount)
	return best, bestCount, nil
}
