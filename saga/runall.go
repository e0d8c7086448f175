package saga

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregateStats summarizes the outcomes of a RunAll call.
type AggregateStats struct {
	Total         int
	Succeeded     int
	Failed        int
	SuccessRate   float64
	TotalDuration time.Duration
}

// RunAll runs each of runs as an independent Run of s, concurrently, and
// returns every Outcome aligned positionally with runs plus aggregate
// stats. One run's failure never cancels the others; s.Run already
// performs its own compensation per failing run.
func RunAll(ctx context.Context, s *Saga, runs [][]Step) ([]Outcome, AggregateStats) {
	outcomes := make([]Outcome, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, steps := range runs {
		i, steps := i, steps
		g.Go(func() error {
			o := s.Run(gctx, steps)
			mu.Lock()
			outcomes[i] = o
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var stats AggregateStats
	stats.Total = len(outcomes)
	for _, o := range outcomes {
		stats.TotalDuration += o.Duration
		if o.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return outcomes, stats
}
