package pipeline

import (
	"context"
	"log"

	"github.com/audiostudio/api/internal/metrics"
	"github.com/audiostudio/api/internal/stage"
)

// Governor bounds how many segments may be processed at once across all
// running jobs, and coordinates GPU cache reclamation between segments.
type Governor struct {
	sem        chan struct{}
	reclaimers []stage.Reclaimer
	metrics    *metrics.Collector
}

// NewGovernor creates a governor with maxConcurrent slots. Values below 1
// are raised to 1.
func NewGovernor(maxConcurrent int, reclaimers []stage.Reclaimer, collector *metrics.Collector) *Governor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Governor{
		sem:        make(chan struct{}, maxConcurrent),
		reclaimers: reclaimers,
		metrics:    collector,
	}
}

// Acquire blocks until a processing slot is free or ctx is done.
func (g *Governor) Acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		g.metrics.SetGovernorSlots(len(g.sem))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (g *Governor) Release() {
	select {
	case <-g.sem:
	default:
	}
	g.metrics.SetGovernorSlots(len(g.sem))
}

// Reclaim asks every reclaimable stage host to drop cached model state.
// Reclamation is best effort; failures are logged and ignored.
func (g *Governor) Reclaim(ctx context.Context) {
	for _, r := range g.reclaimers {
		if err := r.Reclaim(ctx); err != nil {
			log.Printf("Cache reclaim failed: %v", err)
		}
	}
}
