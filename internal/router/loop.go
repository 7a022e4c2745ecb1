/*

This file contains the periodic harvest loop. Each cycle harvests every supported asset in its own
host transaction so one failing asset does not roll back the others.

*/

package router

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Executor runs fn atomically, e.g. host.Host.
type Executor interface {
	Atomic(ctx context.Context, label string, fn func(ctx context.Context) error) error
}

// CycleCounter returns the next harvest cycle number. The Postgres store persists it across restarts.
type CycleCounter func(ctx context.Context) (int, error)

// HarvestAll harvests every supported asset and returns the successful results.
func (r *Router) HarvestAll(ctx context.Context, exec Executor) ([]HarvestResult, []error) {
	var (
		results []HarvestResult
		errs    []error
	)
	for _, reg := range r.Registrations() {
		if !reg.Supported {
			continue
		}
		asset := reg.Asset
		err := exec.Atomic(ctx, "harvest "+asset, func(ctx context.Context) error {
			res, err := r.HarvestYield(ctx, asset)
			if err != nil {
				return err
			}
			results = append(results, res)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errs
}

// RunHarvestLoop harvests immediately and then on every tick until ctx is cancelled.
func (r *Router) RunHarvestLoop(ctx context.Context, exec Executor, interval time.Duration, next CycleCounter) {
	r.logger.Info().Dur("interval", interval).Msg("Starting harvest loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	localCycle := 0
	runCycle := func() {
		localCycle++
		cycle := localCycle
		if next != nil {
			if n, err := next(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to increment persistent harvest cycle, using local counter")
			} else {
				cycle = n
			}
		}

		cycleLogger := r.logger.With().
			Str("cycle_id", uuid.New().String()).
			Int("cycle", cycle).
			Logger()
		start := time.Now()
		cycleLogger.Info().Msg("--- Starting harvest cycle ---")

		results, errs := r.HarvestAll(ctx, exec)
		for _, err := range errs {
			cycleLogger.Error().Err(err).Msg("Harvest failed")
		}
		cycleLogger.Info().
			Int("harvested", len(results)).
			Int("failed", len(errs)).
			Dur("duration", time.Since(start)).
			Msg("--- Harvest cycle completed ---")
	}

	runCycle()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Harvest loop stopped")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}
