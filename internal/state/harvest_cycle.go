package state

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// HarvestCycle returns the number of the last harvest cycle started, or 0 before the first one.
func HarvestCycle(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var cycle int64
	err := DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(last_cycle), 0) FROM harvest_cycle;`).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("failed to read harvest cycle: %w", err)
	}
	return int(cycle), nil
}

// NextHarvestCycle records the start of a new harvest cycle and returns its number.
func NextHarvestCycle(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	stmt := `
		INSERT INTO harvest_cycle (id, last_cycle, started_at)
		VALUES (1, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET last_cycle = harvest_cycle.last_cycle + 1,
		    started_at = CURRENT_TIMESTAMP
		RETURNING last_cycle;`
	var cycle int64
	if err := DB.QueryRowContext(ctx, stmt).Scan(&cycle); err != nil {
		return 0, fmt.Errorf("failed to advance harvest cycle: %w", err)
	}
	log.Debug().Int64("cycle", cycle).Msg("Advanced harvest cycle")
	return int(cycle), nil
}

// SetHarvestCycle overwrites the cycle number. The reset script uses it.
func SetHarvestCycle(ctx context.Context, cycle int) error {
	if cycle < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycle)
	}
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	stmt := `
		INSERT INTO harvest_cycle (id, last_cycle, started_at)
		VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET last_cycle = EXCLUDED.last_cycle,
		    started_at = EXCLUDED.started_at;`
	if _, err := DB.ExecContext(ctx, stmt, int64(cycle)); err != nil {
		return fmt.Errorf("failed to set harvest cycle to %d: %w", cycle, err)
	}
	log.Warn().Int("cycle", cycle).Msg("Harvest cycle overwritten")
	return nil
}
