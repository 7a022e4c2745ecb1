package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldhook/internal/types"
)

// AssetFlowSummary aggregates the stored events of one asset.
type AssetFlowSummary struct {
	Asset              string      `json:"asset"`
	TotalStaked        sdkmath.Int `json:"total_staked"`
	TotalWithdrawn     sdkmath.Int `json:"total_withdrawn"`
	TotalClaimed       sdkmath.Int `json:"total_claimed"`
	Harvests           int         `json:"harvests"`
	LastReceiptBalance sdkmath.Int `json:"last_receipt_balance"`
	LastEventAt        string      `json:"last_event_at"`
}

// GetRecentEvents retrieves stored events newest first, optionally filtered by type.
func GetRecentEvents(ctx context.Context, limit int, eventTypes ...types.EventType) ([]types.RouterEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 500 {
		limit = 50 // Default limit
	}

	filter := make([]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		filter = append(filter, string(t))
	}

	query := `
		SELECT
			sequence, tx_id, event_type, asset, receipt_asset,
			amount, claimed, old_ratio_bps, new_ratio_bps, event_timestamp
		FROM router_events
		WHERE cardinality($1::text[]) = 0 OR event_type = ANY($1)
		ORDER BY sequence DESC
		LIMIT $2
	`

	rows, err := DB.QueryContext(ctx, query, pq.Array(filter), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent events")
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var out []types.RouterEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan event row")
			continue // Skip this row and continue with others
		}
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(out)).Int("limit", limit).Msg("Retrieved recent events")
	return out, nil
}

// GetEventBySequence retrieves a single stored event.
func GetEventBySequence(ctx context.Context, sequence uint64) (*types.RouterEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	row := DB.QueryRowContext(ctx, `
		SELECT
			sequence, tx_id, event_type, asset, receipt_asset,
			amount, claimed, old_ratio_bps, new_ratio_bps, event_timestamp
		FROM router_events
		WHERE sequence = $1`, sequence)

	ev, err := scanEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("event with sequence %d not found", sequence)
		}
		return nil, fmt.Errorf("failed to query event by sequence: %w", err)
	}
	return &ev, nil
}

// LastEventSequence returns the highest stored sequence, or 0 when no event was stored.
func LastEventSequence(ctx context.Context) (uint64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var seq int64
	if err := DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM router_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get last event sequence: %w", err)
	}
	return uint64(seq), nil
}

// GetAssetFlowSummary aggregates staking, withdrawal and harvest history for asset.
func GetAssetFlowSummary(ctx context.Context, asset string) (*AssetFlowSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE event_type = $2), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE event_type = $3), 0)::text,
			COALESCE(SUM(claimed) FILTER (WHERE event_type = $4), 0)::text,
			COUNT(*) FILTER (WHERE event_type = $4),
			MAX(event_timestamp)
		FROM router_events
		WHERE asset = $1
	`

	var staked, withdrawn, claimed string
	var lastAt sql.NullTime
	summary := &AssetFlowSummary{Asset: asset, LastReceiptBalance: sdkmath.ZeroInt()}
	err := DB.QueryRowContext(ctx, query, asset,
		string(types.EventAssetStaked), string(types.EventAssetWithdrawn), string(types.EventYieldHarvested),
	).Scan(&staked, &withdrawn, &claimed, &summary.Harvests, &lastAt)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events for %s: %w", asset, err)
	}

	if summary.TotalStaked, err = parseNumeric(staked); err != nil {
		return nil, err
	}
	if summary.TotalWithdrawn, err = parseNumeric(withdrawn); err != nil {
		return nil, err
	}
	if summary.TotalClaimed, err = parseNumeric(claimed); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		summary.LastEventAt = lastAt.Time.UTC().Format(time.RFC3339)
	}

	var balance sql.NullString
	err = DB.QueryRowContext(ctx, `
		SELECT amount::text FROM router_events
		WHERE asset = $1 AND event_type = $2
		ORDER BY sequence DESC LIMIT 1`, asset, string(types.EventYieldHarvested)).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last harvest for %s: %w", asset, err)
	}
	if balance.Valid {
		if summary.LastReceiptBalance, err = parseNumeric(balance.String); err != nil {
			return nil, err
		}
	}

	log.Debug().Str("asset", asset).Int("harvests", summary.Harvests).Msg("Retrieved asset flow summary")
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (types.RouterEvent, error) {
	var (
		ev                 types.RouterEvent
		eventType          string
		seq                int64
		asset, receipt     sql.NullString
		amount, claimed    sql.NullString
		oldRatio, newRatio sql.NullInt64
	)
	if err := row.Scan(&seq, &ev.TxID, &eventType, &asset, &receipt, &amount, &claimed, &oldRatio, &newRatio, &ev.Timestamp); err != nil {
		return types.RouterEvent{}, err
	}
	ev.Sequence = uint64(seq)
	ev.Type = types.EventType(eventType)
	ev.Asset = asset.String
	ev.ReceiptAsset = receipt.String
	ev.OldRatioBps = uint64(oldRatio.Int64)
	ev.NewRatioBps = uint64(newRatio.Int64)

	var err error
	if amount.Valid {
		if ev.Amount, err = parseNumeric(amount.String); err != nil {
			return types.RouterEvent{}, err
		}
	}
	if claimed.Valid {
		if ev.Claimed, err = parseNumeric(claimed.String); err != nil {
			return types.RouterEvent{}, err
		}
	}
	return ev, nil
}

func parseNumeric(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric amount %q", s)
	}
	return v, nil
}
