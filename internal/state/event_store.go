// ./internal/state/event_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldhook/internal/types"
)

// EventSink persists committed router events. It satisfies events.Sink.
type EventSink struct{}

// NewEventSink returns a sink writing to the global DB.
func NewEventSink() *EventSink {
	return &EventSink{}
}

func (s *EventSink) HandleEvent(ctx context.Context, event types.RouterEvent) error {
	_, err := SaveEvent(ctx, event)
	return err
}

// SaveEvent stores a committed event and, in the same transaction, projects registry and
// configuration changes into asset_registrations and router_config.
func SaveEvent(ctx context.Context, event types.RouterEvent) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	query := `
		INSERT INTO router_events (
			sequence, tx_id, event_type, asset, receipt_asset,
			amount, claimed, old_ratio_bps, new_ratio_bps, event_timestamp, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (sequence) DO NOTHING
		RETURNING event_id;
	`

	var eventID int64
	err = tx.QueryRowContext(ctx, query,
		event.Sequence, event.TxID, string(event.Type), nullString(event.Asset), nullString(event.ReceiptAsset),
		nullAmount(event.Amount), nullAmount(event.Claimed), nullRatio(event, event.OldRatioBps), nullRatio(event, event.NewRatioBps),
		event.Timestamp, payload,
	).Scan(&eventID)
	if err == sql.ErrNoRows {
		// Already stored by a previous run.
		err = nil
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert router event %d: %w", event.Sequence, err)
	}

	switch event.Type {
	case types.EventAssetRegistered, types.EventAssetUnregistered:
		err = saveRegistration(ctx, tx, types.AssetRegistration{
			Asset:        event.Asset,
			ReceiptAsset: event.ReceiptAsset,
			Supported:    event.Type == types.EventAssetRegistered,
		})
	case types.EventReserveRatioUpdated:
		err = saveRouterParameters(ctx, tx, types.RouterParameters{ReserveRatioBps: event.NewRatioBps})
	}
	if err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Debug().
		Int64("event_id", eventID).
		Uint64("sequence", event.Sequence).
		Str("type", string(event.Type)).
		Msg("Router event saved to database")
	return eventID, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullAmount(v sdkmath.Int) sql.NullString {
	if v.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullRatio(event types.RouterEvent, v uint64) sql.NullInt64 {
	if event.Type != types.EventReserveRatioUpdated {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
