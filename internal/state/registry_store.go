// ./internal/state/registry_store.go
package state

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/yieldhook/internal/types"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRegistration(ctx context.Context, db execer, reg types.AssetRegistration) error {
	stmt := `
		INSERT INTO asset_registrations (asset, receipt_asset, supported, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (asset) DO UPDATE
		SET receipt_asset = EXCLUDED.receipt_asset,
		    supported = EXCLUDED.supported,
		    updated_at = CURRENT_TIMESTAMP;`
	if _, err := db.ExecContext(ctx, stmt, reg.Asset, reg.ReceiptAsset, reg.Supported); err != nil {
		return fmt.Errorf("failed to save registration for %s: %w", reg.Asset, err)
	}
	return nil
}

func saveRouterParameters(ctx context.Context, db execer, params types.RouterParameters) error {
	stmt := `
		INSERT INTO router_config (id, reserve_ratio_bps, updated_at)
		VALUES (1, $1, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET reserve_ratio_bps = EXCLUDED.reserve_ratio_bps,
		    updated_at = CURRENT_TIMESTAMP;`
	if _, err := db.ExecContext(ctx, stmt, int64(params.ReserveRatioBps)); err != nil {
		return fmt.Errorf("failed to save router config: %w", err)
	}
	return nil
}

// SaveRouterParameters upserts the router configuration row.
func SaveRouterParameters(ctx context.Context, params types.RouterParameters) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return saveRouterParameters(ctx, DB, params)
}

// LoadRegistry restores every registry entry and the router configuration. found is false when
// no configuration row exists yet, in which case params is zero and callers keep their defaults.
func LoadRegistry(ctx context.Context) (regs []types.AssetRegistration, params types.RouterParameters, found bool, err error) {
	if DB == nil {
		return nil, types.RouterParameters{}, false, fmt.Errorf("database not initialized")
	}

	rows, err := DB.QueryContext(ctx, `SELECT asset, receipt_asset, supported FROM asset_registrations ORDER BY asset;`)
	if err != nil {
		return nil, types.RouterParameters{}, false, fmt.Errorf("failed to query asset registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reg types.AssetRegistration
		if err := rows.Scan(&reg.Asset, &reg.ReceiptAsset, &reg.Supported); err != nil {
			return nil, types.RouterParameters{}, false, fmt.Errorf("failed to scan asset registration: %w", err)
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, types.RouterParameters{}, false, fmt.Errorf("failed to iterate asset registrations: %w", err)
	}

	var ratio int64
	err = DB.QueryRowContext(ctx, `SELECT reserve_ratio_bps FROM router_config WHERE id = 1;`).Scan(&ratio)
	switch {
	case err == sql.ErrNoRows:
		log.Info().Int("registrations", len(regs)).Msg("No persisted router config, using defaults")
		return regs, types.RouterParameters{}, false, nil
	case err != nil:
		return nil, types.RouterParameters{}, false, fmt.Errorf("failed to load router config: %w", err)
	}

	log.Info().
		Int("registrations", len(regs)).
		Int64("reserveRatioBps", ratio).
		Msg("Loaded router registry")
	return regs, types.RouterParameters{ReserveRatioBps: uint64(ratio)}, true, nil
}
