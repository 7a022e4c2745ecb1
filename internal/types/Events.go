/*

This file contains the notifications emitted by the router. Each one is a durable log entry
correlated to the transaction that produced it.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventType names a router notification.
type EventType string

const (
	EventAssetStaked         EventType = "ASSET_STAKED"
	EventAssetWithdrawn      EventType = "ASSET_WITHDRAWN"
	EventReserveRatioUpdated EventType = "RESERVE_RATIO_UPDATED"
	EventAssetRegistered     EventType = "ASSET_REGISTERED"
	EventAssetUnregistered   EventType = "ASSET_UNREGISTERED"
	EventYieldHarvested      EventType = "YIELD_HARVESTED"
)

// RouterEvent is a single emitted notification.
// Amount carries the staked/withdrawn amount, or for YIELD_HARVESTED the receipt token's
// total balance after the claim (a balance snapshot, not a measured profit).
type RouterEvent struct {
	Sequence     uint64      `json:"sequence"` // assigned by the journal
	TxID         string      `json:"tx_id"`
	Type         EventType   `json:"type"`
	Asset        string      `json:"asset,omitempty"`
	ReceiptAsset string      `json:"receipt_asset,omitempty"`
	Amount       sdkmath.Int `json:"amount,omitempty"`
	Claimed      sdkmath.Int `json:"claimed,omitempty"` // YIELD_HARVESTED: reward amount paid out
	OldRatioBps  uint64      `json:"old_ratio_bps,omitempty"`
	NewRatioBps  uint64      `json:"new_ratio_bps,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}
