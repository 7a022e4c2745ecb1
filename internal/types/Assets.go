/*

This file contains the asset registration entry kept by the router for every asset that
participates in yield routing.

*/

package types

// AssetRegistration maps an underlying asset to the receipt token the lending service issues for it.
type AssetRegistration struct {
	Asset        string `json:"asset"`         // e.g., "uusdc"
	ReceiptAsset string `json:"receipt_asset"` // e.g., "ausdc", kept after unregistering
	Supported    bool   `json:"supported"`
}

// RouterParameters holds the process-wide router configuration.
type RouterParameters struct {
	ReserveRatioBps uint64 `json:"reserve_ratio_bps"` // share of holdings kept liquid, 0-10000
}
