package router

import "errors"

// Error definitions for zero-tolerance error handling
var (
	ErrUnsupportedAsset              = errors.New("asset is not supported")
	ErrInvalidConfiguration          = errors.New("invalid router configuration")
	ErrInsufficientExternalLiquidity = errors.New("lending service cannot satisfy withdrawal")
	ErrUnauthorized                  = errors.New("caller is not the router authority")
	ErrReentrantCall                 = errors.New("reentrant call into router")
	ErrInvalidDenom                  = errors.New("denom is invalid")
)
