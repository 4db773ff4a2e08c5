// Package errs holds the coded error taxonomy shared by the vault, pricing,
// controller and registry packages.
package errs

import (
	"cosmossdk.io/errors"
)

// Codespace is the error codespace for all hotswap errors.
const Codespace = "hotswap"

var (
	ErrZeroLiquidity             = errors.Register(Codespace, 2, "zero nft liquidity, price undefined")
	ErrSlippageExceeded          = errors.Register(Codespace, 3, "slippage bound exceeded")
	ErrInsufficientReserve       = errors.Register(Codespace, 4, "insufficient reserve")
	ErrTransferFailed            = errors.Register(Codespace, 5, "asset transfer failed")
	ErrNoSuchPosition            = errors.Register(Codespace, 6, "no such position")
	ErrPositionAlreadyWithdrawn  = errors.Register(Codespace, 7, "position already withdrawn")
	ErrUnauthorized              = errors.Register(Codespace, 8, "unauthorized")
	ErrPairingInvariantViolation = errors.Register(Codespace, 9, "pairing invariant violation")
	ErrInvalidAmount             = errors.Register(Codespace, 10, "invalid amount")
	ErrInsufficientFee           = errors.Register(Codespace, 11, "deployment fee too low")
	ErrAssetMismatch             = errors.Register(Codespace, 12, "asset pair mismatch")
	ErrUnknownEntity             = errors.Register(Codespace, 13, "unknown controller or vault")
	ErrOverflow                  = errors.Register(Codespace, 14, "arithmetic overflow")
)
