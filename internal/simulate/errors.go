package simulate

import (
	"strings"

	"hotswap/internal/errs"
)

var errorNames = map[string]error{
	"zero-liquidity":              errs.ErrZeroLiquidity,
	"slippage-exceeded":           errs.ErrSlippageExceeded,
	"insufficient-reserve":        errs.ErrInsufficientReserve,
	"transfer-failed":             errs.ErrTransferFailed,
	"no-such-position":            errs.ErrNoSuchPosition,
	"position-already-withdrawn":  errs.ErrPositionAlreadyWithdrawn,
	"unauthorized":                errs.ErrUnauthorized,
	"pairing-invariant-violation": errs.ErrPairingInvariantViolation,
	"invalid-amount":              errs.ErrInvalidAmount,
	"insufficient-fee":            errs.ErrInsufficientFee,
	"asset-mismatch":              errs.ErrAssetMismatch,
	"unknown-entity":              errs.ErrUnknownEntity,
	"overflow":                    errs.ErrOverflow,
}

// ErrorByName maps a kebab-case error name, as used by expect-error, to its
// coded error.
func ErrorByName(name string) (error, bool) {
	err, ok := errorNames[strings.ToLower(strings.TrimSpace(name))]
	return err, ok
}
