package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is one provider's indexed claim on deposited principal plus accrued fee.
// Index is scoped per Kind and never reused. AccruedFee is always in fungible units.
type Position struct {
	Index      uint64         `json:"index"`
	Kind       Kind           `json:"kind"`
	Owner      common.Address `json:"owner"`
	Principal  *uint256.Int   `json:"principal"`
	AccruedFee *uint256.Int   `json:"accrued_fee"`
	Withdrawn  bool           `json:"withdrawn"`
}

// Clone returns a deep copy of the position.
func (p Position) Clone() Position {
	out := p
	out.Principal = cloneInt(p.Principal)
	out.AccruedFee = cloneInt(p.AccruedFee)
	return out
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
