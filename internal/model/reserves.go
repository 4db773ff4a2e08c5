package model

import (
	"github.com/holiman/uint256"
)

// Reserves is a vault's current holdings available for swaps and withdrawals.
// FFT is expressed in the token's smallest unit.
type Reserves struct {
	NFT uint64
	FFT *uint256.Int
}

// Of returns the reserve of kind k as a uint256.
func (r Reserves) Of(k Kind) *uint256.Int {
	if k == KindNFT {
		return uint256.NewInt(r.NFT)
	}
	if r.FFT == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(r.FFT)
}

// Clone returns a deep copy.
func (r Reserves) Clone() Reserves {
	out := Reserves{NFT: r.NFT, FFT: new(uint256.Int)}
	if r.FFT != nil {
		out.FFT.Set(r.FFT)
	}
	return out
}
