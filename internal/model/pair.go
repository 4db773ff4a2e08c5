package model

import "github.com/ethereum/go-ethereum/common"

// Pair identifies one (NFT collection, fungible token) market.
type Pair struct {
	ID  uint64         `json:"id"`
	NFT common.Address `json:"nft"`
	FFT common.Address `json:"fft"`
}

// Pairing is the live controller/vault binding for a pair. A zeroed pairing
// marks a slot whose governance moved to another registry.
type Pairing struct {
	Pair       Pair           `json:"pair"`
	Controller common.Address `json:"controller"`
	Vault      common.Address `json:"vault"`
}

// Live reports whether the slot still holds a binding.
func (p Pairing) Live() bool {
	return p.Controller != (common.Address{}) && p.Vault != (common.Address{})
}
