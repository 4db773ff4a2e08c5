// Package asset describes the external ledger that moves fungible balances
// and NFT ownership, and provides an in-memory book implementing it.
package asset

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Native is the pseudo token address of the chain's native currency. The
// registry collects deployment fees in it.
var Native = common.Address{}

// Ledger moves assets between holders. Each call is all-or-nothing: on error
// no balance has changed.
type Ledger interface {
	TransferFungible(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error
	TransferNFT(ctx context.Context, collection, from, to common.Address, count uint64) error
}

// Metadata resolves fungible token metadata.
type Metadata interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}
