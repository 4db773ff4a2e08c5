package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// VaultSnapshot is the persisted state of one vault.
type VaultSnapshot struct {
	Address    common.Address
	Controller common.Address
	Reserves   Reserves
	FeeBalance *uint256.Int
	Positions  []Position
}

// Snapshot is the persisted state of a registry and the vaults it governs.
type Snapshot struct {
	ChainID  uint64
	Registry common.Address
	Pairs    []Pairing
	Vaults   []VaultSnapshot
}
