package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event names as they appear in emitted logs.
const (
	EventDeployed       = "HotswapDeployed"
	EventSwap           = "Swap"
	EventDeposited      = "Deposited"
	EventWithdrawn      = "Withdrawn"
	EventFeeClaimed     = "FeeClaimed"
	EventPriceUpdated   = "PriceUpdated"
	EventRebound        = "Rebound"
	EventFactoryChanged = "FactoryChanged"
)

// Event is a record emitted by a successful operation for external indexers.
type Event interface {
	EventName() string
	// Source is the address of the component that emitted the event.
	Source() common.Address
}

// Deployed is emitted by a registry when it creates a controller/vault pair.
type Deployed struct {
	Registry   common.Address
	PairID     uint64
	Controller common.Address
	Vault      common.Address
	NFT        common.Address
	FFT        common.Address
}

func (Deployed) EventName() string         { return EventDeployed }
func (e Deployed) Source() common.Address { return e.Registry }

// SwapRecord describes a settled swap. SettlementPrice × NFTAmount == FFTAmount.
type SwapRecord struct {
	Controller      common.Address
	Trader          common.Address
	NFTAmount       uint64
	FFTAmount       *uint256.Int
	Fee             *uint256.Int
	Direction       Direction
	SettlementPrice *uint256.Int
}

func (SwapRecord) EventName() string         { return EventSwap }
func (e SwapRecord) Source() common.Address { return e.Controller }

// Deposited is emitted by a vault when a position is opened.
type Deposited struct {
	Vault  common.Address
	Owner  common.Address
	Kind   Kind
	Index  uint64
	Amount *uint256.Int
}

func (Deposited) EventName() string         { return EventDeposited }
func (e Deposited) Source() common.Address { return e.Vault }

// Withdrawn is emitted by a vault when principal is paid back.
type Withdrawn struct {
	Vault  common.Address
	Owner  common.Address
	Kind   Kind
	Index  uint64
	Amount *uint256.Int
}

func (Withdrawn) EventName() string         { return EventWithdrawn }
func (e Withdrawn) Source() common.Address { return e.Vault }

// FeeClaimed is emitted by a vault when accrued fee is paid out.
type FeeClaimed struct {
	Vault  common.Address
	Owner  common.Address
	Kind   Kind
	Index  uint64
	Amount *uint256.Int
}

func (FeeClaimed) EventName() string         { return EventFeeClaimed }
func (e FeeClaimed) Source() common.Address { return e.Vault }

// PriceUpdated is emitted by a controller on an explicit price refresh.
type PriceUpdated struct {
	Controller common.Address
	Price      *uint256.Int
}

func (PriceUpdated) EventName() string         { return EventPriceUpdated }
func (e PriceUpdated) Source() common.Address { return e.Controller }

// Rebound is emitted by a registry after a hot swap rewrote a pairing.
type Rebound struct {
	Registry           common.Address
	Controller         common.Address
	Vault              common.Address
	PreviousController common.Address
	PreviousVault      common.Address
}

func (Rebound) EventName() string         { return EventRebound }
func (e Rebound) Source() common.Address { return e.Registry }

// FactoryChanged is emitted when governance of a controller moves to another registry.
type FactoryChanged struct {
	Registry   common.Address
	Controller common.Address
	NewFactory common.Address
}

func (FactoryChanged) EventName() string         { return EventFactoryChanged }
func (e FactoryChanged) Source() common.Address { return e.Registry }
