// Package vault custodies deposited NFTs and fungible tokens for one pair.
// It records indexed liquidity positions and distributes swap fees to them.
// Reserve-changing operations are accepted only from the controller the
// authority currently binds to the vault.
package vault

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/asset"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
)

// Authority answers which controller is currently bound to a vault.
type Authority interface {
	ControllerOf(vault common.Address) common.Address
}

// Options configures a vault.
type Options struct {
	NFT     common.Address
	FFT     common.Address
	Ledger  asset.Ledger
	Emitter events.Emitter
	Logger  *zap.Logger
}

// Vault holds reserves and positions for one (NFT, FFT) pair.
type Vault struct {
	addr      common.Address
	nft       common.Address
	fft       common.Address
	authority Authority
	ledger    asset.Ledger
	emitter   events.Emitter
	logger    *zap.Logger

	mu         sync.RWMutex
	reserves   [2]*uint256.Int
	positions  [2][]*model.Position
	feeBalance *uint256.Int
}

// New returns an empty vault at addr.
func New(addr common.Address, authority Authority, opts Options) *Vault {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		addr:       addr,
		nft:        opts.NFT,
		fft:        opts.FFT,
		authority:  authority,
		ledger:     opts.Ledger,
		emitter:    events.OrNop(opts.Emitter),
		logger:     logger.With(zap.String("vault", addr.Hex())),
		reserves:   [2]*uint256.Int{new(uint256.Int), new(uint256.Int)},
		feeBalance: new(uint256.Int),
	}
}

func (v *Vault) Address() common.Address { return v.addr }

// Assets returns the NFT collection and fungible token of the pair.
func (v *Vault) Assets() (nft, fft common.Address) { return v.nft, v.fft }

func (v *Vault) authorize(by common.Address) error {
	bound := v.authority.ControllerOf(v.addr)
	if bound == (common.Address{}) || bound != by {
		return errs.ErrUnauthorized.Wrapf("%s is not the controller bound to vault %s", by.Hex(), v.addr.Hex())
	}
	return nil
}

// Reserves returns a snapshot of the current reserves.
func (v *Vault) Reserves() model.Reserves {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return model.Reserves{NFT: v.reserves[model.KindNFT].Uint64(), FFT: new(uint256.Int).Set(v.reserves[model.KindFFT])}
}

// FeeBalance returns fees credited to positions and not yet claimed.
func (v *Vault) FeeBalance() *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(uint256.Int).Set(v.feeBalance)
}

// Position returns a copy of the position at index of kind.
func (v *Vault) Position(kind model.Kind, index uint64) (model.Position, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, err := v.lookup(kind, index)
	if err != nil {
		return model.Position{}, err
	}
	return p.Clone(), nil
}

// Positions returns copies of every position of kind, withdrawn ones included.
func (v *Vault) Positions(kind model.Kind) []model.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !kind.Valid() {
		return nil
	}
	out := make([]model.Position, 0, len(v.positions[kind]))
	for _, p := range v.positions[kind] {
		out = append(out, p.Clone())
	}
	return out
}

// PositionsOf returns copies of every position held by owner.
func (v *Vault) PositionsOf(owner common.Address) []model.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []model.Position
	for _, k := range model.Kinds {
		for _, p := range v.positions[k] {
			if p.Owner == owner {
				out = append(out, p.Clone())
			}
		}
	}
	return out
}

// OpenPrincipal sums the principal of open positions of kind.
func (v *Vault) OpenPrincipal(kind model.Kind) *uint256.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.openPrincipal(kind)
}

func (v *Vault) openPrincipal(kind model.Kind) *uint256.Int {
	sum := new(uint256.Int)
	for _, p := range v.positions[kind] {
		if !p.Withdrawn {
			sum.Add(sum, p.Principal)
		}
	}
	return sum
}

func (v *Vault) lookup(kind model.Kind, index uint64) (*model.Position, error) {
	if !kind.Valid() {
		return nil, errs.ErrNoSuchPosition.Wrapf("unknown kind %d", kind)
	}
	if index >= uint64(len(v.positions[kind])) {
		return nil, errs.ErrNoSuchPosition.Wrapf("%s position %d", kind, index)
	}
	return v.positions[kind][index], nil
}

// Payout releases amount of kind from custody to the given address. Reserve
// accounting is the caller's responsibility.
func (v *Vault) Payout(ctx context.Context, by, to common.Address, kind model.Kind, amount *uint256.Int) error {
	if err := v.authorize(by); err != nil {
		return err
	}
	return v.transfer(ctx, kind, v.addr, to, amount)
}

func (v *Vault) transfer(ctx context.Context, kind model.Kind, from, to common.Address, amount *uint256.Int) error {
	var err error
	switch kind {
	case model.KindNFT:
		if !amount.IsUint64() {
			return errs.ErrOverflow.Wrapf("nft count %s", amount.Dec())
		}
		err = v.ledger.TransferNFT(ctx, v.nft, from, to, amount.Uint64())
	case model.KindFFT:
		err = v.ledger.TransferFungible(ctx, v.fft, from, to, amount)
	default:
		return errs.ErrInvalidAmount.Wrapf("unknown kind %d", kind)
	}
	if err != nil {
		return errs.ErrTransferFailed.Wrapf("%s %s from %s to %s: %v", kind, amount.Dec(), from.Hex(), to.Hex(), err)
	}
	return nil
}
