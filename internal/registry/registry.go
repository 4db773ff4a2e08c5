// Package registry deploys controller/vault pairs against a fee and governs
// their pairings. Only the registry that owns a controller or vault may
// re-pair it.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/asset"
	"hotswap/internal/controller"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
	"hotswap/internal/vault"
)

// DefaultDeploymentFee is 0.001 of the native currency.
var DefaultDeploymentFee = uint256.NewInt(1_000_000_000_000_000)

type Config struct {
	DeploymentFee *uint256.Int
	Controller    controller.Config
}

func DefaultConfig() Config {
	return Config{
		DeploymentFee: new(uint256.Int).Set(DefaultDeploymentFee),
		Controller:    controller.DefaultConfig(),
	}
}

// Registry is a pair factory. Its own address receives deployment fees and
// owns every pair it governs.
type Registry struct {
	addr  common.Address
	admin common.Address
	cfg   Config

	table   *pairing.Table
	deps    controller.Deps
	emitter events.Emitter
	logger  *zap.Logger

	mu          sync.RWMutex
	pairs       []model.Pairing
	controllers map[common.Address]*controller.Controller
	collected   *uint256.Int
}

// New deploys a registry administered by admin at the next address of admin.
func New(table *pairing.Table, deps controller.Deps, admin common.Address, cfg Config) (*Registry, error) {
	if cfg.DeploymentFee == nil {
		cfg.DeploymentFee = new(uint256.Int)
	}
	if err := cfg.Controller.Validate(); err != nil {
		return nil, err
	}
	deps.Config = cfg.Controller
	deps.Emitter = events.OrNop(deps.Emitter)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	addr := table.NextAddress(admin)
	return &Registry{
		addr:        addr,
		admin:       admin,
		cfg:         cfg,
		table:       table,
		deps:        deps,
		emitter:     deps.Emitter,
		logger:      deps.Logger.With(zap.String("registry", addr.Hex())),
		controllers: make(map[common.Address]*controller.Controller),
		collected:   new(uint256.Int),
	}, nil
}

func (r *Registry) Address() common.Address { return r.addr }

func (r *Registry) Admin() common.Address { return r.admin }

func (r *Registry) Table() *pairing.Table { return r.table }

// DeployPair creates a controller and a vault for (nft, fft) and binds them.
// fee, in the native currency, must cover the deployment fee and is kept by
// the registry in full.
func (r *Registry) DeployPair(ctx context.Context, caller, nft, fft common.Address, fee *uint256.Int) (model.Pairing, error) {
	if nft == fft {
		return model.Pairing{}, errs.ErrAssetMismatch.Wrapf("nft and fft are both %s", nft.Hex())
	}
	if fee == nil || fee.Lt(r.cfg.DeploymentFee) {
		return model.Pairing{}, errs.ErrInsufficientFee.Wrapf("paid %s, required %s", feeString(fee), r.cfg.DeploymentFee.Dec())
	}

	var out model.Pairing
	err := r.table.Atomic(func() error {
		decimals, err := r.deps.Metadata.Decimals(ctx, fft)
		if err != nil {
			return fmt.Errorf("token decimals %s: %w", fft.Hex(), err)
		}
		if err := r.deps.Ledger.TransferFungible(ctx, asset.Native, caller, r.addr, fee); err != nil {
			return errs.ErrTransferFailed.Wrapf("deployment fee from %s: %v", caller.Hex(), err)
		}

		ctrl, err := controller.New(r.table, r.deps, r.table.NextAddress(r.addr), r.addr, nft, fft, decimals)
		if err != nil {
			return err
		}
		v := r.table.NewVault(r.addr, r.addr, r.vaultOptions(nft, fft))
		if _, err := r.table.Bind(ctrl.Address(), v.Address(), r.addr, r.addr); err != nil {
			return err
		}

		r.mu.Lock()
		out = model.Pairing{
			Pair:       model.Pair{ID: uint64(len(r.pairs)), NFT: nft, FFT: fft},
			Controller: ctrl.Address(),
			Vault:      v.Address(),
		}
		r.pairs = append(r.pairs, out)
		r.controllers[ctrl.Address()] = ctrl
		r.collected = new(uint256.Int).Add(r.collected, fee)
		r.mu.Unlock()

		r.logger.Info("pair deployed",
			zap.Uint64("pair_id", out.Pair.ID),
			zap.String("controller", out.Controller.Hex()),
			zap.String("vault", out.Vault.Hex()),
			zap.String("nft", nft.Hex()),
			zap.String("fft", fft.Hex()),
		)
		r.emitter.Emit(model.Deployed{
			Registry:   r.addr,
			PairID:     out.Pair.ID,
			Controller: out.Controller,
			Vault:      out.Vault,
			NFT:        nft,
			FFT:        fft,
		})
		return nil
	})
	return out, err
}

// DeployVault creates an unbound vault for (nft, fft) owned by caller, ready
// to be handed to SetLiquidity.
func (r *Registry) DeployVault(caller, nft, fft common.Address) *vault.Vault {
	return r.table.NewVault(caller, caller, r.vaultOptions(nft, fft))
}

// DeployController creates an unbound controller for (nft, fft) owned by
// caller, ready to be handed to SetController.
func (r *Registry) DeployController(ctx context.Context, caller, nft, fft common.Address) (*controller.Controller, error) {
	return controller.Deploy(ctx, r.table, r.deps, caller, nft, fft)
}

func (r *Registry) vaultOptions(nft, fft common.Address) vault.Options {
	return vault.Options{
		NFT:     nft,
		FFT:     fft,
		Ledger:  r.deps.Ledger,
		Emitter: r.deps.Emitter,
		Logger:  r.deps.Logger,
	}
}

// Pair returns the pairing slot id.
func (r *Registry) Pair(id uint64) (model.Pairing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id >= uint64(len(r.pairs)) {
		return model.Pairing{}, errs.ErrUnknownEntity.Wrapf("pair %d", id)
	}
	return r.pairs[id], nil
}

// Pairs returns every slot, including ones zeroed by SetFactory.
func (r *Registry) Pairs() []model.Pairing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Pairing, len(r.pairs))
	copy(out, r.pairs)
	return out
}

// Controller returns a controller this registry currently governs.
func (r *Registry) Controller(addr common.Address) (*controller.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[addr]
	return c, ok
}

// Vault returns the vault deployed at addr.
func (r *Registry) Vault(addr common.Address) (*vault.Vault, bool) {
	return r.table.Vault(addr)
}

// CollectedFees returns deployment fees not yet withdrawn.
func (r *Registry) CollectedFees() *uint256.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(uint256.Int).Set(r.collected)
}

// WithdrawFees sends every collected deployment fee to the given address.
func (r *Registry) WithdrawFees(ctx context.Context, caller, to common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := r.table.Atomic(func() error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		amount := r.CollectedFees()
		if amount.IsZero() {
			paid = amount
			return nil
		}
		if err := r.deps.Ledger.TransferFungible(ctx, asset.Native, r.addr, to, amount); err != nil {
			return errs.ErrTransferFailed.Wrapf("fee sweep to %s: %v", to.Hex(), err)
		}
		r.mu.Lock()
		r.collected = new(uint256.Int)
		r.mu.Unlock()
		paid = amount
		r.logger.Info("fees withdrawn", zap.String("to", to.Hex()), zap.String("amount", amount.Dec()))
		return nil
	})
	return paid, err
}

// Verify checks that every live pairing is bound on both sides.
func (r *Registry) Verify() error {
	for _, p := range r.Pairs() {
		if !p.Live() {
			continue
		}
		if err := r.table.Check(p.Controller, p.Vault); err != nil {
			return errs.ErrPairingInvariantViolation.Wrapf("pair %d: %v", p.Pair.ID, err)
		}
	}
	return nil
}

// Snapshot captures the pair slots and the state of every live vault.
func (r *Registry) Snapshot(chainID uint64) model.Snapshot {
	snap := model.Snapshot{ChainID: chainID, Registry: r.addr, Pairs: r.Pairs()}
	for _, p := range snap.Pairs {
		if !p.Live() {
			continue
		}
		v, ok := r.table.Vault(p.Vault)
		if !ok {
			continue
		}
		positions := v.Positions(model.KindNFT)
		positions = append(positions, v.Positions(model.KindFFT)...)
		snap.Vaults = append(snap.Vaults, model.VaultSnapshot{
			Address:    v.Address(),
			Controller: r.table.ControllerOf(v.Address()),
			Reserves:   v.Reserves(),
			FeeBalance: v.FeeBalance(),
			Positions:  positions,
		})
	}
	return snap
}

func (r *Registry) requireAdmin(caller common.Address) error {
	if caller != r.admin {
		return errs.ErrUnauthorized.Wrapf("%s is not the registry admin", caller.Hex())
	}
	return nil
}

func feeString(fee *uint256.Int) string {
	if fee == nil {
		return "0"
	}
	return fee.Dec()
}
