// Package controller prices and settles swaps against the vault it is bound
// to, and routes liquidity provider calls to that vault. A controller holds
// no assets itself.
package controller

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/asset"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
	"hotswap/internal/pricing"
	"hotswap/internal/vault"
)

// DefaultFeeBps is the protocol fee charged on every swap.
const DefaultFeeBps = 30

// Config selects the fee rate and the settlement model of each direction.
type Config struct {
	FeeBps uint32
	// BuyModel settles SwapFFT, where the trader pays fungible tokens.
	BuyModel pricing.Model
	// SellModel settles SwapNFT, where the trader pays NFTs.
	SellModel pricing.Model
}

func DefaultConfig() Config {
	return Config{FeeBps: DefaultFeeBps, BuyModel: pricing.ModelSpot, SellModel: pricing.ModelImpact}
}

// Validate rejects fee rates above 100%.
func (c Config) Validate() error {
	if c.FeeBps > pricing.BasisPoints {
		return errs.ErrInvalidAmount.Wrapf("fee %d bps exceeds %d", c.FeeBps, pricing.BasisPoints)
	}
	return nil
}

// Deps are the collaborators shared by every controller of a deployment.
type Deps struct {
	Ledger   asset.Ledger
	Metadata asset.Metadata
	Emitter  events.Emitter
	Logger   *zap.Logger
	Config   Config
}

// Controller settles swaps for one (NFT, FFT) pair.
type Controller struct {
	addr     common.Address
	nft      common.Address
	fft      common.Address
	decimals uint8
	cfg      Config

	table   *pairing.Table
	ledger  asset.Ledger
	emitter events.Emitter
	logger  *zap.Logger
}

// New registers an unbound controller at addr owned by owner.
func New(table *pairing.Table, deps Deps, addr, owner, nft, fft common.Address, decimals uint8) (*Controller, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if err := table.RegisterController(addr, nft, fft, owner); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		addr:     addr,
		nft:      nft,
		fft:      fft,
		decimals: decimals,
		cfg:      deps.Config,
		table:    table,
		ledger:   deps.Ledger,
		emitter:  events.OrNop(deps.Emitter),
		logger:   logger.With(zap.String("controller", addr.Hex())),
	}, nil
}

// Deploy creates a controller at the next address of deployer, reading the
// fungible token's decimals from metadata. The deployer owns it until a
// registry adopts it.
func Deploy(ctx context.Context, table *pairing.Table, deps Deps, deployer, nft, fft common.Address) (*Controller, error) {
	decimals, err := deps.Metadata.Decimals(ctx, fft)
	if err != nil {
		return nil, fmt.Errorf("token decimals %s: %w", fft.Hex(), err)
	}
	return New(table, deps, table.NextAddress(deployer), deployer, nft, fft, decimals)
}

func (c *Controller) Address() common.Address { return c.addr }

// Assets returns the NFT collection and fungible token the controller trades.
func (c *Controller) Assets() (nft, fft common.Address) { return c.nft, c.fft }

// Decimals is the fungible token's decimals.
func (c *Controller) Decimals() uint8 { return c.decimals }

func (c *Controller) Config() Config { return c.cfg }

// Vault returns the address of the bound vault, or the zero address.
func (c *Controller) Vault() common.Address { return c.table.VaultOf(c.addr) }

func (c *Controller) Owner() common.Address {
	owner, _ := c.table.OwnerOf(c.addr)
	return owner
}

func (c *Controller) vault() (*vault.Vault, error) {
	addr := c.table.VaultOf(c.addr)
	if addr == (common.Address{}) {
		return nil, errs.ErrUnauthorized.Wrapf("controller %s is not bound to a vault", c.addr.Hex())
	}
	v, ok := c.table.Vault(addr)
	if !ok {
		return nil, errs.ErrPairingInvariantViolation.Wrapf("controller %s bound to unknown vault %s", c.addr.Hex(), addr.Hex())
	}
	return v, nil
}

// Reserves returns the bound vault's reserves.
func (c *Controller) Reserves() (model.Reserves, error) {
	v, err := c.vault()
	if err != nil {
		return model.Reserves{}, err
	}
	return v.Reserves(), nil
}

// Price is the standing FFT per NFT ratio of the bound vault.
func (c *Controller) Price() (*uint256.Int, error) {
	r, err := c.Reserves()
	if err != nil {
		return nil, err
	}
	return pricing.Price(r)
}

func (c *Controller) NFTLiquidity() (uint64, error) {
	r, err := c.Reserves()
	if err != nil {
		return 0, err
	}
	return r.NFT, nil
}

func (c *Controller) FFTLiquidity() (*uint256.Int, error) {
	r, err := c.Reserves()
	if err != nil {
		return nil, err
	}
	return r.FFT, nil
}

// Quote previews the settlement of a trade of nftAmount in direction dir
// without changing any state.
func (c *Controller) Quote(nftAmount uint64, dir model.Direction) (pricing.Quote, error) {
	r, err := c.Reserves()
	if err != nil {
		return pricing.Quote{}, err
	}
	return c.model(dir).Quote(r, nftAmount, dir)
}

func (c *Controller) model(dir model.Direction) pricing.Model {
	if dir == model.DirectionFFTIn {
		return c.cfg.BuyModel
	}
	return c.cfg.SellModel
}

// UpdatePrice recomputes the standing price and emits it.
func (c *Controller) UpdatePrice() (*uint256.Int, error) {
	var price *uint256.Int
	err := c.table.Atomic(func() error {
		p, err := c.Price()
		if err != nil {
			return err
		}
		price = p
		c.emitter.Emit(model.PriceUpdated{Controller: c.addr, Price: new(uint256.Int).Set(p)})
		return nil
	})
	return price, err
}
