package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"hotswap/internal/asset"
	"hotswap/internal/controller"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
)

var (
	admin    = common.HexToAddress("0xad")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	treasury = common.HexToAddress("0x7ea5")
	nft      = common.HexToAddress("0x1111")
	fft      = common.HexToAddress("0x2222")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	book *asset.Book
	rec  *events.Recorder
	reg  *Registry
	deps controller.Deps
}

func newFixture(t *testing.T, table *pairing.Table) *fixture {
	t.Helper()
	if table == nil {
		table = pairing.NewTable()
	}
	book := asset.NewBook()
	book.RegisterToken(fft, 18)
	for _, who := range []common.Address{admin, alice, bob} {
		book.Mint(asset.Native, who, ether(10))
		book.Mint(fft, who, ether(10_000))
		book.MintNFT(nft, who, 50)
	}
	rec := events.NewRecorder()
	deps := controller.Deps{Ledger: book, Metadata: book, Emitter: rec}
	reg, err := New(table, deps, admin, DefaultConfig())
	require.NoError(t, err)
	return &fixture{book: book, rec: rec, reg: reg, deps: deps}
}

func (f *fixture) deploy(t *testing.T) (model.Pairing, *controller.Controller) {
	t.Helper()
	p, err := f.reg.DeployPair(context.Background(), alice, nft, fft, DefaultDeploymentFee)
	require.NoError(t, err)
	c, ok := f.reg.Controller(p.Controller)
	require.True(t, ok)
	return p, c
}

func TestDeployPair(t *testing.T) {
	f := newFixture(t, nil)
	p, c := f.deploy(t)

	require.Equal(t, uint64(0), p.Pair.ID)
	require.True(t, p.Live())
	require.Equal(t, p.Vault, c.Vault())
	require.Equal(t, f.reg.Address(), c.Owner())
	require.Equal(t, uint8(18), c.Decimals())
	require.NoError(t, f.reg.Verify())

	require.Equal(t, DefaultDeploymentFee, f.reg.CollectedFees())
	require.Equal(t, DefaultDeploymentFee, f.book.Balance(asset.Native, f.reg.Address()))

	deployed := f.rec.Named(model.EventDeployed)
	require.Len(t, deployed, 1)
	require.Equal(t, p.Controller, deployed[0].(model.Deployed).Controller)

	second, err := f.reg.DeployPair(context.Background(), bob, nft, fft, ether(1))
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.Pair.ID)
	require.NotEqual(t, p.Controller, second.Controller)
	require.Len(t, f.reg.Pairs(), 2)
}

func TestDeployPairInsufficientFee(t *testing.T) {
	f := newFixture(t, nil)
	low := new(uint256.Int).SubUint64(DefaultDeploymentFee, 1)
	_, err := f.reg.DeployPair(context.Background(), alice, nft, fft, low)
	require.ErrorIs(t, err, errs.ErrInsufficientFee)
	require.Empty(t, f.reg.Pairs())
	require.True(t, f.reg.CollectedFees().IsZero())
}

func TestDeployPairFeeTransferFails(t *testing.T) {
	f := newFixture(t, nil)
	poor := common.HexToAddress("0xdead")
	_, err := f.reg.DeployPair(context.Background(), poor, nft, fft, DefaultDeploymentFee)
	require.ErrorIs(t, err, errs.ErrTransferFailed)
	require.Empty(t, f.reg.Pairs())
}

func TestHotSwapController(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p, old := f.deploy(t)
	_, err := old.DepositNFT(ctx, alice, 10)
	require.NoError(t, err)
	_, err = old.DepositFFT(ctx, alice, ether(900))
	require.NoError(t, err)

	next, err := f.reg.DeployController(ctx, admin, nft, fft)
	require.NoError(t, err)

	_, err = f.reg.SetController(alice, p.Vault, next)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	rb, err := f.reg.SetController(admin, p.Vault, next)
	require.NoError(t, err)
	require.Equal(t, old.Address(), rb.PreviousController)

	require.Equal(t, p.Vault, next.Vault())
	require.Equal(t, next.Address(), f.reg.Table().ControllerOf(p.Vault))
	require.Equal(t, common.Address{}, old.Vault())
	require.Equal(t, admin, old.Owner())
	require.Equal(t, f.reg.Address(), next.Owner())
	require.NoError(t, f.reg.Verify())

	_, err = old.SwapFFT(ctx, bob, 1, ether(1_000))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	v, ok := f.reg.Vault(p.Vault)
	require.True(t, ok)
	_, err = v.Deposit(ctx, old.Address(), alice, model.KindNFT, uint256.NewInt(1))
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	rec, err := next.SwapFFT(ctx, bob, 3, ether(300))
	require.NoError(t, err)
	require.Equal(t, ether(270), rec.FFTAmount)

	slot, err := f.reg.Pair(p.Pair.ID)
	require.NoError(t, err)
	require.Equal(t, next.Address(), slot.Controller)
	_, ok = f.reg.Controller(old.Address())
	require.False(t, ok)
	require.Len(t, f.rec.Named(model.EventRebound), 1)
}

func TestHotSwapVault(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p, c := f.deploy(t)
	_, err := c.DepositNFT(ctx, alice, 4)
	require.NoError(t, err)

	fresh := f.reg.DeployVault(admin, nft, fft)
	rb, err := f.reg.SetLiquidity(admin, c, fresh.Address())
	require.NoError(t, err)
	require.Equal(t, p.Vault, rb.PreviousVault)
	require.Equal(t, fresh.Address(), c.Vault())

	// The retired vault keeps its custody and goes to the caller.
	old, ok := f.reg.Vault(p.Vault)
	require.True(t, ok)
	require.Equal(t, uint64(4), old.Reserves().NFT)
	owner, err := f.reg.Table().OwnerOf(p.Vault)
	require.NoError(t, err)
	require.Equal(t, admin, owner)

	n, err := c.NFTLiquidity()
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, f.reg.Verify())
}

func TestHotSwapRejectsMismatchedAssets(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p, _ := f.deploy(t)
	other := common.HexToAddress("0x3333")
	f.book.RegisterToken(other, 6)

	next, err := f.reg.DeployController(ctx, admin, nft, other)
	require.NoError(t, err)
	_, err = f.reg.SetController(admin, p.Vault, next)
	require.ErrorIs(t, err, errs.ErrAssetMismatch)
	require.NoError(t, f.reg.Verify())
}

func TestHotSwapRejectsForeignController(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p, _ := f.deploy(t)

	foreign, err := f.reg.DeployController(ctx, bob, nft, fft)
	require.NoError(t, err)
	_, err = f.reg.SetController(admin, p.Vault, foreign)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestSetFactoryMigratesPair(t *testing.T) {
	table := pairing.NewTable()
	f := newFixture(t, table)
	ctx := context.Background()
	p, c := f.deploy(t)
	_, err := c.DepositFFT(ctx, alice, ether(5))
	require.NoError(t, err)

	next, err := New(table, f.deps, admin, DefaultConfig())
	require.NoError(t, err)

	_, err = next.SetLiquidity(admin, c, p.Vault)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	require.NoError(t, f.reg.SetFactory(admin, c.Address(), next.Address()))
	slot, err := f.reg.Pair(p.Pair.ID)
	require.NoError(t, err)
	require.False(t, slot.Live())
	require.Len(t, f.rec.Named(model.EventFactoryChanged), 1)

	_, err = f.reg.SetController(admin, p.Vault, c)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = next.SetLiquidity(admin, c, p.Vault)
	require.NoError(t, err)
	pairs := next.Pairs()
	require.Len(t, pairs, 1)
	require.Equal(t, c.Address(), pairs[0].Controller)
	require.Equal(t, p.Vault, pairs[0].Vault)
	require.Equal(t, next.Address(), c.Owner())
	require.NoError(t, next.Verify())

	left, err := c.QueryLiquid(model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(5), left)
}

func TestSetFactoryKeepsOwnershipWhenVaultIsForeign(t *testing.T) {
	table := pairing.NewTable()
	f := newFixture(t, table)
	p, c := f.deploy(t)

	next, err := New(table, f.deps, admin, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, table.TransferOwnership(f.reg.Address(), bob, p.Vault))

	err = f.reg.SetFactory(admin, c.Address(), next.Address())
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	require.Equal(t, f.reg.Address(), c.Owner())
	owner, err := table.OwnerOf(p.Vault)
	require.NoError(t, err)
	require.Equal(t, bob, owner)

	slot, err := f.reg.Pair(p.Pair.ID)
	require.NoError(t, err)
	require.True(t, slot.Live())
	require.Empty(t, f.rec.Named(model.EventFactoryChanged))
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.deploy(t)

	_, err := f.reg.WithdrawFees(ctx, alice, alice)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	paid, err := f.reg.WithdrawFees(ctx, admin, treasury)
	require.NoError(t, err)
	require.Equal(t, DefaultDeploymentFee, paid)
	require.Equal(t, DefaultDeploymentFee, f.book.Balance(asset.Native, treasury))
	require.True(t, f.reg.CollectedFees().IsZero())
}

func TestPairUnknown(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.reg.Pair(3)
	require.ErrorIs(t, err, errs.ErrUnknownEntity)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	p, c := f.deploy(t)
	ctx := context.Background()

	_, err := c.DepositNFT(ctx, alice, 4)
	require.NoError(t, err)
	_, err = c.DepositFFT(ctx, bob, ether(400))
	require.NoError(t, err)

	snap := f.reg.Snapshot(31337)
	require.Equal(t, uint64(31337), snap.ChainID)
	require.Equal(t, f.reg.Address(), snap.Registry)
	require.Len(t, snap.Pairs, 1)
	require.Len(t, snap.Vaults, 1)

	vs := snap.Vaults[0]
	require.Equal(t, p.Vault, vs.Address)
	require.Equal(t, p.Controller, vs.Controller)
	require.Equal(t, uint64(4), vs.Reserves.NFT)
	require.Len(t, vs.Positions, 2)
	require.Equal(t, model.KindNFT, vs.Positions[0].Kind)
	require.Equal(t, bob, vs.Positions[1].Owner)

	require.NoError(t, f.reg.SetFactory(admin, p.Controller, treasury))
	require.Empty(t, f.reg.Snapshot(1).Vaults)
}
