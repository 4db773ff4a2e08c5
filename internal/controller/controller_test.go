package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"hotswap/internal/asset"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
	"hotswap/internal/pairing"
	"hotswap/internal/pricing"
	"hotswap/internal/vault"
)

var (
	admin = common.HexToAddress("0xad")
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	nft   = common.HexToAddress("0x1111")
	fft   = common.HexToAddress("0x2222")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func dec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

type fixture struct {
	table *pairing.Table
	book  *asset.Book
	rec   *events.Recorder
	ctrl  *Controller
	vault *vault.Vault
}

// failingLedger fails transfers of the NFT collection out of from.
type failingLedger struct {
	*asset.Book
	from common.Address
}

func (l failingLedger) TransferNFT(ctx context.Context, collection, from, to common.Address, count uint64) error {
	if from == l.from {
		return errors.New("nft transfer reverted")
	}
	return l.Book.TransferNFT(ctx, collection, from, to, count)
}

func newFixture(t *testing.T, cfg Config, wrap func(*asset.Book) asset.Ledger) *fixture {
	t.Helper()
	book := asset.NewBook()
	book.RegisterToken(fft, 18)
	for _, who := range []common.Address{alice, bob} {
		book.Mint(fft, who, ether(10_000))
		book.MintNFT(nft, who, 50)
	}
	var ledger asset.Ledger = book
	if wrap != nil {
		ledger = wrap(book)
	}
	rec := events.NewRecorder()
	tbl := pairing.NewTable()
	deps := Deps{Ledger: ledger, Metadata: book, Emitter: rec, Config: cfg}

	ctrl, err := Deploy(context.Background(), tbl, deps, admin, nft, fft)
	require.NoError(t, err)
	v := tbl.NewVault(admin, admin, vault.Options{NFT: nft, FFT: fft, Ledger: ledger, Emitter: rec})
	_, err = tbl.Bind(ctrl.Address(), v.Address(), admin, admin)
	require.NoError(t, err)
	return &fixture{table: tbl, book: book, rec: rec, ctrl: ctrl, vault: v}
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	n0, err := f.ctrl.DepositNFT(ctx, alice, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(0), n0.Index)
	f0, err := f.ctrl.DepositFFT(ctx, alice, ether(900))
	require.NoError(t, err)
	require.Equal(t, uint64(0), f0.Index)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	require.Equal(t, uint8(18), f.ctrl.Decimals())
	price, err := f.ctrl.Price()
	require.NoError(t, err)
	require.Equal(t, ether(90), price)

	maxIn := dec("283500000000000000000") // 3 × 90e18 × 1.05
	rec, err := f.ctrl.SwapFFT(ctx, bob, 3, maxIn)
	require.NoError(t, err)

	require.Equal(t, model.DirectionFFTIn, rec.Direction)
	require.Equal(t, rec.FFTAmount, new(uint256.Int).Mul(rec.SettlementPrice, uint256.NewInt(3)))
	require.Equal(t, ether(270), rec.FFTAmount)
	require.Equal(t, dec("810000000000000000"), rec.Fee)

	nftLeft, err := f.ctrl.NFTLiquidity()
	require.NoError(t, err)
	require.Equal(t, uint64(7), nftLeft)

	// The fee is carved out of the settled amount: the reserve grows by the
	// rest and the fee is held for the NFT positions.
	fftLeft, err := f.ctrl.FFTLiquidity()
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(ether(900), new(uint256.Int).Sub(rec.FFTAmount, rec.Fee)), fftLeft)
	require.Equal(t, dec("1169190000000000000000"), fftLeft)
	require.Equal(t, rec.Fee, f.vault.FeeBalance())
	held := new(uint256.Int).Add(fftLeft, f.vault.FeeBalance())
	require.Equal(t, ether(1_170), held)
	require.Equal(t, ether(1_170), f.book.Balance(fft, f.vault.Address()))
	require.Equal(t, uint64(53), f.book.NFTBalance(nft, bob))

	swaps := f.rec.Named(model.EventSwap)
	require.Len(t, swaps, 1)
	require.Equal(t, rec, swaps[0])
}

func TestSwapWithoutFeeMovesFullSettlementIntoReserve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeeBps = 0
	f := newFixture(t, cfg, nil)
	f.seed(t)

	rec, err := f.ctrl.SwapFFT(context.Background(), bob, 3, ether(300))
	require.NoError(t, err)
	require.True(t, rec.Fee.IsZero())
	fftLeft, err := f.ctrl.FFTLiquidity()
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Add(ether(900), rec.FFTAmount), fftLeft)
}

func TestSwapFFTSlippageBoundaryIsExact(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	q, err := f.ctrl.Quote(3, model.DirectionFFTIn)
	require.NoError(t, err)

	below := new(uint256.Int).SubUint64(q.FFTAmount, 1)
	_, err = f.ctrl.SwapFFT(ctx, bob, 3, below)
	require.ErrorIs(t, err, errs.ErrSlippageExceeded)
	r, err := f.ctrl.Reserves()
	require.NoError(t, err)
	require.Equal(t, uint64(10), r.NFT)
	require.Equal(t, ether(900), r.FFT)

	_, err = f.ctrl.SwapFFT(ctx, bob, 3, q.FFTAmount)
	require.NoError(t, err)
}

func TestSwapNFTSettlesAtImpactRatio(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	q, err := f.ctrl.Quote(2, model.DirectionNFTIn)
	require.NoError(t, err)
	require.Equal(t, ether(60), q.SettlementPrice) // (900-180)/(10+2)
	require.Equal(t, ether(120), q.FFTAmount)

	fee := pricing.Fee(q.FFTAmount, DefaultFeeBps)
	net := f.ctrl.Proceeds(q)
	require.Equal(t, new(uint256.Int).Sub(q.FFTAmount, fee), net)

	before := f.book.Balance(fft, bob)
	rec, err := f.ctrl.SwapNFT(ctx, bob, 2, net)
	require.NoError(t, err)
	require.Equal(t, fee, rec.Fee)
	received := new(uint256.Int).Sub(f.book.Balance(fft, bob), before)
	require.Equal(t, net, received)

	r, err := f.ctrl.Reserves()
	require.NoError(t, err)
	require.Equal(t, uint64(12), r.NFT)
	require.Equal(t, ether(780), r.FFT)

	// The fungible provider absorbed the payout and earned the fee.
	p, err := f.vault.Position(model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(780), p.Principal)
	require.Equal(t, fee, p.AccruedFee)
}

func TestSwapNFTMinimumBoundsProceedsAfterFee(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	q, err := f.ctrl.Quote(2, model.DirectionNFTIn)
	require.NoError(t, err)
	net := f.ctrl.Proceeds(q)
	require.True(t, net.Lt(q.FFTAmount))

	// Asking for the gross quote would pay out less than the minimum.
	_, err = f.ctrl.SwapNFT(ctx, bob, 2, q.FFTAmount)
	require.ErrorIs(t, err, errs.ErrSlippageExceeded)
	_, err = f.ctrl.SwapNFT(ctx, bob, 2, new(uint256.Int).AddUint64(net, 1))
	require.ErrorIs(t, err, errs.ErrSlippageExceeded)
	r, err := f.ctrl.Reserves()
	require.NoError(t, err)
	require.Equal(t, uint64(10), r.NFT)
	require.Equal(t, ether(900), r.FFT)

	minOut := new(uint256.Int).Set(net)
	before := f.book.Balance(fft, bob)
	_, err = f.ctrl.SwapNFT(ctx, bob, 2, minOut)
	require.NoError(t, err)
	received := new(uint256.Int).Sub(f.book.Balance(fft, bob), before)
	require.False(t, received.Lt(minOut))
}

func TestOpenPrincipalNeverExceedsReserve(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	ctx := context.Background()
	f.seed(t)
	_, err := f.ctrl.DepositNFT(ctx, bob, 7)
	require.NoError(t, err)
	_, err = f.ctrl.DepositFFT(ctx, bob, ether(333))
	require.NoError(t, err)

	limit := ether(100_000)
	steps := []struct {
		dir model.Direction
		n   uint64
	}{
		{model.DirectionFFTIn, 4}, {model.DirectionNFTIn, 3}, {model.DirectionFFTIn, 9},
		{model.DirectionNFTIn, 1}, {model.DirectionNFTIn, 5}, {model.DirectionFFTIn, 2},
	}
	for _, s := range steps {
		if s.dir == model.DirectionFFTIn {
			_, err = f.ctrl.SwapFFT(ctx, bob, s.n, limit)
		} else {
			_, err = f.ctrl.SwapNFT(ctx, alice, s.n, new(uint256.Int))
		}
		require.NoError(t, err)

		r := f.vault.Reserves()
		require.False(t, f.vault.OpenPrincipal(model.KindNFT).Gt(r.Of(model.KindNFT)))
		require.False(t, f.vault.OpenPrincipal(model.KindFFT).Gt(r.FFT))

		custody := new(uint256.Int).Add(r.FFT, f.vault.FeeBalance())
		require.Equal(t, custody, f.book.Balance(fft, f.vault.Address()))
		require.Equal(t, r.NFT, f.book.NFTBalance(nft, f.vault.Address()))
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	ctx := context.Background()

	_, err := f.ctrl.DepositFFT(ctx, alice, ether(250))
	require.NoError(t, err)
	left, err := f.ctrl.QueryLiquid(model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(250), left)

	paid, err := f.ctrl.WithdrawLiquidity(ctx, alice, model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(250), paid)
	require.Equal(t, ether(10_000), f.book.Balance(fft, alice))

	_, err = f.ctrl.WithdrawLiquidity(ctx, alice, model.KindFFT, 0)
	require.ErrorIs(t, err, errs.ErrPositionAlreadyWithdrawn)

	_, err = f.ctrl.QueryLiquid(model.KindNFT, 0)
	require.ErrorIs(t, err, errs.ErrNoSuchPosition)
}

func TestZeroReserve(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	ctx := context.Background()

	_, err := f.ctrl.Price()
	require.ErrorIs(t, err, errs.ErrZeroLiquidity)
	_, err = f.ctrl.SwapFFT(ctx, bob, 1, ether(1_000))
	require.ErrorIs(t, err, errs.ErrZeroLiquidity)
	_, err = f.ctrl.SwapNFT(ctx, bob, 1, new(uint256.Int))
	require.ErrorIs(t, err, errs.ErrZeroLiquidity)

	_, err = f.ctrl.DepositFFT(ctx, alice, ether(10))
	require.NoError(t, err)
	_, err = f.ctrl.SwapFFT(ctx, bob, 1, ether(1_000))
	require.ErrorIs(t, err, errs.ErrZeroLiquidity)
}

func TestSwapFFTRequestingMoreThanReserve(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	_, err := f.ctrl.SwapFFT(context.Background(), bob, 11, ether(100_000))
	require.ErrorIs(t, err, errs.ErrInsufficientReserve)

	// Reserve sufficiency is part of quoting, so it is reported ahead of a
	// bound the trade would also break.
	_, err = f.ctrl.SwapFFT(context.Background(), bob, 11, ether(1))
	require.ErrorIs(t, err, errs.ErrInsufficientReserve)
	_, err = f.ctrl.SwapNFT(context.Background(), bob, 100, ether(100_000))
	require.ErrorIs(t, err, errs.ErrInsufficientReserve)
}

func TestFailedPayoutRollsBackSwap(t *testing.T) {
	var vaultAddr common.Address
	f := newFixture(t, DefaultConfig(), func(b *asset.Book) asset.Ledger {
		return &lazyFailing{Book: b, from: &vaultAddr}
	})
	f.seed(t)
	vaultAddr = f.vault.Address()

	bobFFT := f.book.Balance(fft, bob)
	_, err := f.ctrl.SwapFFT(context.Background(), bob, 3, ether(300))
	require.ErrorIs(t, err, errs.ErrTransferFailed)

	r := f.vault.Reserves()
	require.Equal(t, uint64(10), r.NFT)
	require.Equal(t, ether(900), r.FFT)
	require.True(t, f.vault.FeeBalance().IsZero())
	p, err := f.vault.Position(model.KindNFT, 0)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), p.Principal)
	require.Equal(t, bobFFT, f.book.Balance(fft, bob))
	require.Equal(t, ether(900), f.book.Balance(fft, f.vault.Address()))
	require.Empty(t, f.rec.Named(model.EventSwap))
}

// lazyFailing fails NFT transfers out of *from once it is set.
type lazyFailing struct {
	*asset.Book
	from *common.Address
}

func (l *lazyFailing) TransferNFT(ctx context.Context, collection, from, to common.Address, count uint64) error {
	return failingLedger{Book: l.Book, from: *l.from}.TransferNFT(ctx, collection, from, to, count)
}

func TestFailedPullChangesNothing(t *testing.T) {
	f := newFixture(t, DefaultConfig(), func(b *asset.Book) asset.Ledger {
		return failingLedger{Book: b, from: bob}
	})
	f.seed(t)

	_, err := f.ctrl.SwapNFT(context.Background(), bob, 2, new(uint256.Int))
	require.ErrorIs(t, err, errs.ErrTransferFailed)
	r := f.vault.Reserves()
	require.Equal(t, uint64(10), r.NFT)
	require.Equal(t, ether(900), r.FFT)
	p, err := f.vault.Position(model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(900), p.Principal)
}

func TestFeesFlowToDrainedSide(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	rec, err := f.ctrl.SwapFFT(ctx, bob, 3, ether(300))
	require.NoError(t, err)
	n0, err := f.vault.Position(model.KindNFT, 0)
	require.NoError(t, err)
	require.Equal(t, rec.Fee, n0.AccruedFee)

	before := f.book.Balance(fft, alice)
	paid, err := f.ctrl.ClaimAllFees(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, rec.Fee, paid)
	require.Equal(t, new(uint256.Int).Add(before, rec.Fee), f.book.Balance(fft, alice))

	paid, err = f.ctrl.ClaimFee(ctx, alice, model.KindNFT, 0)
	require.NoError(t, err)
	require.True(t, paid.IsZero())
}

func TestUnboundControllerIsUnauthorized(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	next, err := Deploy(ctx, f.table, Deps{Ledger: f.book, Metadata: f.book, Config: DefaultConfig()}, admin, nft, fft)
	require.NoError(t, err)
	_, err = f.table.Bind(next.Address(), f.vault.Address(), admin, admin)
	require.NoError(t, err)

	_, err = f.ctrl.DepositNFT(ctx, alice, 1)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = f.vault.AdjustReserve(f.ctrl.Address(), model.KindNFT, uint256.NewInt(1), vault.Debit)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	// Positions and reserves carry over to the new controller.
	left, err := next.QueryLiquid(model.KindNFT, 0)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), left)
}

func TestUpdatePriceEmits(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	price, err := f.ctrl.UpdatePrice()
	require.NoError(t, err)
	require.Equal(t, ether(90), price)
	require.Len(t, f.rec.Named(model.EventPriceUpdated), 1)
}

func TestConcurrentSwapsSerialize(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.seed(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.ctrl.SwapFFT(ctx, bob, 1, ether(100_000))
			} else {
				_, _ = f.ctrl.SwapNFT(ctx, alice, 1, new(uint256.Int))
			}
		}(i)
	}
	wg.Wait()

	r := f.vault.Reserves()
	require.Equal(t, r.NFT, f.book.NFTBalance(nft, f.vault.Address()))
	require.Equal(t, new(uint256.Int).Add(r.FFT, f.vault.FeeBalance()), f.book.Balance(fft, f.vault.Address()))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.ErrorIs(t, Config{FeeBps: 10_001}.Validate(), errs.ErrInvalidAmount)
}
