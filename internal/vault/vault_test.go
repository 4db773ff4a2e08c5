package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"hotswap/internal/asset"
	"hotswap/internal/errs"
	"hotswap/internal/events"
	"hotswap/internal/model"
)

var (
	vaultAddr  = common.HexToAddress("0xa0")
	controller = common.HexToAddress("0xc0")
	alice      = common.HexToAddress("0xa11ce")
	bob        = common.HexToAddress("0xb0b")
	nft        = common.HexToAddress("0x1111")
	fft        = common.HexToAddress("0x2222")
)

type boundTo common.Address

func (b boundTo) ControllerOf(common.Address) common.Address { return common.Address(b) }

type failingLedger struct{ asset.Ledger }

func (failingLedger) TransferFungible(context.Context, common.Address, common.Address, common.Address, *uint256.Int) error {
	return errors.New("ledger offline")
}

func (failingLedger) TransferNFT(context.Context, common.Address, common.Address, common.Address, uint64) error {
	return errors.New("ledger offline")
}

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

func setup(t *testing.T) (*Vault, *asset.Book, *events.Recorder) {
	t.Helper()
	book := asset.NewBook()
	book.RegisterToken(fft, 18)
	for _, who := range []common.Address{alice, bob} {
		book.Mint(fft, who, ether(10_000))
		book.MintNFT(nft, who, 50)
	}
	rec := events.NewRecorder()
	v := New(vaultAddr, boundTo(controller), Options{NFT: nft, FFT: fft, Ledger: book, Emitter: rec})
	return v, book, rec
}

func TestDepositIndexesPerKind(t *testing.T) {
	v, book, rec := setup(t)
	ctx := context.Background()

	p0, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(10))
	require.NoError(t, err)
	p1, err := v.Deposit(ctx, controller, bob, model.KindNFT, uint256.NewInt(5))
	require.NoError(t, err)
	f0, err := v.Deposit(ctx, controller, alice, model.KindFFT, ether(900))
	require.NoError(t, err)

	require.Equal(t, uint64(0), p0.Index)
	require.Equal(t, uint64(1), p1.Index)
	require.Equal(t, uint64(0), f0.Index)

	r := v.Reserves()
	require.Equal(t, uint64(15), r.NFT)
	require.Equal(t, ether(900), r.FFT)
	require.Equal(t, uint64(15), book.NFTBalance(nft, vaultAddr))
	require.Len(t, rec.Named(model.EventDeposited), 3)
	require.Len(t, v.PositionsOf(alice), 2)
}

func TestDepositRejectsZero(t *testing.T) {
	v, _, _ := setup(t)
	_, err := v.Deposit(context.Background(), controller, alice, model.KindFFT, new(uint256.Int))
	require.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestOnlyBoundControllerMutates(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()

	_, err := v.Deposit(ctx, bob, alice, model.KindNFT, uint256.NewInt(1))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = v.AdjustReserve(bob, model.KindFFT, ether(1), Credit)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	unbound := New(vaultAddr, boundTo(common.Address{}), Options{NFT: nft, FFT: fft})
	_, err = unbound.CreditFee(common.Address{}, model.KindFFT, ether(1))
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestWithdrawRoundTrip(t *testing.T) {
	v, book, rec := setup(t)
	ctx := context.Background()

	_, err := v.Deposit(ctx, controller, alice, model.KindFFT, ether(900))
	require.NoError(t, err)
	require.Equal(t, ether(9_100), book.Balance(fft, alice))

	paid, err := v.Withdraw(ctx, controller, alice, model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(900), paid)
	require.Equal(t, ether(10_000), book.Balance(fft, alice))
	require.True(t, v.Reserves().FFT.IsZero())

	p, err := v.Position(model.KindFFT, 0)
	require.NoError(t, err)
	require.True(t, p.Withdrawn)

	_, err = v.Withdraw(ctx, controller, alice, model.KindFFT, 0)
	require.ErrorIs(t, err, errs.ErrPositionAlreadyWithdrawn)
	require.Len(t, rec.Named(model.EventWithdrawn), 1)
}

func TestWithdrawChecksOwnerAndIndex(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(3))
	require.NoError(t, err)

	_, err = v.Withdraw(ctx, controller, bob, model.KindNFT, 0)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = v.Withdraw(ctx, controller, alice, model.KindNFT, 7)
	require.ErrorIs(t, err, errs.ErrNoSuchPosition)
}

func TestWithdrawTransferFailureLeavesState(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(4))
	require.NoError(t, err)

	v.ledger = failingLedger{}
	_, err = v.Withdraw(ctx, controller, alice, model.KindNFT, 0)
	require.ErrorIs(t, err, errs.ErrTransferFailed)

	p, err := v.Position(model.KindNFT, 0)
	require.NoError(t, err)
	require.False(t, p.Withdrawn)
	require.Equal(t, uint256.NewInt(4), p.Principal)
	require.Equal(t, uint64(4), v.Reserves().NFT)
}

func TestDebitHaircutsPrincipal(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(6))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, bob, model.KindNFT, uint256.NewInt(4))
	require.NoError(t, err)

	_, err = v.AdjustReserve(controller, model.KindNFT, uint256.NewInt(3), Debit)
	require.NoError(t, err)

	require.Equal(t, uint64(7), v.Reserves().NFT)
	require.False(t, v.OpenPrincipal(model.KindNFT).Gt(uint256.NewInt(7)))
	a, _ := v.Position(model.KindNFT, 0)
	b, _ := v.Position(model.KindNFT, 1)
	require.Equal(t, uint256.NewInt(4), a.Principal) // floor(6*7/10)
	require.Equal(t, uint256.NewInt(2), b.Principal) // floor(4*7/10)

	_, err = v.AdjustReserve(controller, model.KindNFT, uint256.NewInt(8), Debit)
	require.ErrorIs(t, err, errs.ErrInsufficientReserve)
}

func TestWithdrawAfterHaircut(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindFFT, ether(100))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, bob, model.KindFFT, ether(100))
	require.NoError(t, err)

	// Bob withdraws in full, then a debit leaves less than Alice's principal.
	_, err = v.Withdraw(ctx, controller, bob, model.KindFFT, 1)
	require.NoError(t, err)
	_, err = v.AdjustReserve(controller, model.KindFFT, ether(40), Debit)
	require.NoError(t, err)

	paid, err := v.Withdraw(ctx, controller, alice, model.KindFFT, 0)
	require.NoError(t, err)
	require.Equal(t, ether(60), paid)
	p, _ := v.Position(model.KindFFT, 0)
	require.True(t, p.Withdrawn)
	require.True(t, v.Reserves().FFT.IsZero())
}

func TestCreditFeeProRata(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(3))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, bob, model.KindNFT, uint256.NewInt(1))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, bob, model.KindFFT, uint256.NewInt(1_000))
	require.NoError(t, err)

	_, err = v.CreditFee(controller, model.KindNFT, uint256.NewInt(10))
	require.NoError(t, err)

	a, _ := v.Position(model.KindNFT, 0)
	b, _ := v.Position(model.KindNFT, 1)
	require.Equal(t, uint256.NewInt(7), a.AccruedFee) // floor(10*3/4)
	require.Equal(t, uint256.NewInt(2), b.AccruedFee) // floor(10*1/4)
	require.Equal(t, uint256.NewInt(9), v.FeeBalance())
	require.Equal(t, uint256.NewInt(1_001), v.Reserves().FFT)
}

func TestCreditFeeWithoutPositionsGoesToReserve(t *testing.T) {
	v, _, _ := setup(t)
	_, err := v.CreditFee(controller, model.KindNFT, uint256.NewInt(10))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), v.Reserves().FFT)
	require.True(t, v.FeeBalance().IsZero())
}

func TestClaimFees(t *testing.T) {
	v, book, rec := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(2))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, alice, model.KindFFT, ether(1))
	require.NoError(t, err)
	// Fees must already sit in custody when credited.
	require.NoError(t, book.TransferFungible(ctx, fft, bob, vaultAddr, uint256.NewInt(300)))
	_, err = v.CreditFee(controller, model.KindNFT, uint256.NewInt(100))
	require.NoError(t, err)
	_, err = v.CreditFee(controller, model.KindFFT, uint256.NewInt(200))
	require.NoError(t, err)

	before := book.Balance(fft, alice)
	paid, err := v.ClaimFee(ctx, controller, alice, model.KindNFT, 0)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100), paid)

	total, err := v.ClaimAllFees(ctx, controller, alice)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(200), total)
	require.Equal(t, new(uint256.Int).Add(before, uint256.NewInt(300)), book.Balance(fft, alice))
	require.True(t, v.FeeBalance().IsZero())
	require.Len(t, rec.Named(model.EventFeeClaimed), 2)

	again, err := v.ClaimAllFees(ctx, controller, alice)
	require.NoError(t, err)
	require.True(t, again.IsZero())
}

func TestRevertRestoresReceipts(t *testing.T) {
	v, _, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(10))
	require.NoError(t, err)
	_, err = v.Deposit(ctx, controller, alice, model.KindFFT, ether(900))
	require.NoError(t, err)

	r1, err := v.AdjustReserve(controller, model.KindNFT, uint256.NewInt(4), Debit)
	require.NoError(t, err)
	r2, err := v.AdjustReserve(controller, model.KindFFT, ether(100), Credit)
	require.NoError(t, err)
	r3, err := v.CreditFee(controller, model.KindNFT, ether(1))
	require.NoError(t, err)

	require.NoError(t, v.Revert(controller, r1, r2, r3))

	r := v.Reserves()
	require.Equal(t, uint64(10), r.NFT)
	require.Equal(t, ether(900), r.FFT)
	require.True(t, v.FeeBalance().IsZero())
	p, _ := v.Position(model.KindNFT, 0)
	require.Equal(t, uint256.NewInt(10), p.Principal)
	require.True(t, p.AccruedFee.IsZero())
}

func TestWithdrawnPositionKeepsAccruedFee(t *testing.T) {
	v, book, _ := setup(t)
	ctx := context.Background()
	_, err := v.Deposit(ctx, controller, alice, model.KindNFT, uint256.NewInt(2))
	require.NoError(t, err)
	require.NoError(t, book.TransferFungible(ctx, fft, bob, vaultAddr, uint256.NewInt(150)))
	_, err = v.CreditFee(controller, model.KindNFT, uint256.NewInt(100))
	require.NoError(t, err)

	_, err = v.Withdraw(ctx, controller, alice, model.KindNFT, 0)
	require.NoError(t, err)
	_, err = v.Withdraw(ctx, controller, alice, model.KindNFT, 0)
	require.ErrorIs(t, err, errs.ErrPositionAlreadyWithdrawn)

	// Later fees skip the withdrawn slot.
	_, err = v.Deposit(ctx, controller, bob, model.KindNFT, uint256.NewInt(1))
	require.NoError(t, err)
	_, err = v.CreditFee(controller, model.KindNFT, uint256.NewInt(50))
	require.NoError(t, err)

	before := book.Balance(fft, alice)
	paid, err := v.ClaimFee(ctx, controller, alice, model.KindNFT, 0)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100), paid)
	require.Equal(t, new(uint256.Int).Add(before, uint256.NewInt(100)), book.Balance(fft, alice))

	paid, err = v.ClaimFee(ctx, controller, alice, model.KindNFT, 0)
	require.NoError(t, err)
	require.True(t, paid.IsZero())

	p, err := v.Position(model.KindNFT, 0)
	require.NoError(t, err)
	require.True(t, p.Withdrawn)
	require.True(t, p.Principal.IsZero())
	b, err := v.Position(model.KindNFT, 1)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(50), b.AccruedFee)
}
