package controller

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/errs"
	"hotswap/internal/model"
	"hotswap/internal/pricing"
	"hotswap/internal/vault"
)

// SwapFFT sells nftAmount NFTs from the vault to trader for at most maxFftIn
// fungible units.
func (c *Controller) SwapFFT(ctx context.Context, trader common.Address, nftAmount uint64, maxFftIn *uint256.Int) (model.SwapRecord, error) {
	var rec model.SwapRecord
	err := c.table.Atomic(func() error {
		var err error
		rec, err = c.swap(ctx, trader, nftAmount, model.DirectionFFTIn, maxFftIn)
		return err
	})
	return rec, err
}

// SwapNFT buys nftAmount NFTs from trader, who receives at least minFftOut
// fungible units after the fee.
func (c *Controller) SwapNFT(ctx context.Context, trader common.Address, nftAmount uint64, minFftOut *uint256.Int) (model.SwapRecord, error) {
	var rec model.SwapRecord
	err := c.table.Atomic(func() error {
		var err error
		rec, err = c.swap(ctx, trader, nftAmount, model.DirectionNFTIn, minFftOut)
		return err
	})
	return rec, err
}

// swap runs inside Atomic. Every step before the transfers only reads; the
// reserve and fee updates are undone from their receipts if a transfer fails.
func (c *Controller) swap(ctx context.Context, trader common.Address, nftAmount uint64, dir model.Direction, bound *uint256.Int) (model.SwapRecord, error) {
	if bound == nil {
		return model.SwapRecord{}, errs.ErrInvalidAmount.Wrap("missing slippage bound")
	}
	v, err := c.vault()
	if err != nil {
		return model.SwapRecord{}, err
	}
	q, err := c.model(dir).Quote(v.Reserves(), nftAmount, dir)
	if err != nil {
		return model.SwapRecord{}, err
	}
	fee := pricing.Fee(q.FFTAmount, c.cfg.FeeBps)
	net := new(uint256.Int).Sub(q.FFTAmount, fee)
	if err := checkSlippage(q, net, bound); err != nil {
		return model.SwapRecord{}, err
	}
	if err := checkReserves(v.Reserves(), q); err != nil {
		return model.SwapRecord{}, err
	}
	nfts := uint256.NewInt(nftAmount)

	var receipts []vault.Receipt
	apply := func(rc vault.Receipt, err error) error {
		if err != nil {
			return err
		}
		receipts = append(receipts, rc)
		return nil
	}
	rollback := func() {
		if err := v.Revert(c.addr, receipts...); err != nil {
			c.logger.Error("revert swap receipts", zap.Error(err))
		}
	}

	// Fee goes to the positions of the side the trader drains.
	if dir == model.DirectionFFTIn {
		err = apply(v.AdjustReserve(c.addr, model.KindNFT, nfts, vault.Debit))
		if err == nil {
			err = apply(v.AdjustReserve(c.addr, model.KindFFT, net, vault.Credit))
		}
		if err == nil {
			err = apply(v.CreditFee(c.addr, model.KindNFT, fee))
		}
	} else {
		err = apply(v.AdjustReserve(c.addr, model.KindNFT, nfts, vault.Credit))
		if err == nil {
			err = apply(v.AdjustReserve(c.addr, model.KindFFT, q.FFTAmount, vault.Debit))
		}
		if err == nil {
			err = apply(v.CreditFee(c.addr, model.KindFFT, fee))
		}
	}
	if err != nil {
		rollback()
		return model.SwapRecord{}, err
	}

	if err := c.settle(ctx, v, trader, dir, nftAmount, q.FFTAmount, net); err != nil {
		rollback()
		return model.SwapRecord{}, err
	}

	rec := model.SwapRecord{
		Controller:      c.addr,
		Trader:          trader,
		NFTAmount:       nftAmount,
		FFTAmount:       new(uint256.Int).Set(q.FFTAmount),
		Fee:             fee,
		Direction:       dir,
		SettlementPrice: new(uint256.Int).Set(q.SettlementPrice),
	}
	c.logger.Debug("swap",
		zap.String("trader", trader.Hex()),
		zap.Stringer("direction", dir),
		zap.Uint64("nft", nftAmount),
		zap.String("fft", q.FFTAmount.Dec()),
		zap.String("fee", fee.Dec()),
		zap.String("price", q.SettlementPrice.Dec()),
	)
	c.emitter.Emit(rec)
	return rec, nil
}

// settle moves both legs. If the second leg fails the first is sent back.
func (c *Controller) settle(ctx context.Context, v *vault.Vault, trader common.Address, dir model.Direction, nftAmount uint64, gross, net *uint256.Int) error {
	va := v.Address()
	if dir == model.DirectionFFTIn {
		if err := c.ledger.TransferFungible(ctx, c.fft, trader, va, gross); err != nil {
			return errs.ErrTransferFailed.Wrapf("pull %s fft from %s: %v", gross.Dec(), trader.Hex(), err)
		}
		if err := v.Payout(ctx, c.addr, trader, model.KindNFT, uint256.NewInt(nftAmount)); err != nil {
			c.compensate(c.ledger.TransferFungible(context.WithoutCancel(ctx), c.fft, va, trader, gross))
			return err
		}
		return nil
	}

	if err := c.ledger.TransferNFT(ctx, c.nft, trader, va, nftAmount); err != nil {
		return errs.ErrTransferFailed.Wrapf("pull %d nft from %s: %v", nftAmount, trader.Hex(), err)
	}
	if net.IsZero() {
		return nil
	}
	if err := v.Payout(ctx, c.addr, trader, model.KindFFT, net); err != nil {
		c.compensate(c.ledger.TransferNFT(context.WithoutCancel(ctx), c.nft, va, trader, nftAmount))
		return err
	}
	return nil
}

func (c *Controller) compensate(err error) {
	if err != nil {
		c.logger.Error("return first swap leg", zap.Error(err))
	}
}

// checkSlippage bounds what the trader actually moves: the gross cost when
// buying NFTs, the proceeds after fee when selling them.
func checkSlippage(q pricing.Quote, net, bound *uint256.Int) error {
	if q.Direction == model.DirectionFFTIn && q.FFTAmount.Gt(bound) {
		return errs.ErrSlippageExceeded.Wrapf("cost %s above max %s", q.FFTAmount.Dec(), bound.Dec())
	}
	if q.Direction == model.DirectionNFTIn && net.Lt(bound) {
		return errs.ErrSlippageExceeded.Wrapf("proceeds %s below min %s", net.Dec(), bound.Dec())
	}
	return nil
}

// Proceeds is what a trader receives for q after the protocol fee.
func (c *Controller) Proceeds(q pricing.Quote) *uint256.Int {
	return new(uint256.Int).Sub(q.FFTAmount, pricing.Fee(q.FFTAmount, c.cfg.FeeBps))
}

func checkReserves(r model.Reserves, q pricing.Quote) error {
	if q.Direction == model.DirectionFFTIn && q.NFTAmount > r.NFT {
		return errs.ErrInsufficientReserve.Wrapf("requested %d nft, reserve %d", q.NFTAmount, r.NFT)
	}
	if q.Direction == model.DirectionNFTIn && q.FFTAmount.Gt(r.FFT) {
		return errs.ErrInsufficientReserve.Wrapf("payout %s, fft reserve %s", q.FFTAmount.Dec(), r.FFT.Dec())
	}
	return nil
}
