package controller

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"hotswap/internal/model"
)

// DepositNFT adds count NFTs from caller to the bound vault.
func (c *Controller) DepositNFT(ctx context.Context, caller common.Address, count uint64) (model.Position, error) {
	return c.deposit(ctx, caller, model.KindNFT, uint256.NewInt(count))
}

// DepositFFT adds amount fungible units from caller to the bound vault.
func (c *Controller) DepositFFT(ctx context.Context, caller common.Address, amount *uint256.Int) (model.Position, error) {
	return c.deposit(ctx, caller, model.KindFFT, amount)
}

func (c *Controller) deposit(ctx context.Context, caller common.Address, kind model.Kind, amount *uint256.Int) (model.Position, error) {
	var p model.Position
	err := c.table.Atomic(func() error {
		v, err := c.vault()
		if err != nil {
			return err
		}
		p, err = v.Deposit(ctx, c.addr, caller, kind, amount)
		return err
	})
	return p, err
}

// WithdrawLiquidity returns the principal of caller's position.
func (c *Controller) WithdrawLiquidity(ctx context.Context, caller common.Address, kind model.Kind, index uint64) (*uint256.Int, error) {
	var paid *uint256.Int
	err := c.table.Atomic(func() error {
		v, err := c.vault()
		if err != nil {
			return err
		}
		paid, err = v.Withdraw(ctx, c.addr, caller, kind, index)
		return err
	})
	return paid, err
}

// ClaimFee pays out the fee accrued by one of caller's positions.
func (c *Controller) ClaimFee(ctx context.Context, caller common.Address, kind model.Kind, index uint64) (*uint256.Int, error) {
	var paid *uint256.Int
	err := c.table.Atomic(func() error {
		v, err := c.vault()
		if err != nil {
			return err
		}
		paid, err = v.ClaimFee(ctx, c.addr, caller, kind, index)
		return err
	})
	return paid, err
}

// ClaimAllFees pays out every fee accrued by caller's positions.
func (c *Controller) ClaimAllFees(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	var paid *uint256.Int
	err := c.table.Atomic(func() error {
		v, err := c.vault()
		if err != nil {
			return err
		}
		paid, err = v.ClaimAllFees(ctx, c.addr, caller)
		return err
	})
	return paid, err
}

// QueryLiquid returns the principal still held by a position.
func (c *Controller) QueryLiquid(kind model.Kind, index uint64) (*uint256.Int, error) {
	v, err := c.vault()
	if err != nil {
		return nil, err
	}
	p, err := v.Position(kind, index)
	if err != nil {
		return nil, err
	}
	if p.Withdrawn {
		return new(uint256.Int), nil
	}
	return p.Principal, nil
}

// Positions returns caller's positions in the bound vault.
func (c *Controller) Positions(owner common.Address) ([]model.Position, error) {
	v, err := c.vault()
	if err != nil {
		return nil, err
	}
	return v.PositionsOf(owner), nil
}
