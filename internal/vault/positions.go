package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/errs"
	"hotswap/internal/model"
)

// Deposit pulls amount of kind from owner into custody and opens a position.
// The new position's index is the count of earlier positions of that kind.
func (v *Vault) Deposit(ctx context.Context, by, owner common.Address, kind model.Kind, amount *uint256.Int) (model.Position, error) {
	if err := v.authorize(by); err != nil {
		return model.Position{}, err
	}
	if !kind.Valid() {
		return model.Position{}, errs.ErrInvalidAmount.Wrapf("unknown kind %d", kind)
	}
	if amount == nil || amount.IsZero() {
		return model.Position{}, errs.ErrInvalidAmount.Wrap("deposit amount must be positive")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	reserve, overflow := new(uint256.Int).AddOverflow(v.reserves[kind], amount)
	if overflow || (kind == model.KindNFT && !reserve.IsUint64()) {
		return model.Position{}, errs.ErrOverflow.Wrapf("%s reserve", kind)
	}
	if err := v.transfer(ctx, kind, owner, v.addr, amount); err != nil {
		return model.Position{}, err
	}

	p := &model.Position{
		Index:      uint64(len(v.positions[kind])),
		Kind:       kind,
		Owner:      owner,
		Principal:  new(uint256.Int).Set(amount),
		AccruedFee: new(uint256.Int),
	}
	v.positions[kind] = append(v.positions[kind], p)
	v.reserves[kind] = reserve

	v.logger.Debug("deposit",
		zap.String("owner", owner.Hex()),
		zap.Stringer("kind", kind),
		zap.Uint64("index", p.Index),
		zap.String("amount", amount.Dec()),
	)
	v.emitter.Emit(model.Deposited{Vault: v.addr, Owner: owner, Kind: kind, Index: p.Index, Amount: new(uint256.Int).Set(amount)})
	return p.Clone(), nil
}

// Withdraw pays the position's principal back to its owner, capped by the
// current reserve of its kind. A partial payout leaves the remainder claimable;
// a full payout closes the position.
func (v *Vault) Withdraw(ctx context.Context, by, owner common.Address, kind model.Kind, index uint64) (*uint256.Int, error) {
	if err := v.authorize(by); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.lookup(kind, index)
	if err != nil {
		return nil, err
	}
	if p.Owner != owner {
		return nil, errs.ErrUnauthorized.Wrapf("%s position %d is not owned by %s", kind, index, owner.Hex())
	}
	if p.Withdrawn {
		return nil, errs.ErrPositionAlreadyWithdrawn.Wrapf("%s position %d", kind, index)
	}

	pay := new(uint256.Int).Set(p.Principal)
	if pay.Gt(v.reserves[kind]) {
		pay.Set(v.reserves[kind])
	}
	if pay.IsZero() {
		return nil, errs.ErrInsufficientReserve.Wrapf("nothing to return for %s position %d", kind, index)
	}
	if err := v.transfer(ctx, kind, v.addr, owner, pay); err != nil {
		return nil, err
	}

	v.reserves[kind] = new(uint256.Int).Sub(v.reserves[kind], pay)
	p.Principal = new(uint256.Int).Sub(p.Principal, pay)
	if p.Principal.IsZero() {
		p.Withdrawn = true
	}

	v.logger.Debug("withdraw",
		zap.String("owner", owner.Hex()),
		zap.Stringer("kind", kind),
		zap.Uint64("index", index),
		zap.String("amount", pay.Dec()),
		zap.Bool("closed", p.Withdrawn),
	)
	v.emitter.Emit(model.Withdrawn{Vault: v.addr, Owner: owner, Kind: kind, Index: index, Amount: new(uint256.Int).Set(pay)})
	return pay, nil
}

// ClaimFee pays the position's accrued fee to its owner. Fees stay claimable
// after the principal has been withdrawn.
func (v *Vault) ClaimFee(ctx context.Context, by, owner common.Address, kind model.Kind, index uint64) (*uint256.Int, error) {
	if err := v.authorize(by); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.lookup(kind, index)
	if err != nil {
		return nil, err
	}
	if p.Owner != owner {
		return nil, errs.ErrUnauthorized.Wrapf("%s position %d is not owned by %s", kind, index, owner.Hex())
	}
	if p.AccruedFee.IsZero() {
		return new(uint256.Int), nil
	}
	fee := new(uint256.Int).Set(p.AccruedFee)
	if err := v.transfer(ctx, model.KindFFT, v.addr, owner, fee); err != nil {
		return nil, err
	}
	v.feeBalance = new(uint256.Int).Sub(v.feeBalance, fee)
	p.AccruedFee = new(uint256.Int)

	v.emitter.Emit(model.FeeClaimed{Vault: v.addr, Owner: owner, Kind: kind, Index: index, Amount: new(uint256.Int).Set(fee)})
	return fee, nil
}

// ClaimAllFees pays every accrued fee held by owner in a single transfer.
func (v *Vault) ClaimAllFees(ctx context.Context, by, owner common.Address) (*uint256.Int, error) {
	if err := v.authorize(by); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	total := new(uint256.Int)
	var claimed []*model.Position
	for _, k := range model.Kinds {
		for _, p := range v.positions[k] {
			if p.Owner != owner || p.AccruedFee.IsZero() {
				continue
			}
			total.Add(total, p.AccruedFee)
			claimed = append(claimed, p)
		}
	}
	if total.IsZero() {
		return total, nil
	}
	if err := v.transfer(ctx, model.KindFFT, v.addr, owner, total); err != nil {
		return nil, err
	}
	v.feeBalance = new(uint256.Int).Sub(v.feeBalance, total)
	for _, p := range claimed {
		v.emitter.Emit(model.FeeClaimed{Vault: v.addr, Owner: owner, Kind: p.Kind, Index: p.Index, Amount: new(uint256.Int).Set(p.AccruedFee)})
		p.AccruedFee = new(uint256.Int)
	}
	return total, nil
}
