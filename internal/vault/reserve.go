package vault

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"hotswap/internal/errs"
	"hotswap/internal/model"
)

// Sign selects whether AdjustReserve adds to or removes from a reserve.
type Sign int8

const (
	Credit Sign = 1
	Debit  Sign = -1
)

// Receipt captures the vault state a reserve or fee mutation replaced, so a
// controller can undo it when a later step of the same swap fails.
type Receipt struct {
	vault      common.Address
	reserves   [2]*uint256.Int
	feeBalance *uint256.Int
	positions  []positionState
}

type positionState struct {
	kind       model.Kind
	index      uint64
	principal  *uint256.Int
	accruedFee *uint256.Int
}

func (v *Vault) receipt(kinds ...model.Kind) Receipt {
	r := Receipt{
		vault:      v.addr,
		reserves:   [2]*uint256.Int{new(uint256.Int).Set(v.reserves[0]), new(uint256.Int).Set(v.reserves[1])},
		feeBalance: new(uint256.Int).Set(v.feeBalance),
	}
	for _, k := range kinds {
		for _, p := range v.positions[k] {
			if p.Withdrawn {
				continue
			}
			r.positions = append(r.positions, positionState{
				kind:       k,
				index:      p.Index,
				principal:  new(uint256.Int).Set(p.Principal),
				accruedFee: new(uint256.Int).Set(p.AccruedFee),
			})
		}
	}
	return r
}

// AdjustReserve moves the reserve of kind by delta. A debit larger than the
// reserve fails with ErrInsufficientReserve. When a debit leaves less in the
// reserve than open positions claim, their principals are scaled down pro rata.
func (v *Vault) AdjustReserve(by common.Address, kind model.Kind, delta *uint256.Int, sign Sign) (Receipt, error) {
	if err := v.authorize(by); err != nil {
		return Receipt{}, err
	}
	if !kind.Valid() {
		return Receipt{}, errs.ErrInvalidAmount.Wrapf("unknown kind %d", kind)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rc := v.receipt(kind)
	cur := v.reserves[kind]
	switch sign {
	case Credit:
		next, overflow := new(uint256.Int).AddOverflow(cur, delta)
		if overflow || (kind == model.KindNFT && !next.IsUint64()) {
			return Receipt{}, errs.ErrOverflow.Wrapf("%s reserve", kind)
		}
		v.reserves[kind] = next
	case Debit:
		if delta.Gt(cur) {
			return Receipt{}, errs.ErrInsufficientReserve.Wrapf("%s reserve %s, requested %s", kind, cur.Dec(), delta.Dec())
		}
		v.reserves[kind] = new(uint256.Int).Sub(cur, delta)
		v.haircut(kind)
	default:
		return Receipt{}, errs.ErrInvalidAmount.Wrapf("unknown sign %d", sign)
	}
	return rc, nil
}

// haircut scales open principals of kind so their sum fits the reserve.
func (v *Vault) haircut(kind model.Kind) {
	open := v.openPrincipal(kind)
	reserve := v.reserves[kind]
	if !open.Gt(reserve) {
		return
	}
	for _, p := range v.positions[kind] {
		if p.Withdrawn || p.Principal.IsZero() {
			continue
		}
		// principal * reserve cannot overflow the 512-bit intermediate.
		scaled, _ := new(uint256.Int).MulDivOverflow(p.Principal, reserve, open)
		p.Principal = scaled
	}
	v.logger.Debug("principal haircut",
		zap.Stringer("kind", kind),
		zap.String("claimed", open.Dec()),
		zap.String("reserve", reserve.Dec()),
	)
}

// CreditFee distributes amount, already in custody, over open positions of
// kind in proportion to principal over the current reserve of that kind.
// Whatever is not attributed to a position is added to the fungible reserve.
func (v *Vault) CreditFee(by common.Address, kind model.Kind, amount *uint256.Int) (Receipt, error) {
	if err := v.authorize(by); err != nil {
		return Receipt{}, err
	}
	if !kind.Valid() {
		return Receipt{}, errs.ErrInvalidAmount.Wrapf("unknown kind %d", kind)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	rc := v.receipt(kind)
	if amount == nil || amount.IsZero() {
		return rc, nil
	}

	reserve := v.reserves[kind]
	credited := new(uint256.Int)
	if !reserve.IsZero() {
		for _, p := range v.positions[kind] {
			if p.Withdrawn || p.Principal.IsZero() {
				continue
			}
			share, _ := new(uint256.Int).MulDivOverflow(amount, p.Principal, reserve)
			p.AccruedFee = new(uint256.Int).Add(p.AccruedFee, share)
			credited.Add(credited, share)
		}
	}
	remainder := new(uint256.Int).Sub(amount, credited)

	next, overflow := new(uint256.Int).AddOverflow(v.reserves[model.KindFFT], remainder)
	if overflow {
		v.restore(rc)
		return Receipt{}, errs.ErrOverflow.Wrap("fft reserve")
	}
	v.reserves[model.KindFFT] = next
	v.feeBalance = new(uint256.Int).Add(v.feeBalance, credited)
	return rc, nil
}

// Revert restores the state captured by receipts, applied last to first.
func (v *Vault) Revert(by common.Address, receipts ...Receipt) error {
	if err := v.authorize(by); err != nil {
		return err
	}
	for _, rc := range receipts {
		if rc.vault != v.addr {
			return errs.ErrUnauthorized.Wrapf("receipt from vault %s", rc.vault.Hex())
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(receipts) - 1; i >= 0; i-- {
		v.restore(receipts[i])
	}
	return nil
}

func (v *Vault) restore(rc Receipt) {
	if rc.vault != v.addr {
		return
	}
	v.reserves = [2]*uint256.Int{new(uint256.Int).Set(rc.reserves[0]), new(uint256.Int).Set(rc.reserves[1])}
	v.feeBalance = new(uint256.Int).Set(rc.feeBalance)
	for _, st := range rc.positions {
		p := v.positions[st.kind][st.index]
		p.Principal = new(uint256.Int).Set(st.principal)
		p.AccruedFee = new(uint256.Int).Set(st.accruedFee)
	}
}
