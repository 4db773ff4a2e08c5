package simulate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"hotswap/internal/amount"
	"hotswap/internal/config"
	"hotswap/internal/controller"
	"hotswap/internal/model"
	"hotswap/internal/pricing"
	"hotswap/internal/registry"
)

// Step executes one scenario operation and describes its outcome.
func (e *Engine) Step(ctx context.Context, s config.Step) (string, error) {
	name := s.Caller
	if name == "" {
		name = e.admin
	}
	caller, err := e.Account(name)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(s.Op) {
	case "deploy":
		return e.deploy(ctx, caller, s)
	case "hot-swap-controller":
		return e.hotSwapController(ctx, caller, s)
	case "hot-swap-vault":
		return e.hotSwapVault(caller, s)
	case "migrate":
		return e.migrate(caller, s)
	case "withdraw-fees":
		to := caller
		if s.To != "" {
			if to, err = e.Account(s.To); err != nil {
				return "", err
			}
		}
		paid, err := e.Registry().WithdrawFees(ctx, caller, to)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("swept %s native", amount.Format(paid, 18)), nil
	}

	ref, err := e.pair(s.Pair)
	if err != nil {
		return "", err
	}
	c := ref.ctrl
	decimals := c.Decimals()

	switch strings.ToLower(s.Op) {
	case "deposit-nft":
		count, err := parseCount(s.Amount)
		if err != nil {
			return "", err
		}
		pos, err := c.DepositNFT(ctx, caller, count)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("nft position %d: %d", pos.Index, count), nil

	case "deposit-fft":
		v, err := amount.Parse(s.Amount, decimals)
		if err != nil {
			return "", err
		}
		pos, err := c.DepositFFT(ctx, caller, v)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("fft position %d: %s", pos.Index, amount.Format(v, decimals)), nil

	case "swap-fft", "swap-nft":
		return e.swap(ctx, c, caller, s)

	case "withdraw":
		kind, err := model.ParseKind(s.Kind)
		if err != nil {
			return "", err
		}
		paid, err := c.WithdrawLiquidity(ctx, caller, kind, s.Index)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("withdrew %s from %s position %d", formatKind(paid, kind, decimals), kind, s.Index), nil

	case "claim":
		kind, err := model.ParseKind(s.Kind)
		if err != nil {
			return "", err
		}
		fee, err := c.ClaimFee(ctx, caller, kind, s.Index)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("claimed %s from %s position %d", amount.Format(fee, decimals), kind, s.Index), nil

	case "claim-all":
		fee, err := c.ClaimAllFees(ctx, caller)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("claimed %s", amount.Format(fee, decimals)), nil

	case "update-price":
		price, err := c.UpdatePrice()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("price %s", amount.Format(price, decimals)), nil
	}

	return "", fmt.Errorf("unknown op %q", s.Op)
}

func (e *Engine) deploy(ctx context.Context, caller common.Address, s config.Step) (string, error) {
	if s.Pair == "" {
		return "", fmt.Errorf("deploy needs a pair alias")
	}
	if _, taken := e.pairs[s.Pair]; taken {
		return "", fmt.Errorf("pair %q already deployed", s.Pair)
	}
	nft, err := e.token(s.NFT)
	if err != nil {
		return "", err
	}
	fft, err := e.token(s.FFT)
	if err != nil {
		return "", err
	}
	if nft.kind != model.KindNFT || fft.kind != model.KindFFT {
		return "", fmt.Errorf("deploy %s: want an nft and an fft, got %s/%s", s.Pair, nft.kind, fft.kind)
	}
	reg := e.Registry()
	p, err := reg.DeployPair(ctx, caller, nft.addr, fft.addr, e.deployFee)
	if err != nil {
		return "", err
	}
	ctrl, _ := reg.Controller(p.Controller)
	e.pairs[s.Pair] = pairRef{ctrl: ctrl, reg: reg}
	return fmt.Sprintf("pair %d controller %s vault %s", p.Pair.ID, p.Controller.Hex(), p.Vault.Hex()), nil
}

func (e *Engine) hotSwapController(ctx context.Context, caller common.Address, s config.Step) (string, error) {
	ref, err := e.pair(s.Pair)
	if err != nil {
		return "", err
	}
	nft, fft := ref.ctrl.Assets()
	next, err := ref.reg.DeployController(ctx, caller, nft, fft)
	if err != nil {
		return "", err
	}
	rb, err := ref.reg.SetController(caller, ref.ctrl.Vault(), next)
	if err != nil {
		return "", err
	}
	e.pairs[s.Pair] = pairRef{ctrl: next, reg: ref.reg}
	return fmt.Sprintf("controller %s replaced by %s", rb.PreviousController.Hex(), rb.Controller.Hex()), nil
}

func (e *Engine) hotSwapVault(caller common.Address, s config.Step) (string, error) {
	ref, err := e.pair(s.Pair)
	if err != nil {
		return "", err
	}
	nft, fft := ref.ctrl.Assets()
	v := ref.reg.DeployVault(caller, nft, fft)
	rb, err := ref.reg.SetLiquidity(caller, ref.ctrl, v.Address())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vault %s replaced by %s", rb.PreviousVault.Hex(), rb.Vault.Hex()), nil
}

// migrate deploys a registry administered by caller and moves the pair to it.
func (e *Engine) migrate(caller common.Address, s config.Step) (string, error) {
	ref, err := e.pair(s.Pair)
	if err != nil {
		return "", err
	}
	next, err := registry.New(e.table, e.deps, caller, e.regCfg)
	if err != nil {
		return "", err
	}
	if err := ref.reg.SetFactory(caller, ref.ctrl.Address(), next.Address()); err != nil {
		return "", err
	}
	if _, err := next.SetLiquidity(caller, ref.ctrl, ref.ctrl.Vault()); err != nil {
		return "", err
	}
	e.registries = append(e.registries, next)
	e.pairs[s.Pair] = pairRef{ctrl: ref.ctrl, reg: next}
	return fmt.Sprintf("pair moved to registry %s", next.Address().Hex()), nil
}

func (e *Engine) swap(ctx context.Context, c *controller.Controller, trader common.Address, s config.Step) (string, error) {
	n, err := parseCount(s.Amount)
	if err != nil {
		return "", err
	}
	dir := model.DirectionFFTIn
	if strings.EqualFold(s.Op, "swap-nft") {
		dir = model.DirectionNFTIn
	}
	bound, err := e.swapBound(c, n, dir, s)
	if err != nil {
		return "", err
	}

	var rec model.SwapRecord
	if dir == model.DirectionFFTIn {
		rec, err = c.SwapFFT(ctx, trader, n, bound)
	} else {
		rec, err = c.SwapNFT(ctx, trader, n, bound)
	}
	if err != nil {
		return "", err
	}
	d := c.Decimals()
	return fmt.Sprintf("%s %d nft for %s at %s (fee %s)",
		dir, rec.NFTAmount, amount.Format(rec.FFTAmount, d), amount.Format(rec.SettlementPrice, d), amount.Format(rec.Fee, d)), nil
}

// swapBound reads an explicit limit, or derives one from the current quote
// widened by slippage-bps. Sell limits start from the proceeds after fee.
func (e *Engine) swapBound(c *controller.Controller, n uint64, dir model.Direction, s config.Step) (*uint256.Int, error) {
	if s.Limit != "" {
		return amount.Parse(s.Limit, c.Decimals())
	}
	if s.SlippageBps > pricing.BasisPoints {
		return nil, fmt.Errorf("slippage-bps must be at most %d", pricing.BasisPoints)
	}
	q, err := c.Quote(n, dir)
	if err != nil {
		return nil, err
	}
	base := q.FFTAmount
	bps := uint64(pricing.BasisPoints) + uint64(s.SlippageBps)
	if dir == model.DirectionNFTIn {
		base = c.Proceeds(q)
		bps = uint64(pricing.BasisPoints) - uint64(s.SlippageBps)
	}
	bound, overflow := new(uint256.Int).MulOverflow(base, uint256.NewInt(bps))
	if overflow {
		return nil, fmt.Errorf("slippage bound overflows")
	}
	return bound.Div(bound, uint256.NewInt(pricing.BasisPoints)), nil
}

func parseCount(input string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("nft count %q: %w", input, err)
	}
	return n, nil
}

func formatKind(v *uint256.Int, kind model.Kind, decimals uint8) string {
	if kind == model.KindNFT {
		return v.Dec() + " nft"
	}
	return amount.Format(v, decimals)
}
