// Package pricing computes exchange ratios and settlement amounts from vault
// reserves. It holds no state.
package pricing

import (
	"github.com/holiman/uint256"

	"hotswap/internal/errs"
	"hotswap/internal/model"
)

// BasisPoints is the denominator of fee rates.
const BasisPoints = 10_000

// Quote is the outcome of pricing a trade of NFTAmount units.
type Quote struct {
	Direction model.Direction
	NFTAmount uint64
	// SpotPrice is the standing ratio before the trade.
	SpotPrice *uint256.Int
	// Provisional is NFTAmount × SpotPrice.
	Provisional *uint256.Int
	// PostTrade are the reserves the settlement price was read from.
	PostTrade       model.Reserves
	SettlementPrice *uint256.Int
	// FFTAmount is NFTAmount × SettlementPrice.
	FFTAmount *uint256.Int
}

// Price returns FFT / NFT in smallest fungible units per NFT, rounded down.
func Price(r model.Reserves) (*uint256.Int, error) {
	if r.NFT == 0 {
		return nil, errs.ErrZeroLiquidity
	}
	fft := r.Of(model.KindFFT)
	return fft.Div(fft, uint256.NewInt(r.NFT)), nil
}

// Impact prices a trade with one impact-correction pass: the provisional
// amount at the standing price is applied to the reserves, and the trade
// settles at the ratio of those hypothetical post-trade reserves.
func Impact(r model.Reserves, nftAmount uint64, dir model.Direction) (Quote, error) {
	q, err := begin(r, nftAmount, dir)
	if err != nil {
		return Quote{}, err
	}

	post := model.Reserves{FFT: r.Of(model.KindFFT)}
	switch dir {
	case model.DirectionNFTIn:
		if r.NFT+nftAmount < r.NFT {
			return Quote{}, errs.ErrOverflow.Wrap("nft reserve")
		}
		if post.FFT.Lt(q.Provisional) {
			return Quote{}, errs.ErrInsufficientReserve.Wrapf("provisional payout %s exceeds fft reserve %s", q.Provisional, post.FFT)
		}
		post.NFT = r.NFT + nftAmount
		post.FFT.Sub(post.FFT, q.Provisional)
	case model.DirectionFFTIn:
		if nftAmount >= r.NFT {
			return Quote{}, errs.ErrInsufficientReserve.Wrapf("requested %d nft, reserve %d", nftAmount, r.NFT)
		}
		post.NFT = r.NFT - nftAmount
		if _, overflow := post.FFT.AddOverflow(post.FFT, q.Provisional); overflow {
			return Quote{}, errs.ErrOverflow.Wrap("fft reserve")
		}
	default:
		return Quote{}, errs.ErrInvalidAmount.Wrapf("unknown direction %s", dir)
	}

	q.PostTrade = post
	q.SettlementPrice = new(uint256.Int).Div(post.FFT, uint256.NewInt(post.NFT))
	return finish(q)
}

// Spot prices a trade at the standing ratio.
func Spot(r model.Reserves, nftAmount uint64, dir model.Direction) (Quote, error) {
	q, err := begin(r, nftAmount, dir)
	if err != nil {
		return Quote{}, err
	}

	post := model.Reserves{FFT: r.Of(model.KindFFT)}
	switch dir {
	case model.DirectionFFTIn:
		if nftAmount > r.NFT {
			return Quote{}, errs.ErrInsufficientReserve.Wrapf("requested %d nft, reserve %d", nftAmount, r.NFT)
		}
		post.NFT = r.NFT - nftAmount
		if _, overflow := post.FFT.AddOverflow(post.FFT, q.Provisional); overflow {
			return Quote{}, errs.ErrOverflow.Wrap("fft reserve")
		}
	case model.DirectionNFTIn:
		if post.FFT.Lt(q.Provisional) {
			return Quote{}, errs.ErrInsufficientReserve.Wrapf("payout %s exceeds fft reserve %s", q.Provisional, post.FFT)
		}
		if r.NFT+nftAmount < r.NFT {
			return Quote{}, errs.ErrOverflow.Wrap("nft reserve")
		}
		post.NFT = r.NFT + nftAmount
		post.FFT.Sub(post.FFT, q.Provisional)
	default:
		return Quote{}, errs.ErrInvalidAmount.Wrapf("unknown direction %s", dir)
	}

	q.PostTrade = post
	q.SettlementPrice = new(uint256.Int).Set(q.SpotPrice)
	return finish(q)
}

// Fee returns floor(amount × bps / 10000).
func Fee(amount *uint256.Int, bps uint32) *uint256.Int {
	if amount == nil || bps == 0 {
		return new(uint256.Int)
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(uint64(bps)), uint256.NewInt(BasisPoints))
	if overflow {
		// bps <= BasisPoints keeps the result below amount.
		return new(uint256.Int).Set(amount)
	}
	return fee
}

func begin(r model.Reserves, nftAmount uint64, dir model.Direction) (Quote, error) {
	if nftAmount == 0 {
		return Quote{}, errs.ErrInvalidAmount.Wrap("nft amount must be positive")
	}
	spot, err := Price(r)
	if err != nil {
		return Quote{}, err
	}
	provisional, overflow := new(uint256.Int).MulOverflow(spot, uint256.NewInt(nftAmount))
	if overflow {
		return Quote{}, errs.ErrOverflow.Wrap("provisional amount")
	}
	return Quote{
		Direction:   dir,
		NFTAmount:   nftAmount,
		SpotPrice:   spot,
		Provisional: provisional,
	}, nil
}

func finish(q Quote) (Quote, error) {
	amount, overflow := new(uint256.Int).MulOverflow(q.SettlementPrice, uint256.NewInt(q.NFTAmount))
	if overflow {
		return Quote{}, errs.ErrOverflow.Wrap("settlement amount")
	}
	q.FFTAmount = amount
	return q, nil
}
