package aggregate

import (
	"time"

	"github.com/holiman/uint256"

	"hotswap/internal/model"
)

// Accumulator holds running totals for one controller window.
type Accumulator struct {
	ChainID     uint64
	Controller  string
	WindowStart uint64
	WindowEnd   uint64
	SwapCount   uint64
	NFTBought   uint64
	NFTSold     uint64
	Volume      *uint256.Int
	Fees        *uint256.Int
	LastPrice   *uint256.Int
	LastTS      uint64
	FirstBlock  uint64
	LastBlock   uint64
}

func NewAccumulator(record model.LogRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:     record.ChainID,
		Controller:  record.Address,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Volume:      new(uint256.Int),
		Fees:        new(uint256.Int),
		LastPrice:   new(uint256.Int),
		FirstBlock:  record.BlockNumber,
		LastBlock:   record.BlockNumber,
	}
}

// AddSwap folds one settled swap into the window. ts is the record time.
func (a *Accumulator) AddSwap(record model.LogRecord, ts uint64, swap model.SwapRecord) {
	if ts >= a.LastTS {
		a.LastTS = ts
		a.LastBlock = record.BlockNumber
		if swap.SettlementPrice != nil {
			a.LastPrice = new(uint256.Int).Set(swap.SettlementPrice)
		}
	}
	if a.FirstBlock == 0 || (record.BlockNumber != 0 && record.BlockNumber < a.FirstBlock) {
		a.FirstBlock = record.BlockNumber
	}

	if swap.Direction == model.DirectionFFTIn {
		a.NFTBought += swap.NFTAmount
	} else {
		a.NFTSold += swap.NFTAmount
	}
	if swap.FFTAmount != nil {
		a.Volume.Add(a.Volume, swap.FFTAmount)
	}
	if swap.Fee != nil {
		a.Fees.Add(a.Fees, swap.Fee)
	}
	a.SwapCount++
}

// Stats renders the window.
func (a *Accumulator) Stats() model.WindowStats {
	return model.WindowStats{
		ChainID:        a.ChainID,
		Controller:     a.Controller,
		WindowSizeSecs: int64(a.WindowEnd - a.WindowStart),
		WindowStart:    time.Unix(int64(a.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(a.WindowEnd), 0).UTC(),
		SwapCount:      a.SwapCount,
		NFTBought:      a.NFTBought,
		NFTSold:        a.NFTSold,
		FFTVolume:      new(uint256.Int).Set(a.Volume),
		Fees:           new(uint256.Int).Set(a.Fees),
		LastPrice:      new(uint256.Int).Set(a.LastPrice),
		FirstBlock:     a.FirstBlock,
		LastBlock:      a.LastBlock,
	}
}
