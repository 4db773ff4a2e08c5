package model

import (
	"time"

	"github.com/holiman/uint256"
)

// WindowStats aggregates the swaps of one controller over a time window.
// Amounts are in smallest fungible units.
type WindowStats struct {
	ChainID        uint64       `json:"chain_id"`
	Controller     string       `json:"controller"`
	WindowSizeSecs int64        `json:"window_size_secs"`
	WindowStart    time.Time    `json:"window_start"`
	WindowEnd      time.Time    `json:"window_end"`
	SwapCount      uint64       `json:"swap_count"`
	NFTBought      uint64       `json:"nft_bought"`
	NFTSold        uint64       `json:"nft_sold"`
	FFTVolume      *uint256.Int `json:"fft_volume"`
	Fees           *uint256.Int `json:"fees"`
	LastPrice      *uint256.Int `json:"last_price"`
	FirstBlock     uint64       `json:"first_block,omitempty"`
	LastBlock      uint64       `json:"last_block,omitempty"`
}
