package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotswap/internal/amount"
	"hotswap/internal/config"
	"hotswap/internal/controller"
	"hotswap/internal/model"
	"hotswap/internal/pricing"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.FFTReserve == "" {
		return fmt.Errorf("fft reserve is required")
	}
	fftReserve, err := amount.Parse(cfg.FFTReserve, cfg.Decimals)
	if err != nil {
		return err
	}
	dir, err := model.ParseDirection(cfg.Direction)
	if err != nil {
		return err
	}

	defaults := controller.DefaultConfig()
	m := defaults.BuyModel
	if dir == model.DirectionNFTIn {
		m = defaults.SellModel
	}
	if cfg.Model != "" {
		if m, err = pricing.ParseModel(cfg.Model); err != nil {
			return err
		}
	}
	if cfg.FeeBps > pricing.BasisPoints {
		return fmt.Errorf("fee-bps must be at most %d", pricing.BasisPoints)
	}

	reserves := model.Reserves{NFT: cfg.NFTReserve, FFT: fftReserve}
	q, err := m.Quote(reserves, cfg.Amount, dir)
	if err != nil {
		return err
	}
	fee := pricing.Fee(q.FFTAmount, cfg.FeeBps)

	logger.Debug("quote",
		zap.String("direction", dir.String()),
		zap.String("model", m.String()),
		zap.Uint64("nft_reserve", cfg.NFTReserve),
		zap.String("fft_reserve", fftReserve.Dec()),
	)

	d := cfg.Decimals
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "direction:        %s (%s)\n", dir, m)
	fmt.Fprintf(out, "spot price:       %s\n", amount.Format(q.SpotPrice, d))
	fmt.Fprintf(out, "settlement price: %s\n", amount.Format(q.SettlementPrice, d))
	fmt.Fprintf(out, "fft amount:       %s\n", amount.Format(q.FFTAmount, d))
	fmt.Fprintf(out, "fee:              %s\n", amount.Format(fee, d))
	if dir == model.DirectionNFTIn {
		fmt.Fprintf(out, "trader receives:  %s\n", amount.Format(new(uint256.Int).Sub(q.FFTAmount, fee), d))
	}
	fmt.Fprintf(out, "post-trade:       %d nft / %s\n", q.PostTrade.NFT, amount.Format(q.PostTrade.FFT, d))
	return nil
}
