package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotswap/internal/chain"
	"hotswap/internal/config"
	"hotswap/internal/indexer"
)

func runToken(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadToken(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	tokens, err := indexer.ParseAddresses(cfg.Tokens)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("token list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	meta := chain.NewTokenMetadata(chainClient, logger)
	for _, token := range tokens {
		m, err := meta.Fetch(ctx, token)
		if err != nil {
			logger.Warn("token metadata failed", zap.String("token", token.Hex()), zap.Error(err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s decimals=%-3d %s\n", m.Address.Hex(), m.Symbol, m.Decimals, m.Name)
	}
	return nil
}
