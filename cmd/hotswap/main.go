package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "hotswap",
		Short:        "NFT / fungible token exchange with hot-swappable controllers and vaults",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario against an in-memory ledger",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("out", "./data/hotswap_logs.jsonl", "emitted event logs JSONL path")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN for event logs and state snapshots")
	simulateCmd.Flags().String("snapshot", "", "optional JSON path for the final state snapshot")
	simulateCmd.Flags().Uint64("chain-id", 31337, "chain id stamped on emitted logs")
	simulateCmd.Flags().String("admin", "admin", "name of the registry admin account")
	simulateCmd.Flags().Uint32("fee-bps", 30, "swap fee in basis points")
	simulateCmd.Flags().String("deploy-fee", "0.001", "pair deployment fee in native currency")
	simulateCmd.Flags().String("buy-model", "spot", "pricing model for fft-in swaps (spot, impact)")
	simulateCmd.Flags().String("sell-model", "impact", "pricing model for nft-in swaps (spot, impact)")
	simulateCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address until interrupted")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves",
		RunE:  runQuote,
	}

	quoteCmd.Flags().Uint64("nft-reserve", 0, "NFT reserve")
	quoteCmd.Flags().String("fft-reserve", "", "fungible reserve in human units")
	quoteCmd.Flags().Uint64("amount", 1, "number of NFTs traded")
	quoteCmd.Flags().String("direction", "buy", "buy (fft in) or sell (nft in)")
	quoteCmd.Flags().String("model", "", "pricing model, defaults to spot for buys and impact for sells")
	quoteCmd.Flags().Uint32("fee-bps", 30, "swap fee in basis points")
	quoteCmd.Flags().Uint8("decimals", 18, "fungible token decimals")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Fetch ERC20 metadata used to price pairs",
		RunE:  runToken,
	}

	tokenCmd.Flags().String("rpc", "", "RPC URL")
	tokenCmd.Flags().StringSlice("token", nil, "token addresses (comma-separated)")
	tokenCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(tokenCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index hotswap event logs from a chain",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().StringSlice("address", nil, "registry, controller and vault addresses (comma-separated)")
	indexCmd.Flags().StringSlice("topic0", nil, "topic0 filter, defaults to every hotswap event")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	indexCmd.Flags().String("pg-dsn", "", "Postgres DSN, also keeps the checkpoint when set")
	indexCmd.Flags().String("state-name", "hotswap-index", "checkpoint name in Postgres")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode hotswap logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "./data/hotswap_logs.jsonl", "input logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate swap logs into per-controller windows",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("in", "", "input logs JSONL")
	aggregateCmd.Flags().String("out", "./data/swap_windows.jsonl", "output JSONL when no postgres dsn is set")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
