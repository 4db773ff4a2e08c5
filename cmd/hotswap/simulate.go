package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotswap/internal/config"
	"hotswap/internal/events"
	"hotswap/internal/metrics"
	"hotswap/internal/model"
	"hotswap/internal/simulate"
	"hotswap/internal/storage"
	"hotswap/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorageTruncate(cfg.Out))
	}
	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logSink := events.NewLogSink(sinks, cfg.ChainID, logger)

	engine, err := simulate.New(cfg, events.Multi{m, logSink}, logger)
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.Int("steps", len(cfg.Steps)),
		zap.Int("accounts", len(cfg.Accounts)),
		zap.Uint32("fee_bps", cfg.FeeBps),
		zap.String("buy_model", cfg.BuyModel),
		zap.String("sell_model", cfg.SellModel),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", store != nil),
	)

	results, runErr := engine.Run(ctx, cfg.Steps)
	for _, res := range results {
		if res.Err != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%3d %-20s expected error: %s\n", res.Index, res.Op, res.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%3d %-20s %s\n", res.Index, res.Op, res.Detail)
	}

	// Logs of the steps that did run are kept even when a later step failed.
	if err := logSink.Flush(ctx); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	snaps := engine.Snapshots()
	if store != nil {
		for _, snap := range snaps {
			if err := store.SaveSnapshot(ctx, snap); err != nil {
				return err
			}
		}
	}
	if cfg.Snapshot != "" {
		if err := writeSnapshots(cfg.Snapshot, snaps); err != nil {
			return err
		}
	}

	logger.Info("simulate complete", zap.Int("steps", len(results)), zap.Int("registries", len(snaps)))

	if cfg.MetricsAddr != "" {
		return serveMetrics(ctx, cfg.MetricsAddr, reg, logger)
	}
	return nil
}

func writeSnapshots(path string, snaps []model.Snapshot) error {
	w, err := storage.OpenJSONL(path, false)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		if err := w.Write(snap); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
