// Package postgres persists event logs and pair state snapshots.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hotswap/internal/model"
)

// Store provides Postgres persistence for event logs and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS hotswap_events (
	chain_id     BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	tx_hash      TEXT   NOT NULL,
	log_index    BIGINT NOT NULL,
	sequence     BIGINT NOT NULL,
	block_hash   TEXT   NOT NULL,
	address      TEXT   NOT NULL,
	event_name   TEXT   NOT NULL,
	topics       TEXT[] NOT NULL,
	data         TEXT   NOT NULL,
	removed      BOOLEAN NOT NULL DEFAULT false,
	block_ts     BIGINT NOT NULL,
	ingested_at  TEXT   NOT NULL,
	PRIMARY KEY (chain_id, block_number, tx_hash, log_index, sequence)
);
CREATE TABLE IF NOT EXISTS hotswap_pairs (
	chain_id   BIGINT  NOT NULL,
	registry   TEXT    NOT NULL,
	pair_id    BIGINT  NOT NULL,
	nft        TEXT    NOT NULL,
	fft        TEXT    NOT NULL,
	controller TEXT    NOT NULL,
	vault      TEXT    NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, registry, pair_id)
);
CREATE TABLE IF NOT EXISTS hotswap_vaults (
	chain_id    BIGINT  NOT NULL,
	vault       TEXT    NOT NULL,
	controller  TEXT    NOT NULL,
	nft_reserve NUMERIC NOT NULL,
	fft_reserve NUMERIC NOT NULL,
	fee_balance NUMERIC NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, vault)
);
CREATE TABLE IF NOT EXISTS hotswap_positions (
	chain_id    BIGINT  NOT NULL,
	vault       TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	idx         BIGINT  NOT NULL,
	owner       TEXT    NOT NULL,
	principal   NUMERIC NOT NULL,
	accrued_fee NUMERIC NOT NULL,
	withdrawn   BOOLEAN NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, vault, kind, idx)
);
CREATE TABLE IF NOT EXISTS hotswap_swap_windows (
	chain_id         BIGINT      NOT NULL,
	controller       TEXT        NOT NULL,
	window_size_secs BIGINT      NOT NULL,
	window_start     TIMESTAMPTZ NOT NULL,
	window_end       TIMESTAMPTZ NOT NULL,
	swap_count       BIGINT      NOT NULL,
	nft_bought       BIGINT      NOT NULL,
	nft_sold         BIGINT      NOT NULL,
	fft_volume       NUMERIC     NOT NULL,
	fees             NUMERIC     NOT NULL,
	last_price       NUMERIC     NOT NULL,
	first_block      BIGINT      NOT NULL,
	last_block       BIGINT      NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, controller, window_size_secs, window_start)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name                 TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tables used by the store.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutLogBatch inserts log records, ignoring ones already stored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`
			INSERT INTO hotswap_events (
				chain_id, block_number, tx_hash, log_index, sequence, block_hash,
				address, event_name, topics, data, removed, block_ts, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
			ON CONFLICT (chain_id, block_number, tx_hash, log_index, sequence) DO NOTHING
		`,
			int64(l.ChainID),
			int64(l.BlockNumber),
			l.TxHash,
			int64(l.LogIndex),
			int64(l.Sequence),
			l.BlockHash,
			l.Address,
			l.EventName,
			l.Topics,
			l.Data,
			l.Removed,
			int64(l.Timestamp),
			l.IngestedAt,
		)
	}
	return s.sendBatch(ctx, batch, len(logs))
}

// SaveSnapshot upserts pairs, vault reserves and positions in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	queued := 0
	chainID := int64(snap.ChainID)
	for _, p := range snap.Pairs {
		batch.Queue(`
			INSERT INTO hotswap_pairs (chain_id, registry, pair_id, nft, fft, controller, vault, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,now())
			ON CONFLICT (chain_id, registry, pair_id)
			DO UPDATE SET controller = EXCLUDED.controller, vault = EXCLUDED.vault, updated_at = now()
		`, chainID, snap.Registry.Hex(), int64(p.Pair.ID), p.Pair.NFT.Hex(), p.Pair.FFT.Hex(), p.Controller.Hex(), p.Vault.Hex())
		queued++
	}
	for _, v := range snap.Vaults {
		batch.Queue(`
			INSERT INTO hotswap_vaults (chain_id, vault, controller, nft_reserve, fft_reserve, fee_balance, updated_at)
			VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,now())
			ON CONFLICT (chain_id, vault)
			DO UPDATE SET
				controller = EXCLUDED.controller,
				nft_reserve = EXCLUDED.nft_reserve,
				fft_reserve = EXCLUDED.fft_reserve,
				fee_balance = EXCLUDED.fee_balance,
				updated_at = now()
		`, chainID, v.Address.Hex(), v.Controller.Hex(),
			fmt.Sprintf("%d", v.Reserves.NFT), decString(v.Reserves.FFT), decString(v.FeeBalance))
		queued++
		for _, p := range v.Positions {
			batch.Queue(`
				INSERT INTO hotswap_positions (chain_id, vault, kind, idx, owner, principal, accrued_fee, withdrawn, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8,now())
				ON CONFLICT (chain_id, vault, kind, idx)
				DO UPDATE SET
					principal = EXCLUDED.principal,
					accrued_fee = EXCLUDED.accrued_fee,
					withdrawn = EXCLUDED.withdrawn,
					updated_at = now()
			`, chainID, v.Address.Hex(), p.Kind.String(), int64(p.Index), p.Owner.Hex(),
				decString(p.Principal), decString(p.AccruedFee), p.Withdrawn)
			queued++
		}
	}
	if queued == 0 {
		return nil
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("snapshot row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertWindowStats writes swap windows. A recomputed window replaces the
// stored one.
func (s *Store) UpsertWindowStats(ctx context.Context, stats []model.WindowStats) error {
	if len(stats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, w := range stats {
		batch.Queue(`
			INSERT INTO hotswap_swap_windows (
				chain_id, controller, window_size_secs, window_start, window_end,
				swap_count, nft_bought, nft_sold, fft_volume, fees, last_price,
				first_block, last_block, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11::numeric,$12,$13,now())
			ON CONFLICT (chain_id, controller, window_size_secs, window_start) DO UPDATE SET
				window_end = EXCLUDED.window_end,
				swap_count = EXCLUDED.swap_count,
				nft_bought = EXCLUDED.nft_bought,
				nft_sold = EXCLUDED.nft_sold,
				fft_volume = EXCLUDED.fft_volume,
				fees = EXCLUDED.fees,
				last_price = EXCLUDED.last_price,
				first_block = EXCLUDED.first_block,
				last_block = EXCLUDED.last_block,
				updated_at = now()
		`,
			int64(w.ChainID),
			w.Controller,
			w.WindowSizeSecs,
			w.WindowStart,
			w.WindowEnd,
			int64(w.SwapCount),
			int64(w.NFTBought),
			int64(w.NFTSold),
			decString(w.FFTVolume),
			decString(w.Fees),
			decString(w.LastPrice),
			int64(w.FirstBlock),
			int64(w.LastBlock),
		)
	}
	return s.sendBatch(ctx, batch, len(stats))
}

// LoadState returns the last processed block recorded under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts the last processed block for name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
