package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-radar/internal/domain"
	"token-radar/internal/storage"
)

// schema is applied on startup. The archive is append-only; dedup keys are
// the natural primary keys.
const schema = `
CREATE TABLE IF NOT EXISTS pair_snapshots (
	dedup_key      TEXT PRIMARY KEY,
	pair_address   TEXT NOT NULL DEFAULT '',
	base_symbol    TEXT NOT NULL DEFAULT '',
	liquidity_usd  DOUBLE PRECISION NOT NULL,
	volume_24h_usd DOUBLE PRECISION NOT NULL,
	trades_24h     DOUBLE PRECISION NOT NULL,
	created_at     TIMESTAMPTZ,
	raw            JSONB,
	inserted_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS whale_trades (
	dedup_key     TEXT PRIMARY KEY,
	pair_address  TEXT NOT NULL DEFAULT '',
	side          TEXT NOT NULL DEFAULT '',
	amount_usd    DOUBLE PRECISION NOT NULL,
	block_time_ms BIGINT NOT NULL,
	raw           JSONB,
	inserted_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pair_snapshots_inserted_at ON pair_snapshots (inserted_at DESC);
CREATE INDEX IF NOT EXISTS idx_whale_trades_inserted_at ON whale_trades (inserted_at DESC);
CREATE INDEX IF NOT EXISTS idx_whale_trades_amount_usd ON whale_trades (amount_usd);
`

// ArchiveStore implements storage.ArchiveStore using PostgreSQL.
type ArchiveStore struct {
	pool *Pool
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(pool *Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// EnsureSchema creates the archive tables when missing.
func (s *ArchiveStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// InsertPairs adds pair listings in one transaction. Existing dedup keys are
// skipped: a poll cycle may legitimately re-deliver a record after restart.
func (s *ArchiveStore) InsertPairs(ctx context.Context, recs []domain.PairRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO pair_snapshots (
			dedup_key, pair_address, base_symbol, liquidity_usd, volume_24h_usd, trades_24h, created_at, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedup_key) DO NOTHING
	`

	for _, r := range recs {
		if r.DedupKey == "" {
			return fmt.Errorf("pair record without dedup key: %w", storage.ErrInvalidInput)
		}
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw pair record: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			r.DedupKey,
			r.PairAddress,
			r.BaseSymbol,
			r.LiquidityUsd,
			r.Volume24hUsd,
			r.Trades24h,
			r.CreatedAt,
			raw,
		)
		if err != nil {
			return fmt.Errorf("insert pair snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InsertTrades adds trade records, skipping existing dedup keys.
func (s *ArchiveStore) InsertTrades(ctx context.Context, recs []domain.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO whale_trades (
			dedup_key, pair_address, side, amount_usd, block_time_ms, raw
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedup_key) DO NOTHING
	`

	for _, r := range recs {
		if r.DedupKey == "" {
			return fmt.Errorf("trade record without dedup key: %w", storage.ErrInvalidInput)
		}
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw trade record: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			r.DedupKey,
			r.PairAddress,
			string(r.Side),
			r.AmountUsd,
			r.BlockTimeMs,
			raw,
		)
		if err != nil {
			return fmt.Errorf("insert whale trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RecentPairs retrieves up to limit pair listings, newest first.
func (s *ArchiveStore) RecentPairs(ctx context.Context, limit int) ([]domain.PairRecord, error) {
	query := `
		SELECT dedup_key, pair_address, base_symbol, liquidity_usd, volume_24h_usd, trades_24h, created_at
		FROM pair_snapshots
		ORDER BY inserted_at DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent pairs: %w", err)
	}
	defer rows.Close()

	return scanPairs(rows)
}

// RecentTrades retrieves up to limit trades at or above minUsd, newest first.
func (s *ArchiveStore) RecentTrades(ctx context.Context, minUsd float64, limit int) ([]domain.TradeRecord, error) {
	query := `
		SELECT dedup_key, pair_address, side, amount_usd, block_time_ms
		FROM whale_trades
		WHERE amount_usd >= $1
		ORDER BY inserted_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, minUsd, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	var recs []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var side string
		if err := rows.Scan(&r.DedupKey, &r.PairAddress, &side, &r.AmountUsd, &r.BlockTimeMs); err != nil {
			return nil, fmt.Errorf("scan whale trade row: %w", err)
		}
		r.Side = domain.TradeSide(side)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whale trade rows: %w", err)
	}
	return recs, nil
}

func scanPairs(rows pgx.Rows) ([]domain.PairRecord, error) {
	var recs []domain.PairRecord
	for rows.Next() {
		var r domain.PairRecord
		var createdAt *time.Time
		err := rows.Scan(
			&r.DedupKey,
			&r.PairAddress,
			&r.BaseSymbol,
			&r.LiquidityUsd,
			&r.Volume24hUsd,
			&r.Trades24h,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan pair snapshot row: %w", err)
		}
		r.CreatedAt = createdAt
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pair snapshot rows: %w", err)
	}
	return recs, nil
}
