// Package storage defines the optional durable archive behind the in-memory
// read model. The ring buffers remain the read path; the archive is a sink.
package storage

import (
	"context"

	"token-radar/internal/domain"
)

// ArchiveStore persists accepted records for later analysis.
type ArchiveStore interface {
	// InsertPairs adds pair listings. Records whose dedup key already exists
	// are skipped, not errors; a poll cycle may legitimately re-deliver.
	InsertPairs(ctx context.Context, recs []domain.PairRecord) error

	// InsertTrades adds trade records, skipping existing dedup keys.
	InsertTrades(ctx context.Context, recs []domain.TradeRecord) error

	// RecentPairs retrieves up to limit pair listings, newest first.
	RecentPairs(ctx context.Context, limit int) ([]domain.PairRecord, error)

	// RecentTrades retrieves up to limit trades with amount >= minUsd,
	// newest first.
	RecentTrades(ctx context.Context, minUsd float64, limit int) ([]domain.TradeRecord, error)
}
