// Package store holds the in-memory read model: one ring buffer per record
// category plus the latest raw upstream samples for the debug probes.
package store

import (
	"sync"

	"token-radar/internal/domain"
	"token-radar/internal/ringbuf"
)

// DefaultCapacity is the per-category ring buffer size.
const DefaultCapacity = 200

// Buffers is the process-wide record store. The poller is the only writer;
// HTTP handlers read concurrently, so access is guarded by a RWMutex.
type Buffers struct {
	mu     sync.RWMutex
	pairs  *ringbuf.Buffer[domain.PairRecord]
	trades *ringbuf.Buffer[domain.TradeRecord]

	rawPairsSample  []byte
	rawTradesSample []byte
}

// NewBuffers creates buffers with the given per-category capacity.
func NewBuffers(capacity int) *Buffers {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffers{
		pairs:  ringbuf.New[domain.PairRecord](capacity),
		trades: ringbuf.New[domain.TradeRecord](capacity),
	}
}

// PushPair appends an accepted pair listing.
func (b *Buffers) PushPair(rec domain.PairRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pairs.Push(rec)
}

// PushTrade appends an accepted trade.
func (b *Buffers) PushTrade(rec domain.TradeRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades.Push(rec)
}

// RecentPairs returns up to n pair listings, newest first.
func (b *Buffers) RecentPairs(n int) []domain.PairRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pairs.Recent(n)
}

// RecentTrades returns up to n trades, newest first.
func (b *Buffers) RecentTrades(n int) []domain.TradeRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.trades.Recent(n)
}

// Sizes returns the current buffer lengths.
func (b *Buffers) Sizes() (pairs, trades int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pairs.Len(), b.trades.Len()
}

// SetRawSample stores the latest raw upstream payload for a category.
// Diagnostic only, served by the debug probes.
func (b *Buffers) SetRawSample(cat domain.Category, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sample := make([]byte, len(body))
	copy(sample, body)
	switch cat {
	case domain.CategoryPairs:
		b.rawPairsSample = sample
	case domain.CategoryTrades:
		b.rawTradesSample = sample
	}
}

// RawSample returns the latest raw payload for a category, or nil.
func (b *Buffers) RawSample(cat domain.Category) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch cat {
	case domain.CategoryPairs:
		return b.rawPairsSample
	case domain.CategoryTrades:
		return b.rawTradesSample
	}
	return nil
}
