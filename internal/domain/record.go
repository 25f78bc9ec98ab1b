// Package domain defines the canonical record types shared by all components.
package domain

import "time"

// Category identifies one of the two independent poll pipelines.
type Category string

const (
	CategoryPairs  Category = "pairs"
	CategoryTrades Category = "trades"
)

// TradeSide is the direction of a trade as reported by the upstream, if known.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// RawRecord is one upstream object as decoded from JSON. The upstream schema
// is not under our control and field names vary between API revisions, so the
// shape is kept opaque and all typed access goes through the extract package.
type RawRecord map[string]any

// PairRecord is the canonical view of a new token-pair listing event.
type PairRecord struct {
	DedupKey     string     `json:"dedup_key"`
	PairAddress  string     `json:"pair_address,omitempty"`
	BaseSymbol   string     `json:"base_symbol,omitempty"`
	LiquidityUsd float64    `json:"liquidity_usd"`
	Volume24hUsd float64    `json:"volume_24h_usd"`
	Trades24h    float64    `json:"trades_24h"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	Raw          RawRecord  `json:"raw,omitempty"`
}

// AgeMinutes returns the pair age at the given instant. known is false when
// the creation time could not be determined; callers must treat such records
// as passing any age floor rather than rejecting them as "too new".
func (p *PairRecord) AgeMinutes(now time.Time) (minutes float64, known bool) {
	if p.CreatedAt == nil {
		return 0, false
	}
	return now.Sub(*p.CreatedAt).Minutes(), true
}

// TradeRecord is the canonical view of a single trade event.
type TradeRecord struct {
	DedupKey    string    `json:"dedup_key"`
	AmountUsd   float64   `json:"amount_usd"`
	Side        TradeSide `json:"side,omitempty"`
	PairAddress string    `json:"pair_address,omitempty"`
	BlockTimeMs int64     `json:"block_time_ms"`
	Raw         RawRecord `json:"raw,omitempty"`
}
