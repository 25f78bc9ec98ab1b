// Package filter holds the pure acceptance predicates for canonical records.
package filter

import (
	"time"

	"token-radar/internal/domain"
)

// PassPair reports whether a pair listing clears every configured floor.
// Unknown age passes the age check: an unparsable upstream timestamp must not
// reject an otherwise valid listing.
func PassPair(rec domain.PairRecord, t domain.PairThresholds, now time.Time) bool {
	if rec.LiquidityUsd < t.MinLiquidityUsd {
		return false
	}
	if rec.Volume24hUsd < t.MinVolume24hUsd {
		return false
	}
	if rec.Trades24h < t.MinTrades24h {
		return false
	}
	if t.MinAgeMinutes > 0 {
		if age, known := rec.AgeMinutes(now); known && age < t.MinAgeMinutes {
			return false
		}
	}
	return true
}

// PassTrade reports whether a trade clears the notional USD floor.
func PassTrade(rec domain.TradeRecord, t domain.TradeThresholds) bool {
	return rec.AmountUsd >= t.MinTradeUsd
}
