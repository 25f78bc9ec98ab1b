// Package extract normalizes heterogeneous upstream records into canonical
// typed views. The upstream schema has changed between releases, so every
// logical field is resolved through an ordered list of extraction strategies
// rather than a single hardcoded key.
package extract

import (
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/idhash"
)

// NumberStrategy tries to pull one logical numeric field out of a raw record.
// Returns (value, true) only when the field is present and usable.
type NumberStrategy func(raw domain.RawRecord) (float64, bool)

// directKey returns a strategy reading a single key, accepting only strictly
// positive finite values.
func directKey(key string) NumberStrategy {
	return func(raw domain.RawRecord) (float64, bool) {
		v, ok := raw[key]
		if !ok {
			return 0, false
		}
		f := ToNumber(v, 0)
		if f <= 0 {
			return 0, false
		}
		return f, true
	}
}

// productKeys returns a strategy computing qtyKey * priceKey.
func productKeys(qtyKey, priceKey string) NumberStrategy {
	return func(raw domain.RawRecord) (float64, bool) {
		qv, qok := raw[qtyKey]
		pv, pok := raw[priceKey]
		if !qok || !pok {
			return 0, false
		}
		product := ToNumber(qv, 0) * ToNumber(pv, 0)
		if product <= 0 {
			return 0, false
		}
		return product, true
	}
}

// tradeUsdStrategies is the priority-ordered list of ways a trade's notional
// USD value has appeared across upstream revisions. Direct fields first, then
// quantity*price fallbacks.
var tradeUsdStrategies = []NumberStrategy{
	directKey("amountUsd"),
	directKey("amount_usd"),
	directKey("volumeUsd"),
	directKey("volumeUSD"),
	directKey("volume_usd"),
	directKey("usdValue"),
	directKey("usd_value"),
	directKey("valueUsd"),
	directKey("value_usd"),
	directKey("totalUsd"),
	directKey("total_usd"),
	directKey("tradeUsd"),
	directKey("usd"),
	productKeys("quantity", "price"),
	productKeys("amount", "price"),
	productKeys("amount", "priceUsd"),
	productKeys("baseAmount", "price"),
	productKeys("uiAmount", "price"),
	productKeys("amount", "price_usd"),
}

var pairLiquidityStrategies = []NumberStrategy{
	directKey("liquidityUsd"),
	directKey("liquidity_usd"),
	directKey("liquidityUSD"),
	directKey("liquidity"),
	nestedUsd("liquidity"),
}

var pairVolume24hStrategies = []NumberStrategy{
	directKey("volume24hUsd"),
	directKey("volume_24h_usd"),
	directKey("v24hUSD"),
	directKey("v24hUsd"),
	directKey("volume24h"),
	directKey("volume_24h"),
	nestedKey("volume", "h24"),
}

var pairTrades24hStrategies = []NumberStrategy{
	directKey("trades24h"),
	directKey("trade24h"),
	directKey("txns24h"),
	directKey("trade_24h"),
	directKey("txCount24h"),
	nestedKey("txns", "h24"),
}

// nestedUsd reads obj[key].usd, the DexScreener liquidity shape.
func nestedUsd(key string) NumberStrategy {
	return nestedKey(key, "usd")
}

// nestedKey reads obj[outer][inner] as a positive number.
func nestedKey(outer, inner string) NumberStrategy {
	return func(raw domain.RawRecord) (float64, bool) {
		obj, ok := raw[outer].(map[string]any)
		if !ok {
			return 0, false
		}
		v, ok := obj[inner]
		if !ok {
			return 0, false
		}
		f := ToNumber(v, 0)
		if f <= 0 {
			return 0, false
		}
		return f, true
	}
}

// resolve runs strategies in order and returns the first hit, or def.
func resolve(raw domain.RawRecord, strategies []NumberStrategy, def float64) float64 {
	for _, s := range strategies {
		if v, ok := s(raw); ok {
			return v
		}
	}
	return def
}

// TradeUsd resolves the notional USD value of a trade record. Returns 0 when
// no strategy produces a positive finite value.
func TradeUsd(raw domain.RawRecord) float64 {
	return resolve(raw, tradeUsdStrategies, 0)
}

// ExtractPair produces the canonical view of a pair-creation record.
// It never panics; all numeric outputs are finite.
func ExtractPair(raw domain.RawRecord) domain.PairRecord {
	return domain.PairRecord{
		DedupKey:     idhash.DedupKey(raw),
		PairAddress:  stringField(raw, "pairAddress", "pair_address", "address", "poolAddress", "pool_address"),
		BaseSymbol:   baseSymbol(raw),
		LiquidityUsd: resolve(raw, pairLiquidityStrategies, 0),
		Volume24hUsd: resolve(raw, pairVolume24hStrategies, 0),
		Trades24h:    resolve(raw, pairTrades24hStrategies, 0),
		CreatedAt:    CreationTime(raw),
		Raw:          raw,
	}
}

// ExtractTrade produces the canonical view of a trade record.
func ExtractTrade(raw domain.RawRecord) domain.TradeRecord {
	return domain.TradeRecord{
		DedupKey:    idhash.DedupKey(raw),
		AmountUsd:   TradeUsd(raw),
		Side:        tradeSide(raw),
		PairAddress: stringField(raw, "pairAddress", "pair_address", "poolAddress", "pool_address", "address"),
		BlockTimeMs: blockTimeMs(raw),
		Raw:         raw,
	}
}

func tradeSide(raw domain.RawRecord) domain.TradeSide {
	s := stringField(raw, "side", "txType", "tx_type", "type")
	switch s {
	case "buy", "BUY", "Buy":
		return domain.TradeSideBuy
	case "sell", "SELL", "Sell":
		return domain.TradeSideSell
	}
	return ""
}

func baseSymbol(raw domain.RawRecord) string {
	if s := stringField(raw, "symbol", "baseSymbol", "base_symbol"); s != "" {
		return s
	}
	if base, ok := raw["baseToken"].(map[string]any); ok {
		if s, ok := base["symbol"].(string); ok {
			return s
		}
	}
	return ""
}

// stringField returns the first non-empty string value among keys, but only
// when it looks like a plausible value for that field (addresses are
// validated elsewhere; here any non-empty string is accepted).
func stringField(raw domain.RawRecord, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// timestampKeys are the creation-time field spellings seen upstream,
// in priority order.
var timestampKeys = []string{
	"pairCreatedAt", "createdAt", "created_at", "listingTime", "listing_time",
	"blockUnixTime", "block_unix_time", "time", "timestamp",
}

// CreationTime resolves a record's creation timestamp. Numeric values are
// interpreted as unix epoch (seconds or milliseconds, decided by magnitude);
// strings are parsed as RFC 3339. Unparsable timestamps yield nil, which the
// filter treats as unknown age rather than rejecting the record.
func CreationTime(raw domain.RawRecord) *time.Time {
	for _, key := range timestampKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return &t
		}
	}
	return nil
}

// blockTimeMs resolves a trade's block time in milliseconds since epoch.
// Falls back to 0 when unknown.
func blockTimeMs(raw domain.RawRecord) int64 {
	for _, key := range []string{"blockTimeMs", "block_time_ms", "blockUnixTime", "block_unix_time", "blockTime", "block_time", "time", "timestamp"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return t.UnixMilli()
		}
	}
	return 0
}

// msEpochFloor: numeric timestamps at or above this are milliseconds.
// Corresponds to 2001-09-09 in ms and year ~33658 in seconds.
const msEpochFloor = 1e12

func parseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, ts); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	default:
		f := ToNumber(v, 0)
		if f <= 0 {
			return time.Time{}, false
		}
		if f >= msEpochFloor {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Unix(int64(f), 0).UTC(), true
	}
}
