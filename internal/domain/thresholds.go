package domain

// PairThresholds are the acceptance floors for new pair listings.
// Zero values disable the corresponding check.
type PairThresholds struct {
	MinLiquidityUsd float64 `json:"min_liquidity_usd"`
	MinVolume24hUsd float64 `json:"min_volume_24h_usd"`
	MinTrades24h    float64 `json:"min_trades_24h"`
	MinAgeMinutes   float64 `json:"min_age_minutes"`
}

// TradeThresholds are the acceptance floors for trade events.
type TradeThresholds struct {
	MinTradeUsd float64 `json:"min_trade_usd"`
}
