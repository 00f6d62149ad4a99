package entity

import (
	"github.com/shopspring/decimal"
)

// UnusedTVLEntry is a TVL dataset record with no matching discovered market.
type UnusedTVLEntry struct {
	ID                  string          `json:"id"`
	TotalValueLockedUSD decimal.Decimal `json:"totalValueLockedUSD"`
}

// AnalysisResult is the outcome of joining discovered markets, resolved feeds,
// TVL data and a provider address set.
type AnalysisResult struct {
	Provider string `json:"provider"`

	TotalTVLUSD    decimal.Decimal `json:"total_tvl_usd"`
	ProviderTVLUSD decimal.Decimal `json:"provider_tvl_usd"`
	TVLPercentage  float64         `json:"tvl_percentage"`

	TotalMarkets     int     `json:"total_markets"`
	ProviderMarkets  int     `json:"provider_markets"`
	MarketPercentage float64 `json:"market_percentage"`

	// TVLEntries counts distinct market ids in the TVL dataset; each one is
	// either matched to a discovered market or listed as unused.
	TVLEntries        int              `json:"tvl_entries"`
	MatchedTVLEntries int              `json:"matched_tvl_entries"`
	UnusedMarkets     int              `json:"unused_markets_count"`
	UnusedTVLUSD      decimal.Decimal  `json:"unused_tvl_usd"`
	UnusedMarketIDs   []string         `json:"unused_market_ids"`
	TopUnused         []UnusedTVLEntry `json:"top_unused"`
}

// Percentage returns part/total*100, or 0 when total is not positive.
func Percentage(part, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}
