package coverage_analysis

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
)

// FormatText returns the analysis result as a human-readable summary.
func FormatText(r *entity.AnalysisResult) string {
	var sb strings.Builder

	sb.WriteString("================================================================================\n")
	sb.WriteString("                          FEED COVERAGE REPORT\n")
	sb.WriteString("================================================================================\n")
	sb.WriteString(fmt.Sprintf("Provider:          %s\n\n", r.Provider))

	sb.WriteString(fmt.Sprintf("Total TVL:         %s\n", formatUSD(r.TotalTVLUSD)))
	sb.WriteString(fmt.Sprintf("Provider TVL:      %s (%.2f%%)\n", formatUSD(r.ProviderTVLUSD), r.TVLPercentage))
	sb.WriteString(fmt.Sprintf("Provider markets:  %d / %d (%.2f%%)\n\n", r.ProviderMarkets, r.TotalMarkets, r.MarketPercentage))

	sb.WriteString(fmt.Sprintf("TVL entries:       %d (%d matched, %d unused)\n",
		r.TVLEntries, r.MatchedTVLEntries, r.UnusedMarkets))
	sb.WriteString(fmt.Sprintf("Unused TVL:        %s\n", formatUSD(r.UnusedTVLUSD)))

	if len(r.TopUnused) > 0 {
		sb.WriteString(fmt.Sprintf("\nTop %d unused by TVL:\n", len(r.TopUnused)))
		for i, e := range r.TopUnused {
			sb.WriteString(fmt.Sprintf("  %d. %s  %s\n", i+1, e.ID, formatUSD(e.TotalValueLockedUSD)))
		}
	}

	return sb.String()
}

// formatUSD renders d with two decimals and thousands separators.
func formatUSD(d decimal.Decimal) string {
	str := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(str, ".")

	var result strings.Builder
	if d.IsNegative() {
		result.WriteByte('-')
	}
	result.WriteByte('$')
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	result.WriteByte('.')
	result.WriteString(frac)
	return result.String()
}
