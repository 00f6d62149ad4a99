package coverage_analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
	"github.com/archon-research/stl/feed-coverage/internal/testutil"
)

var (
	idA = common.HexToHash("0xa0")
	idB = common.HexToHash("0xb0")
	idC = common.HexToHash("0xc0")
	o1  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	o2  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	p1  = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func exampleInputs() ([]entity.Market, entity.FeedMap, map[common.Hash]decimal.Decimal, entity.ProviderAddressSet) {
	markets := []entity.Market{
		{ID: idA, Oracle: o1},
		{ID: idB, Oracle: o2},
	}
	feeds := entity.FeedMap{}
	feeds.Set(o1, nil)
	feeds.Set(o2, entity.OracleFeeds{"BASE_FEED_1": p1})
	tvl := map[common.Hash]decimal.Decimal{
		idA: dec("100"),
		idB: dec("300"),
		idC: dec("50"),
	}
	return markets, feeds, tvl, entity.NewProviderAddressSet(p1)
}

func TestAnalyze_Example(t *testing.T) {
	markets, feeds, tvl, providers := exampleInputs()

	r := Analyze(markets, feeds, tvl, providers, "chainlink")

	if !r.TotalTVLUSD.Equal(dec("400")) {
		t.Errorf("TotalTVLUSD = %s, want 400", r.TotalTVLUSD)
	}
	if !r.ProviderTVLUSD.Equal(dec("300")) {
		t.Errorf("ProviderTVLUSD = %s, want 300", r.ProviderTVLUSD)
	}
	if r.TVLPercentage != 75 {
		t.Errorf("TVLPercentage = %v, want 75", r.TVLPercentage)
	}
	if r.TotalMarkets != 2 || r.ProviderMarkets != 1 {
		t.Errorf("markets = %d/%d, want 1/2", r.ProviderMarkets, r.TotalMarkets)
	}
	if r.MarketPercentage != 50 {
		t.Errorf("MarketPercentage = %v, want 50", r.MarketPercentage)
	}
	if r.UnusedMarkets != 1 || !r.UnusedTVLUSD.Equal(dec("50")) {
		t.Errorf("unused = %d / %s, want 1 / 50", r.UnusedMarkets, r.UnusedTVLUSD)
	}
	if len(r.UnusedMarketIDs) != 1 || r.UnusedMarketIDs[0] != idC.Hex() {
		t.Errorf("UnusedMarketIDs = %v", r.UnusedMarketIDs)
	}
	if len(r.TopUnused) != 1 || r.TopUnused[0].ID != idC.Hex() {
		t.Errorf("TopUnused = %v", r.TopUnused)
	}
	if r.TVLEntries != 3 || r.MatchedTVLEntries != 2 {
		t.Errorf("entries = %d matched of %d, want 2 of 3", r.MatchedTVLEntries, r.TVLEntries)
	}
	if r.Provider != "chainlink" {
		t.Errorf("Provider = %q", r.Provider)
	}
}

func TestAnalyze_ZeroTotals(t *testing.T) {
	tests := []struct {
		name    string
		markets []entity.Market
		tvl     map[common.Hash]decimal.Decimal
	}{
		{"no markets", nil, map[common.Hash]decimal.Decimal{idA: dec("10")}},
		{"markets without TVL", []entity.Market{{ID: idA, Oracle: o2}}, map[common.Hash]decimal.Decimal{}},
	}
	feeds := entity.FeedMap{}
	feeds.Set(o2, entity.OracleFeeds{"BASE_FEED_1": p1})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Analyze(tt.markets, feeds, tt.tvl, entity.NewProviderAddressSet(p1), "chainlink")
			if !r.TotalTVLUSD.IsZero() {
				t.Errorf("TotalTVLUSD = %s, want 0", r.TotalTVLUSD)
			}
			if r.TVLPercentage != 0 {
				t.Errorf("TVLPercentage = %v, want 0", r.TVLPercentage)
			}
			if r.MatchedTVLEntries+r.UnusedMarkets != r.TVLEntries {
				t.Errorf("matched %d + unused %d != entries %d", r.MatchedTVLEntries, r.UnusedMarkets, r.TVLEntries)
			}
		})
	}
}

func TestAnalyze_MarketOracleMissingFromFeedMap(t *testing.T) {
	markets := []entity.Market{{ID: idA, Oracle: o1}}
	tvl := map[common.Hash]decimal.Decimal{idA: dec("10")}

	r := Analyze(markets, entity.FeedMap{}, tvl, entity.NewProviderAddressSet(p1), "chainlink")
	if r.ProviderMarkets != 0 || !r.ProviderTVLUSD.IsZero() {
		t.Errorf("provider = %d / %s, want none", r.ProviderMarkets, r.ProviderTVLUSD)
	}
}

func TestAnalyze_TopUnused(t *testing.T) {
	tvl := make(map[common.Hash]decimal.Decimal)
	values := []string{"5", "70.5", "1", "300", "70.5", "12", "0.01"}
	ids := make([]common.Hash, len(values))
	for i, v := range values {
		ids[i] = common.HexToHash(fmt.Sprintf("0x%02x", i+1))
		tvl[ids[i]] = dec(v)
	}

	r := Analyze(nil, entity.FeedMap{}, tvl, entity.NewProviderAddressSet(), "chainlink")

	if r.UnusedMarkets != len(values) {
		t.Fatalf("UnusedMarkets = %d, want %d", r.UnusedMarkets, len(values))
	}
	if !r.UnusedTVLUSD.Equal(dec("459.01")) {
		t.Errorf("UnusedTVLUSD = %s, want 459.01", r.UnusedTVLUSD)
	}
	if len(r.TopUnused) != TopUnusedLimit {
		t.Fatalf("TopUnused = %d, want %d", len(r.TopUnused), TopUnusedLimit)
	}

	wantIDs := []common.Hash{ids[3], ids[1], ids[4], ids[5], ids[0]}
	for i, want := range wantIDs {
		if r.TopUnused[i].ID != want.Hex() {
			t.Errorf("TopUnused[%d] = %s (%s), want %s", i, r.TopUnused[i].ID, r.TopUnused[i].TotalValueLockedUSD, want.Hex())
		}
	}
	for i := 1; i < len(r.TopUnused); i++ {
		if r.TopUnused[i].TotalValueLockedUSD.GreaterThan(r.TopUnused[i-1].TotalValueLockedUSD) {
			t.Errorf("TopUnused not descending at %d", i)
		}
	}
}

func seedStore(t *testing.T) *testutil.MemoryStore {
	t.Helper()
	ctx := context.Background()
	markets, feeds, _, providers := exampleInputs()
	store := testutil.NewMemoryStore()

	if err := store.Save(ctx, outbound.MarketsSnapshot, markets); err != nil {
		t.Fatalf("seeding markets: %v", err)
	}
	if err := store.Save(ctx, outbound.AggregatorSnapshot, feeds); err != nil {
		t.Fatalf("seeding feeds: %v", err)
	}
	store.Put(outbound.TVLSnapshot, `{"data":{"markets":[
		{"id":"`+idA.Hex()+`","totalValueLockedUSD":"100"},
		{"id":"`+idB.Hex()+`","totalValueLockedUSD":300},
		{"id":"`+idC.Hex()+`","totalValueLockedUSD":"50"}
	]}}`)
	if err := store.Save(ctx, outbound.ProviderSnapshot, providers); err != nil {
		t.Fatalf("seeding providers: %v", err)
	}
	return store
}

func TestRun(t *testing.T) {
	store := seedStore(t)
	var out bytes.Buffer

	svc, err := NewService(Config{Output: &out}, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.TVLPercentage != 75 {
		t.Errorf("TVLPercentage = %v, want 75", result.TVLPercentage)
	}

	var saved map[string]any
	if err := store.Load(context.Background(), outbound.AnalysisSnapshot, &saved); err != nil {
		t.Fatalf("loading analysis: %v", err)
	}
	if saved["provider"] != "chainlink" {
		t.Errorf("provider = %v", saved["provider"])
	}
	if saved["unused_markets_count"] != float64(1) {
		t.Errorf("unused_markets_count = %v", saved["unused_markets_count"])
	}

	report := out.String()
	for _, want := range []string{"FEED COVERAGE REPORT", "$400.00", "$300.00 (75.00%)", "1 / 2 (50.00%)", idC.Hex()} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestRun_MissingInput(t *testing.T) {
	for _, missing := range []string{
		outbound.MarketsSnapshot,
		outbound.AggregatorSnapshot,
		outbound.TVLSnapshot,
		outbound.ProviderSnapshot,
	} {
		t.Run(missing, func(t *testing.T) {
			store := seedStore(t)
			delete(store.Docs, missing)
			var out bytes.Buffer

			svc, err := NewService(Config{Output: &out}, store)
			if err != nil {
				t.Fatalf("NewService: %v", err)
			}

			_, err = svc.Run(context.Background())
			if !errors.Is(err, outbound.ErrSnapshotNotFound) {
				t.Errorf("error = %v, want ErrSnapshotNotFound", err)
			}
			if store.Has(outbound.AnalysisSnapshot) {
				t.Error("analysis should not be written")
			}
			if out.Len() != 0 {
				t.Errorf("report should be empty, got %q", out.String())
			}
		})
	}
}

func TestRun_InvalidTVLID(t *testing.T) {
	store := seedStore(t)
	store.Put(outbound.TVLSnapshot, `{"data":{"markets":[{"id":"market-a","totalValueLockedUSD":"1"}]}}`)

	svc, err := NewService(Config{Output: &bytes.Buffer{}}, store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "indexing TVL dataset") {
		t.Errorf("error = %v", err)
	}
	if store.Has(outbound.AnalysisSnapshot) {
		t.Error("analysis should not be written")
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"999.999", "$1,000.00"},
		{"1234567.891", "$1,234,567.89"},
		{"12.5", "$12.50"},
		{"-1500", "-$1,500.00"},
	}
	for _, tt := range tests {
		if got := formatUSD(dec(tt.in)); got != tt.want {
			t.Errorf("formatUSD(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
