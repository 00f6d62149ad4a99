// Package coverage_analysis computes how much market TVL depends on price
// feeds from one known provider.
package coverage_analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/stl/feed-coverage/internal/services/coverage_analysis"

// TopUnusedLimit caps the unused TVL entries listed by size.
const TopUnusedLimit = 5

// Config holds configuration for coverage analysis.
type Config struct {
	// ProviderName labels the provider address set in the result.
	ProviderName string

	// Output receives the text report. Defaults to stdout.
	Output io.Writer

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		ProviderName: "chainlink",
		Output:       os.Stdout,
		Logger:       slog.Default(),
	}
}

// Service joins the phase snapshots with the external inputs.
type Service struct {
	config Config
	store  outbound.SnapshotStore
	logger *slog.Logger
}

// NewService creates a new coverage analysis service.
func NewService(config Config, store outbound.SnapshotStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	defaults := configDefaults()
	if config.ProviderName == "" {
		config.ProviderName = defaults.ProviderName
	}
	if config.Output == nil {
		config.Output = defaults.Output
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		store:  store,
		logger: config.Logger.With("component", "coverage-analysis"),
	}, nil
}

// inputs are the four documents the analysis needs.
type inputs struct {
	markets   []entity.Market
	feeds     entity.FeedMap
	tvl       map[common.Hash]decimal.Decimal
	providers entity.ProviderAddressSet
}

// Run loads every input, computes the result, saves it and prints the text
// report. If any input cannot be loaded nothing is written.
func (s *Service) Run(ctx context.Context) (*entity.AnalysisResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("provider", s.config.ProviderName)),
	)
	defer span.End()

	in, err := s.loadInputs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading inputs failed")
		return nil, err
	}

	result := Analyze(in.markets, in.feeds, in.tvl, in.providers, s.config.ProviderName)
	span.SetAttributes(
		attribute.Int("markets.total", result.TotalMarkets),
		attribute.Int("markets.provider", result.ProviderMarkets),
		attribute.Float64("tvl.percentage", result.TVLPercentage),
	)

	if err := s.store.Save(ctx, outbound.AnalysisSnapshot, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saving analysis failed")
		return nil, fmt.Errorf("saving analysis: %w", err)
	}
	s.logger.Info("saved analysis", "location", s.store.Location(outbound.AnalysisSnapshot))

	if _, err := io.WriteString(s.config.Output, FormatText(result)); err != nil {
		return result, fmt.Errorf("writing report: %w", err)
	}
	return result, nil
}

func (s *Service) loadInputs(ctx context.Context) (*inputs, error) {
	var in inputs

	if err := s.store.Load(ctx, outbound.MarketsSnapshot, &in.markets); err != nil {
		return nil, fmt.Errorf("loading markets: %w", err)
	}
	if err := s.store.Load(ctx, outbound.AggregatorSnapshot, &in.feeds); err != nil {
		return nil, fmt.Errorf("loading feed map: %w", err)
	}

	var dataset entity.TVLDataset
	if err := s.store.Load(ctx, outbound.TVLSnapshot, &dataset); err != nil {
		return nil, fmt.Errorf("loading TVL dataset: %w", err)
	}
	tvl, err := dataset.ByMarketID()
	if err != nil {
		return nil, fmt.Errorf("indexing TVL dataset: %w", err)
	}
	in.tvl = tvl

	if err := s.store.Load(ctx, outbound.ProviderSnapshot, &in.providers); err != nil {
		return nil, fmt.Errorf("loading provider addresses: %w", err)
	}

	s.logger.Info("loaded analysis inputs",
		"markets", len(in.markets),
		"oracles", len(in.feeds),
		"tvlEntries", len(in.tvl),
		"providerAddresses", len(in.providers))
	return &in, nil
}

// Analyze joins markets with their TVL and classifies each market by whether
// its oracle reads from a provider feed. TVL entries with no matching market
// are reported as unused.
func Analyze(
	markets []entity.Market,
	feeds entity.FeedMap,
	tvl map[common.Hash]decimal.Decimal,
	providers entity.ProviderAddressSet,
	providerName string,
) *entity.AnalysisResult {
	unused := make(map[common.Hash]decimal.Decimal, len(tvl))
	for id, v := range tvl {
		unused[id] = v
	}

	result := &entity.AnalysisResult{
		Provider:       providerName,
		TotalTVLUSD:    decimal.Zero,
		ProviderTVLUSD: decimal.Zero,
		UnusedTVLUSD:   decimal.Zero,
		TotalMarkets:   len(markets),
		TVLEntries:     len(tvl),
	}

	for _, m := range markets {
		value := tvl[m.ID]
		delete(unused, m.ID)

		result.TotalTVLUSD = result.TotalTVLUSD.Add(value)
		if feeds.UsesAny(m.Oracle, providers) {
			result.ProviderTVLUSD = result.ProviderTVLUSD.Add(value)
			result.ProviderMarkets++
		}
	}

	result.TVLPercentage = entity.Percentage(result.ProviderTVLUSD, result.TotalTVLUSD)
	result.MarketPercentage = entity.Percentage(
		decimal.NewFromInt(int64(result.ProviderMarkets)),
		decimal.NewFromInt(int64(result.TotalMarkets)),
	)

	entries := make([]entity.UnusedTVLEntry, 0, len(unused))
	for id, v := range unused {
		result.UnusedTVLUSD = result.UnusedTVLUSD.Add(v)
		entries = append(entries, entity.UnusedTVLEntry{ID: id.Hex(), TotalValueLockedUSD: v})
	}
	result.UnusedMarkets = len(entries)
	result.MatchedTVLEntries = result.TVLEntries - result.UnusedMarkets

	result.UnusedMarketIDs = make([]string, len(entries))
	for i, e := range entries {
		result.UnusedMarketIDs[i] = e.ID
	}
	sort.Strings(result.UnusedMarketIDs)

	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].TotalValueLockedUSD.Cmp(entries[j].TotalValueLockedUSD); c != 0 {
			return c > 0
		}
		return entries[i].ID < entries[j].ID
	})
	if len(entries) > TopUnusedLimit {
		entries = entries[:TopUnusedLimit]
	}
	result.TopUnused = entries

	return result
}
