// Package aggregator_resolution maps each distinct market oracle to the
// upstream price-feed aggregators it reads from.
package aggregator_resolution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/stl/feed-coverage/internal/services/aggregator_resolution"

// Config holds configuration for aggregator resolution.
type Config struct {
	Logger *slog.Logger
}

// Service resolves oracle feeds for the markets snapshot.
type Service struct {
	multicaller outbound.Multicaller
	store       outbound.SnapshotStore

	oracleABI *abi.ABI

	logger *slog.Logger
}

// NewService creates a new aggregator resolution service.
func NewService(config Config, multicaller outbound.Multicaller, store outbound.SnapshotStore) (*Service, error) {
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	oracleABI, err := abis.GetMorphoOracleABI()
	if err != nil {
		return nil, fmt.Errorf("loading oracle ABI: %w", err)
	}

	return &Service{
		multicaller: multicaller,
		store:       store,
		oracleABI:   oracleABI,
		logger:      config.Logger.With("component", "aggregator-resolution"),
	}, nil
}

// Run loads the markets snapshot, resolves the feeds of every oracle and
// saves the feed map.
func (s *Service) Run(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "resolution.run",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	var markets []entity.Market
	if err := s.store.Load(ctx, outbound.MarketsSnapshot, &markets); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading markets failed")
		return fmt.Errorf("loading markets: %w", err)
	}

	feeds, err := s.Resolve(ctx, markets)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolution failed")
		return err
	}
	span.SetAttributes(attribute.Int("oracles.count", len(feeds)))

	if err := s.store.Save(ctx, outbound.AggregatorSnapshot, feeds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saving feed map failed")
		return fmt.Errorf("saving feed map: %w", err)
	}

	s.logger.Info("saved feed map", "oracles", len(feeds), "location", s.store.Location(outbound.AggregatorSnapshot))
	return nil
}

// Resolve probes every distinct oracle referenced by markets. An oracle
// with no usable feed slot maps DEFAULT to itself. Only context
// cancellation aborts the run.
func (s *Service) Resolve(ctx context.Context, markets []entity.Market) (entity.FeedMap, error) {
	oracles := distinctOracles(markets)
	s.logger.Info("resolving oracle feeds", "markets", len(markets), "oracles", len(oracles))

	feeds := make(entity.FeedMap, len(oracles))
	for _, oracle := range oracles {
		found, err := s.resolveOracle(ctx, oracle)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Error("probing oracle failed, treating all slots as absent",
				"oracle", oracle.Hex(), "error", err)
			found = nil
		}
		feeds.Set(oracle, found)
	}

	s.logger.Info("resolved oracle feeds", "oracles", len(feeds))
	return feeds, nil
}

func (s *Service) resolveOracle(ctx context.Context, oracle common.Address) (entity.OracleFeeds, error) {
	results, err := blockchain.ProbeFeeds(ctx, s.multicaller, s.oracleABI, oracle)
	if err != nil {
		return nil, err
	}

	found := make(entity.OracleFeeds)
	for _, r := range results {
		if !r.Present() {
			reason := "zero address"
			if r.Err != nil {
				reason = r.Err.Error()
			}
			s.logger.Debug("feed slot not present", "oracle", oracle.Hex(), "slot", r.Slot, "reason", reason)
			continue
		}
		found[string(r.Slot)] = r.Address
	}

	if len(found) == 0 {
		s.logger.Info("oracle exposes no feed slots, using oracle as its own feed", "oracle", oracle.Hex())
	}
	return found, nil
}

// distinctOracles returns the oracles of markets in first-seen order.
func distinctOracles(markets []entity.Market) []common.Address {
	seen := make(map[common.Address]struct{}, len(markets))
	out := make([]common.Address, 0, len(markets))
	for _, m := range markets {
		if _, ok := seen[m.Oracle]; ok {
			continue
		}
		seen[m.Oracle] = struct{}{}
		out = append(out, m.Oracle)
	}
	return out
}
