// Package market_discovery enumerates lending markets created by a factory
// contract and records each market's oracle and current on-chain state.
package market_discovery

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain/abis"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/partition"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/stl/feed-coverage/internal/services/market_discovery"

// Config holds configuration for market discovery.
type Config struct {
	// Factory emits the CreateMarket events. Defaults to Morpho Blue.
	Factory common.Address

	// EventTopic is topic0 of the market creation event.
	EventTopic common.Hash

	FromBlock uint64
	// ToBlock of 0 means the chain head at the time Run starts.
	ToBlock uint64

	// LogChunkSize splits the log query into sequential block ranges.
	// 0 queries the whole range at once.
	LogChunkSize uint64

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		Factory:    blockchain.MorphoBlue,
		EventTopic: common.HexToHash(blockchain.CreateMarketTopic),
		Logger:     slog.Default(),
	}
}

// Service discovers markets and writes them to the snapshot store.
type Service struct {
	config      Config
	logs        outbound.LogFilterer
	multicaller outbound.Multicaller
	store       outbound.SnapshotStore

	factoryABI *abi.ABI

	logger *slog.Logger
}

// NewService creates a new market discovery service.
func NewService(
	config Config,
	logs outbound.LogFilterer,
	multicaller outbound.Multicaller,
	store outbound.SnapshotStore,
) (*Service, error) {
	if logs == nil {
		return nil, fmt.Errorf("logs cannot be nil")
	}
	if multicaller == nil {
		return nil, fmt.Errorf("multicaller cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	defaults := configDefaults()
	if config.Factory == (common.Address{}) {
		config.Factory = defaults.Factory
	}
	if config.EventTopic == (common.Hash{}) {
		config.EventTopic = defaults.EventTopic
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	factoryABI, err := abis.GetMorphoABI()
	if err != nil {
		return nil, fmt.Errorf("loading Morpho ABI: %w", err)
	}

	return &Service{
		config:      config,
		logs:        logs,
		multicaller: multicaller,
		store:       store,
		factoryABI:  factoryABI,
		logger:      config.Logger.With("component", "market-discovery"),
	}, nil
}

// Run discovers all markets and saves them as the markets snapshot.
func (s *Service) Run(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "discovery.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("factory", s.config.Factory.Hex())),
	)
	defer span.End()

	markets, err := s.Discover(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		return err
	}
	span.SetAttributes(attribute.Int("markets.count", len(markets)))

	if err := s.store.Save(ctx, outbound.MarketsSnapshot, markets); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "saving markets failed")
		return fmt.Errorf("saving markets: %w", err)
	}

	s.logger.Info("saved markets", "count", len(markets), "location", s.store.Location(outbound.MarketsSnapshot))
	return nil
}

// Discover fetches CreateMarket logs and returns one record per market in
// log order. Malformed logs are skipped. A market whose state lookup fails is
// kept with its state cleared and the failure recorded.
func (s *Service) Discover(ctx context.Context) ([]entity.Market, error) {
	toBlock := s.config.ToBlock
	if toBlock == 0 {
		head, err := s.logs.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching chain head: %w", err)
		}
		toBlock = head
	}

	ranges := partition.Split(s.config.FromBlock, toBlock, s.config.LogChunkSize)
	s.logger.Info("fetching market creation logs",
		"factory", s.config.Factory.Hex(),
		"fromBlock", s.config.FromBlock,
		"toBlock", toBlock,
		"chunks", len(ranges))

	markets := make([]entity.Market, 0)
	seen := make(map[common.Hash]struct{})

	for _, r := range ranges {
		logs, err := s.filterLogs(ctx, r)
		if err != nil {
			return nil, err
		}

		for _, log := range logs {
			market, err := blockchain.DecodeCreateMarketLog(log)
			if err != nil {
				s.logger.Warn("skipping malformed log",
					"tx", log.TxHash.Hex(),
					"block", log.BlockNumber,
					"error", err)
				continue
			}
			if _, dup := seen[market.ID]; dup {
				s.logger.Warn("skipping duplicate market", "id", market.ID.Hex(), "block", log.BlockNumber)
				continue
			}
			seen[market.ID] = struct{}{}

			state, err := blockchain.FetchMarketState(ctx, s.multicaller, s.factoryABI, s.config.Factory, market.ID)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger.Error("market lookup failed", "id", market.ID.Hex(), "error", err)
				market.MarkUnavailable(err)
			} else {
				market.State = state
			}

			markets = append(markets, *market)
		}
	}

	s.logger.Info("discovered markets", "count", len(markets))
	return markets, nil
}

func (s *Service) filterLogs(ctx context.Context, r partition.BlockRange) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		ToBlock:   new(big.Int).SetUint64(r.To),
		Addresses: []common.Address{s.config.Factory},
		Topics:    [][]common.Hash{{s.config.EventTopic}},
	}
	logs, err := s.logs.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filtering logs in blocks %s: %w", r, err)
	}
	s.logger.Debug("fetched logs", "blocks", r.String(), "count", len(logs))
	return logs, nil
}
