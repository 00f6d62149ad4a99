// Package main provides a CLI that measures how much lending-market TVL
// depends on one price-feed provider. It discovers markets from factory
// events, resolves each market oracle's upstream feeds and joins the result
// with a TVL dataset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"

	"github.com/archon-research/stl/feed-coverage/internal/adapters/outbound/filesystem"
	"github.com/archon-research/stl/feed-coverage/internal/adapters/outbound/s3"
	"github.com/archon-research/stl/feed-coverage/internal/adapters/outbound/subgraph"
	"github.com/archon-research/stl/feed-coverage/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/env"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
	"github.com/archon-research/stl/feed-coverage/internal/services/aggregator_resolution"
	"github.com/archon-research/stl/feed-coverage/internal/services/coverage_analysis"
	"github.com/archon-research/stl/feed-coverage/internal/services/market_discovery"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// Run modes. modeAll runs discovery, resolution and analysis in order.
const (
	modeAll         = "all"
	modeMarkets     = "markets"
	modeAggregators = "aggregators"
	modeAnalysis    = "analysis"
	modeTVL         = "tvl"
)

type cliConfig struct {
	mode string

	rpcURL       string
	factory      common.Address
	eventTopic   common.Hash
	fromBlock    uint64
	toBlock      uint64
	logChunkSize uint64
	useMulticall bool

	dataDir        string
	snapshotBucket string
	snapshotPrefix string
	awsRegion      string

	subgraphURL  string
	providerName string

	otlpEndpoint string
	verbose      bool
}

// needsRPC reports whether the selected mode talks to the chain.
func (c cliConfig) needsRPC() bool {
	return c.mode == modeAll || c.mode == modeMarkets || c.mode == modeAggregators
}

func parseFlags(args []string) (cliConfig, error) {
	fromDefault, err := env.GetInt64("FROM_BLOCK", 0)
	if err != nil {
		return cliConfig{}, err
	}
	toDefault, err := env.GetInt64("TO_BLOCK", 0)
	if err != nil {
		return cliConfig{}, err
	}
	chunkDefault, err := env.GetInt64("LOG_CHUNK_SIZE", 0)
	if err != nil {
		return cliConfig{}, err
	}
	multicallDefault, err := env.GetBool("USE_MULTICALL", false)
	if err != nil {
		return cliConfig{}, err
	}

	fs := flag.NewFlagSet("feed-coverage", flag.ContinueOnError)
	markets := fs.Bool("markets", false, "Only run market discovery")
	aggregators := fs.Bool("aggregators", false, "Only run aggregator resolution")
	analysis := fs.Bool("analysis", false, "Only run coverage analysis")
	tvl := fs.Bool("tvl", false, "Only fetch the TVL dataset from the subgraph")
	rpcURL := fs.String("rpc-url", "", "Ethereum HTTP RPC endpoint (or RPC_URL env var)")
	factory := fs.String("factory", "", "Market factory address (or FACTORY_ADDRESS env var, default Morpho Blue)")
	topic := fs.String("topic", "", "Market creation event topic0 (or CREATE_MARKET_TOPIC env var)")
	fromBlock := fs.Int64("from", fromDefault, "First block to scan for market creation logs")
	toBlock := fs.Int64("to", toDefault, "Last block to scan (0 = chain head)")
	logChunkSize := fs.Int64("log-chunk-size", chunkDefault, "Blocks per eth_getLogs query (0 = single query)")
	useMulticall := fs.Bool("multicall", multicallDefault, "Batch contract reads through Multicall3 instead of JSON-RPC batches")
	dataDir := fs.String("data-dir", "", "Directory for snapshot files (or DATA_DIR env var, default .)")
	bucket := fs.String("bucket", "", "S3 bucket for snapshots instead of the data dir (or SNAPSHOT_BUCKET env var)")
	prefix := fs.String("prefix", "", "S3 key prefix for snapshots (or SNAPSHOT_PREFIX env var)")
	subgraphURL := fs.String("subgraph-url", "", "GraphQL endpoint for TVL data (or SUBGRAPH_URL env var)")
	providerName := fs.String("provider", "", "Label for the provider address set (or PROVIDER_NAME env var, default chainlink)")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		mode:           modeAll,
		rpcURL:         *rpcURL,
		useMulticall:   *useMulticall,
		dataDir:        *dataDir,
		snapshotBucket: *bucket,
		snapshotPrefix: *prefix,
		awsRegion:      env.Get("AWS_REGION", ""),
		subgraphURL:    *subgraphURL,
		providerName:   *providerName,
		otlpEndpoint:   env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		verbose:        *verbose,
	}

	selected := 0
	for mode, set := range map[string]bool{
		modeMarkets:     *markets,
		modeAggregators: *aggregators,
		modeAnalysis:    *analysis,
		modeTVL:         *tvl,
	} {
		if set {
			cfg.mode = mode
			selected++
		}
	}
	if selected > 1 {
		return cliConfig{}, fmt.Errorf("-markets, -aggregators, -analysis and -tvl are mutually exclusive")
	}

	if *fromBlock < 0 || *toBlock < 0 || *logChunkSize < 0 {
		return cliConfig{}, fmt.Errorf("--from, --to and --log-chunk-size must be non-negative")
	}
	cfg.fromBlock = uint64(*fromBlock)
	cfg.toBlock = uint64(*toBlock)
	cfg.logChunkSize = uint64(*logChunkSize)
	if cfg.toBlock != 0 && cfg.toBlock < cfg.fromBlock {
		return cliConfig{}, fmt.Errorf("--to must be >= --from")
	}

	factoryHex := *factory
	if factoryHex == "" {
		factoryHex = env.Get("FACTORY_ADDRESS", blockchain.MorphoBlueAddress)
	}
	if !common.IsHexAddress(factoryHex) {
		return cliConfig{}, fmt.Errorf("invalid factory address %q", factoryHex)
	}
	cfg.factory = common.HexToAddress(factoryHex)

	topicHex := *topic
	if topicHex == "" {
		topicHex = env.Get("CREATE_MARKET_TOPIC", blockchain.CreateMarketTopic)
	}
	cfg.eventTopic, err = parseTopic(topicHex)
	if err != nil {
		return cliConfig{}, err
	}

	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("RPC_URL", "")
	}
	if cfg.needsRPC() && cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC URL not provided (use --rpc-url flag or RPC_URL env var)")
	}

	if cfg.dataDir == "" {
		cfg.dataDir = env.Get("DATA_DIR", ".")
	}
	if cfg.snapshotBucket == "" {
		cfg.snapshotBucket = env.Get("SNAPSHOT_BUCKET", "")
	}
	if cfg.snapshotPrefix == "" {
		cfg.snapshotPrefix = env.Get("SNAPSHOT_PREFIX", "")
	}

	if cfg.subgraphURL == "" {
		cfg.subgraphURL = env.Get("SUBGRAPH_URL", "")
	}
	if cfg.mode == modeTVL && cfg.subgraphURL == "" {
		return cliConfig{}, fmt.Errorf("subgraph URL not provided (use --subgraph-url flag or SUBGRAPH_URL env var)")
	}

	if cfg.providerName == "" {
		cfg.providerName = env.Get("PROVIDER_NAME", "chainlink")
	}

	return cfg, nil
}

func parseTopic(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid event topic %q: want 0x-prefixed 32-byte hex", s)
	}
	return common.BytesToHash(b), nil
}

// run wires the adapters and executes the selected phases. Only setup
// failures are returned; phase failures are logged so the process still
// exits cleanly.
func run(args []string, stdout io.Writer) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logLevel := env.ParseLogLevel(slog.LevelInfo)
	if cfg.verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  "feed-coverage",
		OTLPEndpoint: cfg.otlpEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := newSnapshotStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var phases []phase
	switch cfg.mode {
	case modeTVL:
		phases, err = tvlPhases(cfg, store, logger)
	case modeAnalysis:
		phases, err = analysisPhases(cfg, store, stdout, logger)
	default:
		phases, err = chainPhases(ctx, cfg, store, stdout, logger)
	}
	if err != nil {
		return err
	}

	for _, p := range phases {
		logger.Info("starting phase", "phase", p.name)
		if err := p.run(ctx); err != nil {
			logger.Error("phase failed", "phase", p.name, "error", err)
			if errors.Is(err, outbound.ErrSnapshotNotFound) {
				logger.Error("required input is missing, no output written", "phase", p.name)
			}
			return nil
		}
		logger.Info("phase completed", "phase", p.name)
	}
	return nil
}

type phase struct {
	name string
	run  func(context.Context) error
}

func newSnapshotStore(ctx context.Context, cfg cliConfig, logger *slog.Logger) (outbound.SnapshotStore, error) {
	if cfg.snapshotBucket == "" {
		logger.Info("using filesystem snapshots", "dir", cfg.dataDir)
		return filesystem.NewSnapshotStore(cfg.dataDir, logger), nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.awsRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.awsRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	logger.Info("using S3 snapshots", "bucket", cfg.snapshotBucket, "prefix", cfg.snapshotPrefix)
	return s3.NewSnapshotStore(awsCfg, cfg.snapshotBucket, cfg.snapshotPrefix, logger)
}

func tvlPhases(cfg cliConfig, store outbound.SnapshotStore, logger *slog.Logger) ([]phase, error) {
	client, err := subgraph.NewClient(subgraph.ClientConfig{
		URL:    cfg.subgraphURL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subgraph client: %w", err)
	}

	return []phase{{
		name: modeTVL,
		run: func(ctx context.Context) error {
			records, err := client.FetchMarketTVL(ctx)
			if err != nil {
				return err
			}
			if err := store.Save(ctx, outbound.TVLSnapshot, entity.NewTVLDataset(records)); err != nil {
				return fmt.Errorf("saving TVL dataset: %w", err)
			}
			logger.Info("saved TVL dataset", "markets", len(records), "location", store.Location(outbound.TVLSnapshot))
			return nil
		},
	}}, nil
}

func analysisPhases(cfg cliConfig, store outbound.SnapshotStore, stdout io.Writer, logger *slog.Logger) ([]phase, error) {
	service, err := coverage_analysis.NewService(coverage_analysis.Config{
		ProviderName: cfg.providerName,
		Output:       stdout,
		Logger:       logger,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("creating analysis service: %w", err)
	}

	return []phase{{
		name: modeAnalysis,
		run: func(ctx context.Context) error {
			_, err := service.Run(ctx)
			return err
		},
	}}, nil
}

func chainPhases(ctx context.Context, cfg cliConfig, store outbound.SnapshotStore, stdout io.Writer, logger *slog.Logger) ([]phase, error) {
	httpClient := &http.Client{
		Timeout: 120 * time.Second,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC: %w", err)
	}
	ethClient := ethclient.NewClient(rpcClient)
	logger.Info("Ethereum RPC connected", "url", cfg.rpcURL)

	var multicaller outbound.Multicaller
	if cfg.useMulticall {
		multicaller, err = multicall.NewClient(ethClient, blockchain.Multicall3)
		if err != nil {
			return nil, fmt.Errorf("creating multicall client: %w", err)
		}
		logger.Info("using Multicall3 for contract reads", "address", blockchain.Multicall3.Hex())
	} else {
		multicaller = multicall.NewDirectCaller(rpcClient)
	}

	discovery, err := market_discovery.NewService(market_discovery.Config{
		Factory:      cfg.factory,
		EventTopic:   cfg.eventTopic,
		FromBlock:    cfg.fromBlock,
		ToBlock:      cfg.toBlock,
		LogChunkSize: cfg.logChunkSize,
		Logger:       logger,
	}, ethClient, multicaller, store)
	if err != nil {
		return nil, fmt.Errorf("creating discovery service: %w", err)
	}

	resolution, err := aggregator_resolution.NewService(aggregator_resolution.Config{
		Logger: logger,
	}, multicaller, store)
	if err != nil {
		return nil, fmt.Errorf("creating resolution service: %w", err)
	}

	discoveryPhase := phase{name: modeMarkets, run: discovery.Run}
	resolutionPhase := phase{name: modeAggregators, run: resolution.Run}

	switch cfg.mode {
	case modeMarkets:
		return []phase{discoveryPhase}, nil
	case modeAggregators:
		return []phase{resolutionPhase}, nil
	}

	analysis, err := analysisPhases(cfg, store, stdout, logger)
	if err != nil {
		return nil, err
	}
	return append([]phase{discoveryPhase, resolutionPhase}, analysis...), nil
}
