// Package subgraph fetches per-market TVL from a Messari-schema lending
// subgraph over GraphQL.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.TVLSource.
var _ outbound.TVLSource = (*Client)(nil)

// marketsQuery pages through markets by id so every page is stable.
const marketsQuery = `query Markets($first: Int!, $lastId: String!) {
  markets(first: $first, orderBy: id, orderDirection: asc, where: { id_gt: $lastId }) {
    id
    totalValueLockedUSD
  }
}`

// ClientConfig holds configuration for the subgraph client.
type ClientConfig struct {
	// URL is the GraphQL endpoint, including any gateway API key.
	URL string

	// PageSize is the number of markets requested per query.
	// The Graph caps this at 1000.
	PageSize int

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		PageSize: 1000,
		Timeout:  30 * time.Second,
		Logger:   slog.Default(),
	}
}

// Client implements outbound.TVLSource.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new subgraph client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("URL is required")
	}

	applyDefaults(&config, ClientConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With("component", "subgraph-client"),
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type marketsResponse struct {
	Data struct {
		Markets []entity.TVLRecord `json:"markets"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchMarketTVL returns every market's TVL, paging sequentially until a
// short page is returned.
func (c *Client) FetchMarketTVL(ctx context.Context) ([]entity.TVLRecord, error) {
	records := make([]entity.TVLRecord, 0)
	lastID := ""

	for page := 1; ; page++ {
		batch, err := c.fetchPage(ctx, lastID)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		records = append(records, batch...)
		c.logger.Debug("fetched TVL page", "page", page, "markets", len(batch))

		if len(batch) < c.config.PageSize {
			break
		}
		next := batch[len(batch)-1].ID
		if next <= lastID {
			return nil, fmt.Errorf("page %d did not advance past id %q", page, lastID)
		}
		lastID = next
	}

	c.logger.Info("fetched market TVL", "markets", len(records))
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, lastID string) ([]entity.TVLRecord, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: marketsQuery,
		Variables: map[string]any{
			"first":  c.config.PageSize,
			"lastId": lastID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var out marketsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	return out.Data.Markets, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
