package outbound

import (
	"context"
	"errors"
)

// Snapshot document names shared by the phases.
const (
	MarketsSnapshot    = "markets.json"
	AggregatorSnapshot = "aggregator.json"
	TVLSnapshot        = "tvl.json"
	ProviderSnapshot   = "chainlink.json"
	AnalysisSnapshot   = "analysis.json"
)

// ErrSnapshotNotFound is returned by SnapshotStore.Load when the named
// document does not exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists named JSON documents. Phase outputs and external
// inputs (TVL dataset, provider address list) all go through it.
type SnapshotStore interface {
	// Save encodes v as indented JSON and writes it under name, replacing
	// any existing document.
	Save(ctx context.Context, name string, v any) error

	// Load decodes the document stored under name into v.
	Load(ctx context.Context, name string, v any) error

	// Location describes where name is stored, for log output.
	Location(name string) string
}
