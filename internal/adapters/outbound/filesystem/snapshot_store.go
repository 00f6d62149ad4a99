// Package filesystem stores snapshots as indented JSON files in a local directory.
package filesystem

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

var _ outbound.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore implements outbound.SnapshotStore on a directory.
type SnapshotStore struct {
	dir    string
	logger *slog.Logger
}

// NewSnapshotStore creates a store rooted at dir. The directory is created
// on first write.
func NewSnapshotStore(dir string, logger *slog.Logger) *SnapshotStore {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		dir:    dir,
		logger: logger.With("component", "snapshot-store"),
	}
}

// Location returns the file path for name.
func (s *SnapshotStore) Location(name string) string {
	return filepath.Join(s.dir, name)
}

// Save writes v as indented JSON. The file is written to a temporary path
// and renamed so a failed write never leaves a truncated snapshot.
func (s *SnapshotStore) Save(_ context.Context, name string, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir %s: %w", s.dir, err)
	}

	path := s.Location(name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}

	s.logger.Debug("snapshot written", "path", path, "bytes", len(data))
	return nil
}

// Load decodes the JSON file for name into v. A missing file yields an
// error wrapping outbound.ErrSnapshotNotFound.
func (s *SnapshotStore) Load(_ context.Context, name string, v any) error {
	path := s.Location(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", outbound.ErrSnapshotNotFound, path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
