// Package s3 stores snapshots as JSON objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

// s3API defines the subset of S3 operations needed by the SnapshotStore.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time check that SnapshotStore implements outbound.SnapshotStore
var _ outbound.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore implements outbound.SnapshotStore on bucket/prefix.
type SnapshotStore struct {
	client s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewSnapshotStore creates a store writing under prefix in bucket.
func NewSnapshotStore(cfg aws.Config, bucket, prefix string, logger *slog.Logger, optFns ...func(*s3.Options)) (*SnapshotStore, error) {
	return newSnapshotStore(s3.NewFromConfig(cfg, optFns...), bucket, prefix, logger)
}

func newSnapshotStore(client s3API, bucket, prefix string, logger *slog.Logger) (*SnapshotStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "s3-snapshot-store"),
	}, nil
}

func (s *SnapshotStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Location returns the s3:// URI for name.
func (s *SnapshotStore) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

// Save uploads v as indented JSON, replacing any existing object.
func (s *SnapshotStore) Save(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	key := s.key(name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to S3: %w", s.Location(name), err)
	}

	s.logger.Debug("wrote snapshot to S3", "bucket", s.bucket, "key", key, "bytes", len(data))
	return nil
}

// Load downloads the object for name and decodes it into v. A missing object
// yields an error wrapping outbound.ErrSnapshotNotFound.
func (s *SnapshotStore) Load(ctx context.Context, name string, v any) error {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", outbound.ErrSnapshotNotFound, s.Location(name))
		}
		return fmt.Errorf("failed to get object %s: %w", s.Location(name), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.Location(name), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", s.Location(name), err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound")
}
