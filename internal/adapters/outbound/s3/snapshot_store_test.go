package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

type mockS3API struct {
	objects map[string][]byte

	putObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	getObjectFunc func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func newMockS3API() *mockS3API {
	return &mockS3API{objects: make(map[string][]byte)}
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, params, optFns...)
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3API) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, params, optFns...)
	}
	data, ok := m.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

type doc struct {
	Addresses []string `json:"addresses"`
}

func TestNewSnapshotStore(t *testing.T) {
	store, err := NewSnapshotStore(aws.Config{}, "bucket", "runs/1", nil)
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	if store.client == nil {
		t.Error("expected non-nil client")
	}
	if store.logger == nil {
		t.Error("expected default logger when nil is passed")
	}

	if _, err := NewSnapshotStore(aws.Config{}, "", "", nil); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestSnapshotStore_Location(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "s3://bucket/markets.json"},
		{"feed-coverage", "s3://bucket/feed-coverage/markets.json"},
		{"feed-coverage/", "s3://bucket/feed-coverage/markets.json"},
	}
	for _, tt := range tests {
		store, err := newSnapshotStore(newMockS3API(), "bucket", tt.prefix, nil)
		if err != nil {
			t.Fatalf("newSnapshotStore: %v", err)
		}
		if got := store.Location("markets.json"); got != tt.want {
			t.Errorf("prefix %q: Location = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestSnapshotStore_SaveLoad(t *testing.T) {
	api := newMockS3API()
	store, err := newSnapshotStore(api, "bucket", "out", nil)
	if err != nil {
		t.Fatalf("newSnapshotStore: %v", err)
	}
	ctx := context.Background()

	in := doc{Addresses: []string{"0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"}}
	if err := store.Save(ctx, "chainlink.json", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, ok := api.objects["bucket/out/chainlink.json"]
	if !ok {
		t.Fatalf("object not written, have %v", api.objects)
	}
	if !strings.Contains(string(raw), "\n    \"addresses\"") {
		t.Errorf("expected indented JSON, got %s", raw)
	}

	var out doc
	if err := store.Load(ctx, "chainlink.json", &out); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Addresses) != 1 || out.Addresses[0] != in.Addresses[0] {
		t.Errorf("Load = %+v", out)
	}
}

func TestSnapshotStore_LoadNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"NoSuchKey", &types.NoSuchKey{}},
		{"NotFound", &types.NotFound{}},
		{"generic API error", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newMockS3API()
			api.getObjectFunc = func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
				return nil, tt.err
			}
			store, err := newSnapshotStore(api, "bucket", "", nil)
			if err != nil {
				t.Fatalf("newSnapshotStore: %v", err)
			}

			var out doc
			if err := store.Load(context.Background(), "tvl.json", &out); !errors.Is(err, outbound.ErrSnapshotNotFound) {
				t.Errorf("error = %v, want ErrSnapshotNotFound", err)
			}
		})
	}
}

func TestSnapshotStore_Errors(t *testing.T) {
	api := newMockS3API()
	api.putObjectFunc = func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	api.getObjectFunc = func(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	store, err := newSnapshotStore(api, "bucket", "", nil)
	if err != nil {
		t.Fatalf("newSnapshotStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "a.json", doc{}); err == nil || !strings.Contains(err.Error(), "AccessDenied") {
		t.Errorf("Save error = %v", err)
	}

	var out doc
	err = store.Load(ctx, "a.json", &out)
	if err == nil || errors.Is(err, outbound.ErrSnapshotNotFound) {
		t.Errorf("Load error = %v, want non-not-found error", err)
	}
}

func TestSnapshotStore_LoadInvalidJSON(t *testing.T) {
	api := newMockS3API()
	api.objects["bucket/bad.json"] = []byte("{")
	store, err := newSnapshotStore(api, "bucket", "", nil)
	if err != nil {
		t.Fatalf("newSnapshotStore: %v", err)
	}

	var out doc
	if err := store.Load(context.Background(), "bad.json", &out); err == nil || !strings.Contains(err.Error(), "decoding") {
		t.Errorf("error = %v, want decode error", err)
	}
}
