// Package storage writes archive objects to MinIO or Google Cloud Storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rainwatch/apiserver/config"
)

const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Open constructs the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.ArchiveConfig) (ObjectStorage, error) {
	switch cfg.Backend {
	case "", BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		return client, nil
	case BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}

// PutJSON encodes value and uploads it under key, replacing any existing object.
func PutJSON(ctx context.Context, backend ObjectStorage, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

// GetJSON downloads key and decodes it into dst.
func GetJSON(ctx context.Context, backend ObjectStorage, key string, dst any) error {
	r, err := backend.Get(ctx, key)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
