// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name.
	Prefix string
}

type objectWriter interface {
	io.Writer
	Close() error
}

type openFunc func(ctx context.Context, bucket, object, contentType string) objectWriter

type probeFunc func(ctx context.Context, bucket string) error

// BlobStore writes evidence snapshots to a configured GCS bucket.
type BlobStore struct {
	bucket string
	prefix string
	open   openFunc
	probe  probeFunc
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	open := func(ctx context.Context, bucket, object, contentType string) objectWriter {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		if contentType != "" {
			w.ContentType = contentType
		}
		return w
	}
	probe := func(ctx context.Context, bucket string) error {
		_, err := client.Bucket(bucket).Attrs(ctx)
		return err
	}
	return newBlobStore(cfg, open, probe)
}

func newBlobStore(cfg Config, open openFunc, probe probeFunc) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket name is required")
	}
	return &BlobStore{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		open:   open,
		probe:  probe,
	}, nil
}

// PutObject uploads data to the configured bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return "", errors.New("path is required")
	}
	object := name
	if s.prefix != "" {
		object = path.Join(s.prefix, name)
	}
	writer := s.open(ctx, s.bucket, object, contentType)
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// Ping verifies the bucket is reachable for readiness probes.
func (s *BlobStore) Ping(ctx context.Context) error {
	if err := s.probe(ctx, s.bucket); err != nil {
		return fmt.Errorf("bucket %s attrs: %w", s.bucket, err)
	}
	return nil
}
