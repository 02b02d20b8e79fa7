//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSConfig configures a GCSArchive.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// GCSArchive keeps blobs in a Google Cloud Storage bucket.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSArchive uses application default credentials.
func NewGCSArchive(ctx context.Context, cfg GCSConfig) (*GCSArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("artifacts: GCS bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSArchive{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *GCSArchive) object(addr string) (*storage.ObjectHandle, error) {
	digest, err := digestOf(addr)
	if err != nil {
		return nil, err
	}
	return a.client.Bucket(a.bucket).Object(objectKey(a.prefix, digest)), nil
}

func (a *GCSArchive) Put(ctx context.Context, data []byte) (string, error) {
	addr := Address(data)
	obj, _ := a.object(addr)
	if _, err := obj.Attrs(ctx); err == nil {
		return addr, nil
	}
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return addr, nil
}

func (a *GCSArchive) Get(ctx context.Context, addr string) ([]byte, error) {
	obj, err := a.object(addr)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", addr, err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

func (a *GCSArchive) Exists(ctx context.Context, addr string) (bool, error) {
	obj, err := a.object(addr)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (a *GCSArchive) Delete(ctx context.Context, addr string) error {
	obj, err := a.object(addr)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", addr, err)
	}
	return nil
}

func (a *GCSArchive) Close() error {
	return a.client.Close()
}
