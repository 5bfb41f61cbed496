package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS implements Store on Google Cloud Storage with a shared client.
// It assumes Application Default Credentials are configured.
type GCS struct {
	client *storage.Client
}

// NewGCS creates a GCS-backed store.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: creating storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

// Close closes the underlying storage client.
func (s *GCS) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Put writes data to bucket/key, finalizing the object on Close.
func (s *GCS) Put(ctx context.Context, bucket, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("objectstore: writing %s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: finalizing %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get reads the full object at bucket/key.
func (s *GCS) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: opening %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("objectstore: reading %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes the object at bucket/key.
func (s *GCS) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("objectstore: deleting %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns the keys under the given prefix.
func (s *GCS) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("objectstore: listing %s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
