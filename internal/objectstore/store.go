// Package objectstore provides the intermediate object storage the pipeline
// stages raw and normalized documents in, decoupling fetch, parse and load
// retries from each other.
package objectstore

import "context"

// Store is the object storage surface the pipeline needs.
type Store interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Delete(ctx context.Context, bucket, key string) error
}
