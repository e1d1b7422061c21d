// Package kv defines the durable key-value contract the session and audit
// subsystems persist through. Values are opaque JSON documents; decoding and
// corruption tolerance are the consumer's job, so a backend only moves bytes.
package kv

import "context"

// Store is the persistence interface shared by all backends.
//
// Get reports presence separately from failure: (nil, false, nil) means the
// key does not exist, a non-nil error means the backend could not answer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
