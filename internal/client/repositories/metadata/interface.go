// Package metadata is the client's durable key/value store. It backs the
// session cache, the rate-limit cooldown entries, the client instance ID and
// any other small auth-related values.
package metadata

import (
	"context"
)

// Repository stores opaque values by key. Get returns (nil, nil) for a
// missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// DeleteKeys removes all listed keys; missing keys are ignored.
	DeleteKeys(ctx context.Context, keys []string) error
	Keys(ctx context.Context) ([]string, error)
}
