// Package cache provides pluggable byte caches for external service
// responses. Backends: file (local runs), Redis (shared runs), and null
// (caching disabled). Values are opaque bytes; callers that cache structs
// should use GetJSON/SetJSON.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the storage interface. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a TTL. A zero TTL means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// GetJSON retrieves a cached value and unmarshals it into dest.
// Returns false on a miss or if the stored bytes fail to unmarshal
// (a corrupt entry is treated as a miss).
func GetJSON(ctx context.Context, c Cache, key string, dest any) (bool, error) {
	data, hit, err := c.Get(ctx, key)
	if err != nil || !hit {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
