// SPDX-License-Identifier: MIT

// Package cache provides the namespaced, TTL-bounded cache in front of the
// storage driver. Coherency is best-effort: writers invalidate known-dirty
// keys, readers tolerate stale values within the TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache namespaces. Each namespace carries its own TTL, configured per
// deployment.
const (
	NamespaceSession  = "session"
	NamespaceSource   = "source"
	NamespaceEventTag = "event_tag"
	NamespaceFlow     = "flow"
	NamespaceSegment  = "segment"
	NamespaceRule     = "rule"
)

// Cache is a keyed byte store with per-entry TTL.
type Cache interface {
	// Get returns the cached value, or ok=false on a miss.
	Get(ctx context.Context, ns, key string) (value []byte, ok bool)
	// Set stores the value under the namespace and key for ttl.
	Set(ctx context.Context, ns, key string, value []byte, ttl time.Duration)
	// Delete invalidates one key.
	Delete(ctx context.Context, ns, key string)
}

// Through reads through the cache: a miss cascades to the loader and the
// loaded value is cached for ttl. Loader errors propagate uncached; zero
// results are returned but never cached, so a record created moments later
// becomes visible on the next read.
func Through[T any](ctx context.Context, c Cache, ns, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T

	if raw, ok := c.Get(ctx, ns, key); ok {
		var value T
		if err := json.Unmarshal(raw, &value); err == nil {
			return value, nil
		}
		// Unreadable entry, fall through to the loader.
		c.Delete(ctx, ns, key)
	}

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return zero, err
	}
	if string(raw) != "null" {
		c.Set(ctx, ns, key, raw, ttl)
	}
	return value, nil
}

// Nop is a cache that never hits; used by tests that need loader behavior
// without Redis.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]byte, bool)          { return nil, false }
func (Nop) Set(context.Context, string, string, []byte, time.Duration) {}
func (Nop) Delete(context.Context, string, string)                     {}
