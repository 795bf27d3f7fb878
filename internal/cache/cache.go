package cache

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultTTL is the freshness window applied when none is configured.
const DefaultTTL = 10 * time.Minute

// Entry is one cached weather document for a location key.
type Entry struct {
	Location  string
	Payload   json.RawMessage
	FetchedAt time.Time
}

// Store is the keyed storage behind the weather cache. Get returns ok=false
// on a miss; Put upserts with last-write-wins semantics. Freshness is decided
// by Cache, never by the backend.
type Store interface {
	Get(ctx context.Context, location string) (Entry, bool, error)
	Put(ctx context.Context, location string, payload json.RawMessage, fetchedAt time.Time) error
}

// Cache answers freshness-bounded lookups over a Store with a fixed TTL.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// New returns a Cache over store. A non-positive ttl falls back to DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// Get is a pure lookup with no side effects. Stale entries are returned
// as-is; callers combine Get with Fresh.
func (c *Cache) Get(ctx context.Context, location string) (Entry, bool, error) {
	return c.store.Get(ctx, location)
}

// Fresh reports whether the entry is inside the TTL window.
func (c *Cache) Fresh(e Entry) bool {
	return c.now().Sub(e.FetchedAt) < c.ttl
}

// Put upserts the entry for location, stamping FetchedAt to now. Any prior
// entry and timestamp are overwritten; concurrent puts race and the last
// write wins.
func (c *Cache) Put(ctx context.Context, location string, payload json.RawMessage) error {
	return c.store.Put(ctx, location, payload, c.now())
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}
