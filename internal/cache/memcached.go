package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "weather:"

// memcachedEntry is the stored wire form. FetchedAt travels with the payload
// so the core can compute freshness; the memcached expiration is only a
// retention bound, not the TTL.
type memcachedEntry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// MemcachedStore implements Store using memcached.
type MemcachedStore struct {
	client    *memcache.Client
	retention time.Duration
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
// retention bounds how long entries survive server-side.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int, retention time.Duration) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MemcachedStore{client: client, retention: retention}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedStore) key(location string) string {
	return keyPrefix + location
}

// Get implements Store.Get. Returns ok=false on a miss, an error on backend
// failure.
func (c *MemcachedStore) Get(ctx context.Context, location string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(location))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var stored memcachedEntry
	if err := json.Unmarshal(item.Value, &stored); err != nil {
		return Entry{}, false, err
	}
	return Entry{Location: location, Payload: stored.Payload, FetchedAt: stored.FetchedAt}, true, nil
}

// Put implements Store.Put.
func (c *MemcachedStore) Put(ctx context.Context, location string, payload json.RawMessage, fetchedAt time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(memcachedEntry{Payload: payload, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	expSec := int32(c.retention.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // memcached treats larger values as unix timestamps
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 24 * 60 * 60
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(location),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}
