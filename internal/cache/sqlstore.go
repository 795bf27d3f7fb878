package cache

import (
	"context"
	"encoding/json"
	"time"

	"weatherpro/internal/store"
)

// SQLStore backs the weather cache with the weather_cache table.
type SQLStore struct {
	db *store.Store
}

// NewSQLStore returns a Store over the given database.
func NewSQLStore(db *store.Store) *SQLStore {
	return &SQLStore{db: db}
}

// Get implements Store.Get.
func (s *SQLStore) Get(ctx context.Context, location string) (Entry, bool, error) {
	payload, fetchedAt, ok, err := s.db.GetCache(ctx, location)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	return Entry{Location: location, Payload: payload, FetchedAt: fetchedAt}, true, nil
}

// Put implements Store.Put.
func (s *SQLStore) Put(ctx context.Context, location string, payload json.RawMessage, fetchedAt time.Time) error {
	return s.db.PutCache(ctx, location, payload, fetchedAt)
}
