package storage

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe store used when a database is not configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make([]Record, 0)}
}

// SaveRecord prepends the record, replacing any existing record with the same
// key.
func (s *InMemoryStore) SaveRecord(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}

	for idx, existing := range s.records {
		if existing.Key == rec.Key {
			s.records[idx] = rec
			return rec, nil
		}
	}

	s.records = append([]Record{rec}, s.records...)
	if len(s.records) > 100 {
		s.records = s.records[:100]
	}
	return rec, nil
}

// ListRecords returns a snapshot of stored records, newest first. A non-empty
// query filters on title, description and tags.
func (s *InMemoryStore) ListRecords(_ context.Context, query string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	snapshot := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if query == "" || matchesQuery(rec, query) {
			snapshot = append(snapshot, rec)
		}
	}
	return snapshot, nil
}

// GetRecord returns a record by key.
func (s *InMemoryStore) GetRecord(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Key == key {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

// SetFavorite toggles the favorite flag on a record.
func (s *InMemoryStore) SetFavorite(_ context.Context, key string, favorite bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, rec := range s.records {
		if rec.Key == key {
			s.records[idx].Favorite = favorite
			return s.records[idx], nil
		}
	}
	return Record{}, ErrNotFound
}

// Close satisfies the Store interface.
func (s *InMemoryStore) Close() {}

func matchesQuery(rec Record, query string) bool {
	if strings.Contains(strings.ToLower(rec.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Description), query) {
		return true
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}
