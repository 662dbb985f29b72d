package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with an in-process slice of records. It keeps
// the same contract as the real store: append-only, exact attribute match,
// retention filtering, creation order. Used by tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records []memoryRecord
	seq     int64

	// NextCreateErr, when set, fails the next Create with it and resets.
	NextCreateErr error

	now func() time.Time
}

type memoryRecord struct {
	Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Create(
	_ context.Context,
	attributes map[string]string,
	payload []byte,
	ttlSeconds int64,
) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.NextCreateErr; err != nil {
		s.NextCreateErr = nil
		return Receipt{}, err
	}
	if ttlSeconds < 1 {
		return Receipt{}, fmt.Errorf("ttl must be at least 1 second, got %d", ttlSeconds)
	}

	attrs := make(map[string]string, len(attributes))
	for key, value := range attributes {
		attrs[key] = value
	}
	body := make([]byte, len(payload))
	copy(body, payload)

	// Sequence-offset timestamps keep creation order strict even when two
	// writes land within the clock resolution.
	s.seq++
	createdAt := s.now().UTC().Add(time.Duration(s.seq) * time.Nanosecond)

	record := memoryRecord{
		Record: Record{
			Key:        uuid.NewString(),
			TxRef:      uuid.NewString(),
			Attributes: attrs,
			Payload:    body,
			CreatedAt:  createdAt,
		},
		expiresAt: createdAt.Add(time.Duration(ttlSeconds) * time.Second),
	}
	s.records = append(s.records, record)

	return Receipt{Key: record.Key, TxRef: record.TxRef}, nil
}

func (s *MemoryStore) Query(
	_ context.Context,
	filters map[string]string,
) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	matches := make([]Record, 0)
	for _, record := range s.records {
		if !record.expiresAt.After(now) {
			continue
		}
		if matchesFilters(record.Attributes, filters) {
			matches = append(matches, record.Record)
		}
	}
	return matches, nil
}

// Len reports how many records have been appended, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func matchesFilters(attributes, filters map[string]string) bool {
	for key, want := range filters {
		if got, ok := attributes[key]; !ok || got != want {
			return false
		}
	}
	return true
}
