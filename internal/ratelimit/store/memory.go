package store

import (
	"context"
	"sync"
	"time"
)

// entry is a stored value with optional expiration.
type entry struct {
	value      int64
	expiration time.Time
}

// MemoryStore implements Store with in-process storage. Used in tests and
// single-node deployments.
type MemoryStore struct {
	mu     sync.Mutex
	data   map[string]entry
	done   chan struct{}
	closed bool
}

// NewMemoryStore creates a new in-memory store. A background goroutine
// removes expired entries once a minute.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]entry),
		done: make(chan struct{}),
	}
	go s.cleanupLoop(time.Minute)
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return 0, &ErrKeyNotFound{Key: key}
	}
	if !e.expiration.IsZero() && time.Now().After(e.expiration) {
		delete(s.data, key)
		return 0, &ErrKeyNotFound{Key: key}
	}
	return e.value, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value int64, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value, expiration: exp}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close implements Store. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// cleanupLoop periodically removes expired entries.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

// removeExpired deletes all expired entries.
func (s *MemoryStore) removeExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.data {
		if !e.expiration.IsZero() && now.After(e.expiration) {
			delete(s.data, key)
		}
	}
}
