package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// entry is a single cached response
type entry struct {
	key       string
	value     string
	expiresAt time.Time
	element   *list.Element // LRU position
}

func (e *entry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore is an in-process LRU store with per-entry expiry.
// Thread-safe implementation using sync.Mutex
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List
	maxSize int
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewMemoryStore creates a store holding at most maxSize entries; 0 means unbounded
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the live value for key
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.isExpired(s.now()) {
		s.misses++
		if exists {
			s.removeEntry(key)
		}
		return "", false, nil
	}

	s.lruList.MoveToFront(e.element)
	s.hits++
	return e.value, true, nil
}

// Set stores value under key until ttl elapses
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)

	if e, exists := s.entries[key]; exists {
		e.value = value
		e.expiresAt = expiresAt
		s.lruList.MoveToFront(e.element)
		return nil
	}

	if s.maxSize > 0 && s.lruList.Len() >= s.maxSize {
		s.evictLRU()
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	e.element = s.lruList.PushFront(key)
	s.entries[key] = e
	return nil
}

// Clear removes all entries
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.lruList.Init()
}

// Stats represents store statistics
type Stats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns store statistics
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rate float64
	if total := s.hits + s.misses; total > 0 {
		rate = float64(s.hits) / float64(total)
	}
	return Stats{
		Size:    s.lruList.Len(),
		MaxSize: s.maxSize,
		Hits:    s.hits,
		Misses:  s.misses,
		HitRate: rate,
	}
}

// removeEntry must be called with the lock held
func (s *MemoryStore) removeEntry(key string) {
	if e, exists := s.entries[key]; exists {
		s.lruList.Remove(e.element)
		delete(s.entries, key)
	}
}

// evictLRU must be called with the lock held
func (s *MemoryStore) evictLRU() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	s.removeEntry(back.Value.(string))
}

// CleanupExpired removes all expired entries and returns how many went.
// Expiry is also enforced on read, so this only reclaims memory.
func (s *MemoryStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired := make([]string, 0)
	for key, e := range s.entries {
		if e.isExpired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker periodically reclaims expired entries until stopCh closes
func (s *MemoryStore) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
