package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e kvEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryKV is the in-process store backend for development and tests.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string]kvEntry
	sets  map[string]map[string]struct{}
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		items: make(map[string]kvEntry),
		sets:  make(map[string]map[string]struct{}),
	}
}

func (s *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if entry.expired(now) {
		s.mu.Lock()
		if e, exists := s.items[key]; exists && e.expired(now) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

func (s *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = kvEntry{value: valueCopy, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) SetAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) SetRemove(_ context.Context, key, member string) error {
	s.mu.Lock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) SetMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[key]
	if !ok {
		return nil, nil
	}

	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	// Deterministic order for callers and tests.
	sort.Strings(members)
	return members, nil
}
