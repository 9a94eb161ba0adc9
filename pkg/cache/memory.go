package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Memory is an in-process cache. Values are stored JSON-encoded so callers
// never share mutable state with the cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttls    TTLs
	clock   clockwork.Clock
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache. A nil clock uses the real clock.
func NewMemory(ttls TTLs, clock clockwork.Clock) *Memory {
	if ttls == nil {
		ttls = DefaultTTLs()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttls:    ttls,
		clock:   clock,
	}
}

func (m *Memory) Get(_ context.Context, cat Category, key string, dst any) (bool, error) {
	if _, err := m.ttls.lookup(cat); err != nil {
		return false, err
	}

	m.mu.RLock()
	entry, ok := m.entries[entryKey(cat, key)]
	m.mu.RUnlock()
	if !ok || !m.clock.Now().Before(entry.expiresAt) {
		return false, nil
	}

	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, fmt.Errorf("decode %s cache entry %s: %w", cat, key, err)
	}
	return true, nil
}

func (m *Memory) Put(_ context.Context, cat Category, key string, value any) error {
	ttl, err := m.ttls.lookup(cat)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s cache entry %s: %w", cat, key, err)
	}

	m.mu.Lock()
	m.entries[entryKey(cat, key)] = memoryEntry{data: data, expiresAt: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, cat Category, key string) error {
	m.mu.Lock()
	delete(m.entries, entryKey(cat, key))
	m.mu.Unlock()
	return nil
}

// EvictExpired drops expired entries and returns how many were removed.
func (m *Memory) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	evicted := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartEvictionTimer evicts expired entries every interval until the
// returned stop function is called.
func (m *Memory) StartEvictionTimer(interval time.Duration) func() {
	ticker := m.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				m.EvictExpired()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Close clears the cache.
func (m *Memory) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}
