package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/sotruth/dualtrack/internal/ports"
)

// Memory is an in-process CacheStore with per-item expiry.
type Memory struct {
	items *ttlcache.Cache[string, []byte]
}

// NewMemory creates a cache whose Set calls with a zero expiration fall
// back to defaultTTL. A zero defaultTTL keeps such items until deleted.
func NewMemory(defaultTTL time.Duration) *Memory {
	items := ttlcache.New(
		ttlcache.WithTTL[string, []byte](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()
	return &Memory{items: items}
}

// Get returns the value for key. Expired items report a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set stores value under key. A non-positive expiration uses the default TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	ttl := ttlcache.DefaultTTL
	if expiration > 0 {
		ttl = expiration
	}
	m.items.Set(key, value, ttl)
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Clear removes every item.
func (m *Memory) Clear(_ context.Context) error {
	m.items.DeleteAll()
	return nil
}

// Len reports the number of live items.
func (m *Memory) Len() int { return m.items.Len() }

// Close stops the expiry goroutine.
func (m *Memory) Close() error {
	m.items.Stop()
	return nil
}

var _ ports.CacheStore = (*Memory)(nil)
