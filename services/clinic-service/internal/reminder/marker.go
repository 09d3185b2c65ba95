package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker is a TTL key-value store used to remember which reminders went out.
type Marker interface {
	// Claim sets key if absent and reports whether this caller now owns it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisMarker shares claims between replicas with SET NX PX.
type RedisMarker struct {
	client *redis.Client
	prefix string
}

func NewRedisMarker(client *redis.Client, prefix string) *RedisMarker {
	return &RedisMarker{client: client, prefix: prefix}
}

func (m *RedisMarker) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.client.SetNX(ctx, m.prefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (m *RedisMarker) Release(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.prefix+key).Err()
}

// MemoryMarker keeps claims in process. Expired entries are swept on each claim.
type MemoryMarker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{expires: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryMarker) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
	if _, ok := m.expires[key]; ok {
		return false, nil
	}
	m.expires[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryMarker) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, key)
	return nil
}
