package cache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KV is the device-local key-value store behind the archive cache. It has
// no TTL of its own; freshness is enforced by ArchiveCache.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	RemoveAllWithPrefix(ctx context.Context, prefix string) error
}

type RedisKV struct {
	cli *redis.Client
}

func NewRedisKV(cli *redis.Client) *RedisKV {
	return &RedisKV{cli: cli}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := r.cli.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.cli.Set(ctx, key, value, 0).Err()
}

func (r *RedisKV) Remove(ctx context.Context, key string) error {
	return r.cli.Del(ctx, key).Err()
}

func (r *RedisKV) RemoveAllWithPrefix(ctx context.Context, prefix string) error {
	iter := r.cli.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.cli.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// MemoryKV is a map-backed KV for tests and single-process deployments.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) RemoveAllWithPrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.data, k)
		}
	}
	return nil
}
