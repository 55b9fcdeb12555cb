package statscache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/pickleit/internal/repository"
)

// =========================================================================
// MEMORY
// =========================================================================

// Memory is a process-local Store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// =========================================================================
// KV (SQLite-backed, used by the CLI)
// =========================================================================

// KV adapts a repository.KVRepository. Keys are namespaced with "stats:" so
// the cache can share a table with other local state.
type KV struct {
	repo repository.KVRepository
}

func NewKV(repo repository.KVRepository) *KV {
	return &KV{repo: repo}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	return k.repo.GetValue(ctx, "stats:"+key)
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	return k.repo.SetValue(ctx, "stats:"+key, value)
}

func (k *KV) Invalidate(ctx context.Context, key string) error {
	return k.repo.DeleteValue(ctx, "stats:"+key)
}

// =========================================================================
// REDIS (shared between server instances)
// =========================================================================

// Redis stores entries under a key prefix in a Redis database.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

// NewRedis connects to addr and verifies the connection with a PING.
func NewRedis(addr, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("statscache: missing redis address")
	}
	if prefix == "" {
		prefix = "pickleit:stats:"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("statscache: redis ping: %w", err)
	}

	return &Redis{rdb: rdb, prefix: prefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("statscache: redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("statscache: redis set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("statscache: redis del %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
