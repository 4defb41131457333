package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/availcache/backend"
)

// Backend stores entries in a cost-bounded Ristretto cache. Ristretto cannot
// enumerate its keys, so the backend keeps a side index of keys it wrote;
// evicted keys are pruned from the index when listed.
type Backend struct {
	c *rc.Cache

	mu   sync.Mutex
	keys map[string]struct{}
}

var _ backend.Backend = (*Backend)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Backend, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{c: c, keys: make(map[string]struct{})}, nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := b.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw, _ := v.([]byte)
	if raw == nil {
		// self-heal: drop unexpected entry shape
		b.c.Del(key)
		return nil, false, nil
	}
	return raw, true, nil
}

// Set waits for Ristretto's write buffer so a Get right after Set observes the
// value. ok=false means the admission policy dropped the write.
func (b *Backend) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	if ttl < 0 {
		ttl = 0
	}
	if !b.c.SetWithTTL(key, value, cost, ttl) {
		return false, nil
	}
	b.c.Wait()
	b.mu.Lock()
	b.keys[key] = struct{}{}
	b.mu.Unlock()
	return true, nil
}

func (b *Backend) Del(_ context.Context, key string) error {
	b.c.Del(key)
	b.mu.Lock()
	delete(b.keys, key)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := b.c.Get(k); !ok {
			delete(b.keys, k)
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (b *Backend) Close(_ context.Context) error {
	b.c.Wait()
	b.c.Close()
	return nil
}

// Metrics exposes Ristretto's counters when Config.Metrics is set.
func (b *Backend) Metrics() *rc.Metrics { return b.c.Metrics }
