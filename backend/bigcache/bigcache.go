package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/availcache/backend"
)

// defaultLifeWindow keeps entries around long enough for the store to report
// them stale rather than absent.
const defaultLifeWindow = 30 * 24 * time.Hour

// bigcache's own defaults preallocate ~300MB; entries here are small.
const (
	defaultMaxEntriesInWindow = 10_000
	defaultMaxEntrySize       = 1024
)

type Backend struct {
	c *bc.BigCache
}

var _ backend.Backend = (*Backend)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 30 days
	CleanWindow        time.Duration
	Shards             int
	MaxEntriesInWindow int // 0 => 10k
	MaxEntrySize       int // bytes; 0 => 1KiB
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Backend, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.MaxEntriesInWindow = defaultMaxEntriesInWindow
	conf.MaxEntrySize = defaultMaxEntrySize
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set ignores ttl; BigCache only supports the global LifeWindow.
func (b *Backend) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := b.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend) Del(_ context.Context, key string) error {
	if err := b.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *Backend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	it := b.c.Iterator()
	for it.SetNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := it.Value()
		if err != nil {
			// entry evicted while iterating
			continue
		}
		if k := info.Key(); strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *Backend) Close(_ context.Context) error {
	return b.c.Close()
}
