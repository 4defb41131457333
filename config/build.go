package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/backend"
	"github.com/unkn0wn-root/availcache/backend/bigcache"
	"github.com/unkn0wn-root/availcache/backend/redis"
	"github.com/unkn0wn-root/availcache/backend/ristretto"
	"github.com/unkn0wn-root/availcache/codec"
	"github.com/unkn0wn-root/availcache/provider/breaker"
	"github.com/unkn0wn-root/availcache/provider/static"
)

// Options assembles availcache.Options from the file. The caller owns the
// returned backend through the Engine (Engine.Close releases it).
func (c *Config) Options(log availcache.Logger, hooks availcache.Hooks) (availcache.Options, error) {
	be, err := c.NewBackend()
	if err != nil {
		return availcache.Options{}, err
	}
	cd, err := c.NewCodec()
	if err != nil {
		return availcache.Options{}, errors.Join(err, closeBackend(be))
	}
	ov, err := c.OverrideTable()
	if err != nil {
		return availcache.Options{}, errors.Join(err, closeBackend(be))
	}
	ps, err := c.NewProviders(log)
	if err != nil {
		return availcache.Options{}, errors.Join(err, closeBackend(be))
	}
	return availcache.Options{
		Backend:         be,
		Namespace:       c.Namespace,
		Codec:           cd,
		Retention:       c.Retention,
		Overrides:       ov,
		Providers:       ps,
		TTLDays:         c.TTLDays,
		ProviderTimeout: c.ProviderTimeout,
		MaxBatchSize:    c.MaxBatchSize,
		Debounce:        c.Debounce,
		MaxWait:         c.MaxWait,
		BatchTimeout:    c.BatchTimeout,
		Logger:          log,
		Hooks:           hooks,
	}, nil
}

func (c *Config) NewBackend() (backend.Backend, error) {
	switch b := c.Backend; b.Kind {
	case "redis":
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{b.Redis.Addr},
			Password: b.Redis.Password,
			DB:       b.Redis.DB,
		})
		return redis.New(redis.Config{Client: rdb, CloseClient: true})
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: b.Ristretto.NumCounters,
			MaxCost:     b.Ristretto.MaxCost,
			BufferItems: b.Ristretto.BufferItems,
		})
	case "", "bigcache":
		return bigcache.New(bigcache.Config{
			LifeWindow:         b.BigCache.LifeWindow,
			Shards:             b.BigCache.Shards,
			HardMaxCacheSizeMB: b.BigCache.HardMaxCacheSizeMB,
		})
	default:
		return nil, fmt.Errorf("config: unknown backend %q", b.Kind)
	}
}

func (c *Config) NewCodec() (codec.Codec[availcache.Entry], error) {
	cd, err := codec.ByName[availcache.Entry](c.Codec)
	if err != nil {
		return nil, err
	}
	if c.MaxDecodeBytes > 0 {
		cd = codec.Limit[availcache.Entry]{Inner: cd, MaxDecode: c.MaxDecodeBytes}
	}
	return cd, nil
}

func (c *Config) OverrideTable() (*availcache.OverrideTable, error) {
	m := make(map[string]availcache.Override, len(c.Overrides))
	for id, platforms := range c.Overrides {
		ps, err := parsePlatforms(platforms)
		if err != nil {
			return nil, fmt.Errorf("config: override %q: %w", id, err)
		}
		m[id] = availcache.Override{Platforms: ps}
	}
	return availcache.NewOverrideTable(m), nil
}

// NewProviders builds the declared static providers in file order, wrapping
// those with a breaker section in a circuit breaker.
func (c *Config) NewProviders(log availcache.Logger) ([]availcache.Provider, error) {
	out := make([]availcache.Provider, 0, len(c.Providers))
	for _, pc := range c.Providers {
		p, err := pc.build()
		if err != nil {
			return nil, fmt.Errorf("config: provider %q: %w", pc.Name, err)
		}
		if pc.Breaker == nil {
			out = append(out, p)
			continue
		}
		bc := breaker.DefaultConfig()
		if pc.Breaker.MaxRequests > 0 {
			bc.MaxRequests = pc.Breaker.MaxRequests
		}
		if pc.Breaker.Interval > 0 {
			bc.Interval = pc.Breaker.Interval
		}
		if pc.Breaker.Timeout > 0 {
			bc.Timeout = pc.Breaker.Timeout
		}
		if pc.Breaker.FailureThreshold > 0 {
			bc.FailureThreshold = pc.Breaker.FailureThreshold
		}
		if pc.Breaker.MinRequests > 0 {
			bc.MinRequests = pc.Breaker.MinRequests
		}
		bc.Logger = log
		out = append(out, breaker.Wrap(p, bc))
	}
	return out, nil
}

func (pc Provider) build() (*static.Provider, error) {
	cfg := static.Config{
		Name:         pc.Name,
		Latency:      pc.Latency,
		URLTemplates: make(map[availcache.Platform]string, len(pc.URLTemplates)),
	}
	for name, t := range pc.URLTemplates {
		pl, err := availcache.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		cfg.URLTemplates[pl] = t
	}

	switch {
	case pc.FixtureFile != "":
		b, err := os.ReadFile(pc.FixtureFile)
		if err != nil {
			return nil, err
		}
		if cfg.Records, err = static.UnmarshalFixtures(b); err != nil {
			return nil, err
		}
	default:
		cfg.Records = make(map[string]static.Record, len(pc.Records))
		for id, r := range pc.Records {
			ps, err := parsePlatforms(r.Platforms)
			if err != nil {
				return nil, fmt.Errorf("record %q: %w", id, err)
			}
			cfg.Records[id] = static.Record{Name: r.Name, Ref: r.Ref, Platforms: ps}
		}
	}
	return static.New(cfg)
}

func parsePlatforms(m map[string]string) (map[availcache.Platform]availcache.Status, error) {
	out := make(map[availcache.Platform]availcache.Status, len(m))
	for name, s := range m {
		pl, err := availcache.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		st, err := availcache.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		out[pl] = st
	}
	return out, nil
}

func closeBackend(b backend.Backend) error {
	return b.Close(context.Background())
}

// StaticProvider builds the declared provider called name without a breaker.
func (c *Config) StaticProvider(name string) (*static.Provider, error) {
	for _, pc := range c.Providers {
		if pc.Name == name {
			return pc.build()
		}
	}
	return nil, fmt.Errorf("config: no provider named %q", name)
}
