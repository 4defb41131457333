// Package config loads the YAML description of an availcache deployment and
// turns it into availcache.Options.
//
// Loading order, lowest to highest priority:
//  1. Defaults (Default)
//  2. The YAML file
//  3. AVAILCACHE_* environment variables
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Namespace       string        `yaml:"namespace" validate:"required,excludes=:"`
	TTLDays         int           `yaml:"ttlDays" validate:"gte=1,lte=365"`
	Retention       time.Duration `yaml:"retention" validate:"gte=0"`
	Codec           string        `yaml:"codec" validate:"oneof=json msgpack cbor"`
	MaxDecodeBytes  int           `yaml:"maxDecodeBytes" validate:"gte=0"`
	Debounce        time.Duration `yaml:"debounce" validate:"gte=0"`
	MaxWait         time.Duration `yaml:"maxWait" validate:"gte=0"`
	ProviderTimeout time.Duration `yaml:"providerTimeout"`
	BatchTimeout    time.Duration `yaml:"batchTimeout" validate:"gte=0"`
	MaxBatchSize    int           `yaml:"maxBatchSize" validate:"gte=0"`

	Backend   Backend                      `yaml:"backend"`
	Log       Log                          `yaml:"log"`
	Overrides map[string]map[string]string `yaml:"overrides" validate:"dive,keys,required,endkeys,dive,keys,oneof=nintendo playstation xbox,endkeys,oneof=available unavailable unknown"`
	Providers []Provider                   `yaml:"providers" validate:"unique=Name,dive"`
}

type Backend struct {
	Kind      string    `yaml:"kind" validate:"oneof=redis bigcache ristretto"`
	Redis     Redis     `yaml:"redis"`
	BigCache  BigCache  `yaml:"bigcache"`
	Ristretto Ristretto `yaml:"ristretto"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type BigCache struct {
	LifeWindow         time.Duration `yaml:"lifeWindow" validate:"gte=0"`
	Shards             int           `yaml:"shards" validate:"omitempty,gt=0"`
	HardMaxCacheSizeMB int           `yaml:"hardMaxCacheSizeMB" validate:"gte=0"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"numCounters" validate:"gt=0"`
	MaxCost     int64 `yaml:"maxCost" validate:"gt=0"`
	BufferItems int64 `yaml:"bufferItems" validate:"gt=0"`
}

type Log struct {
	Library string `yaml:"library" validate:"oneof=zap logrus slog"`
	Level   string `yaml:"level" validate:"oneof=debug info warn error"`
	Format  string `yaml:"format" validate:"oneof=console json"`
	// Events logs engine hooks (self-heals, provider failures) through slog.
	Events bool `yaml:"events"`
}

// Provider declares a staging fixture source. Real data sources are wired in
// code; the CLI only knows fixture-backed ones.
type Provider struct {
	Name         string            `yaml:"name" validate:"required"`
	FixtureFile  string            `yaml:"fixtureFile"` // protobuf snapshot from `availcache fixtures export`
	Records      map[string]Record `yaml:"records" validate:"dive"`
	URLTemplates map[string]string `yaml:"urlTemplates" validate:"dive,keys,oneof=nintendo playstation xbox,endkeys,required"`
	Latency      time.Duration     `yaml:"latency" validate:"gte=0"`
	Breaker      *Breaker          `yaml:"breaker"`
}

type Record struct {
	Name      string            `yaml:"name"`
	Ref       string            `yaml:"ref"`
	Platforms map[string]string `yaml:"platforms" validate:"dive,keys,oneof=nintendo playstation xbox,endkeys,oneof=available unavailable unknown"`
}

type Breaker struct {
	MaxRequests      uint32        `yaml:"maxRequests"`
	Interval         time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout          time.Duration `yaml:"timeout" validate:"gte=0"`
	FailureThreshold float64       `yaml:"failureThreshold" validate:"gte=0,lte=1"`
	MinRequests      uint32        `yaml:"minRequests"`
}

// Default is the configuration used when no file is given: an in-process
// BigCache backend, no overrides, no providers.
func Default() *Config {
	return &Config{
		Namespace:       "availcache",
		TTLDays:         7,
		Codec:           "json",
		Debounce:        100 * time.Millisecond,
		MaxWait:         time.Second,
		ProviderTimeout: 5 * time.Second,
		BatchTimeout:    30 * time.Second,
		Backend: Backend{
			Kind:      "bigcache",
			Redis:     Redis{Addr: "localhost:6379"},
			Ristretto: Ristretto{NumCounters: 100_000, MaxCost: 64 << 20, BufferItems: 64},
		},
		Log: Log{Library: "zap", Level: "info", Format: "console"},
	}
}

// Load reads path over Default, applies the environment and validates.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := decode(b, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load for an in-memory document, without environment overrides.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := decode(b, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Backend.Kind == "redis" && c.Backend.Redis.Addr == "" {
		return errors.New("config: backend.redis.addr is required for the redis backend")
	}
	for _, p := range c.Providers {
		if p.FixtureFile != "" && len(p.Records) > 0 {
			return fmt.Errorf("config: provider %q: fixtureFile and records are mutually exclusive", p.Name)
		}
	}
	return nil
}

type lookupEnv func(string) (string, bool)

func (c *Config) applyEnv(env lookupEnv) error {
	if v, ok := env("AVAILCACHE_NAMESPACE"); ok {
		c.Namespace = v
	}
	if v, ok := env("AVAILCACHE_BACKEND"); ok {
		c.Backend.Kind = v
	}
	if v, ok := env("AVAILCACHE_REDIS_ADDR"); ok {
		c.Backend.Redis.Addr = v
	}
	if v, ok := env("AVAILCACHE_REDIS_PASSWORD"); ok {
		c.Backend.Redis.Password = v
	}
	if v, ok := env("AVAILCACHE_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AVAILCACHE_REDIS_DB: %w", err)
		}
		c.Backend.Redis.DB = db
	}
	if v, ok := env("AVAILCACHE_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}
