package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/provider/breaker"
	"github.com/unkn0wn-root/availcache/provider/static"
)

const sample = `
namespace: staging
ttlDays: 3
codec: msgpack
maxDecodeBytes: 65536
debounce: 50ms
maxWait: 500ms
backend:
  kind: ristretto
overrides:
  "367520":
    nintendo: available
    playstation: available
    xbox: available
providers:
  - name: wikidata
    urlTemplates:
      nintendo: "https://www.wikidata.org/wiki/{ref}"
    records:
      "99999":
        name: Hollow Knight
        ref: Q22907123
        platforms:
          nintendo: available
          playstation: unavailable
    breaker:
      failureThreshold: 0.5
  - name: igdb
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Namespace != "staging" || cfg.TTLDays != 3 || cfg.Codec != "msgpack" {
		t.Fatalf("unexpected scalars: %+v", cfg)
	}
	if cfg.Debounce != 50*time.Millisecond || cfg.MaxWait != 500*time.Millisecond {
		t.Fatalf("durations: %v %v", cfg.Debounce, cfg.MaxWait)
	}
	// untouched fields keep their defaults
	if cfg.BatchTimeout != 30*time.Second || cfg.Log.Level != "info" {
		t.Fatalf("defaults lost: %v %q", cfg.BatchTimeout, cfg.Log.Level)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].Breaker == nil {
		t.Fatalf("providers: %+v", cfg.Providers)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "nope: 1\n",
		"bad codec":          "codec: xml\n",
		"bad backend":        "backend: {kind: memcached}\n",
		"bad platform":       "overrides: {\"1\": {gamecube: available}}\n",
		"bad status":         "overrides: {\"1\": {xbox: maybe}}\n",
		"ns with colon":      "namespace: \"a:b\"\n",
		"duplicate provider": "providers: [{name: a}, {name: a}]\n",
		"redis without addr": "backend: {kind: redis, redis: {addr: \"\"}}\n",
		"both fixture forms": "providers: [{name: a, fixtureFile: x.pb, records: {\"1\": {name: n}}}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"AVAILCACHE_BACKEND":    "redis",
		"AVAILCACHE_REDIS_ADDR": "cache:6380",
		"AVAILCACHE_REDIS_DB":   "2",
	}
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.Kind != "redis" || cfg.Backend.Redis.Addr != "cache:6380" || cfg.Backend.Redis.DB != 2 {
		t.Fatalf("env not applied: %+v", cfg.Backend)
	}

	env["AVAILCACHE_REDIS_DB"] = "two"
	if err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err == nil {
		t.Fatal("expected error for non-numeric db")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "availcache.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AVAILCACHE_NAMESPACE", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Namespace != "from-env" {
		t.Fatalf("namespace = %q", cfg.Namespace)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOptions(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := cfg.Options(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer opts.Backend.Close(context.Background())

	if opts.Overrides.Len() != 1 {
		t.Fatalf("overrides = %d", opts.Overrides.Len())
	}
	o, _ := opts.Overrides.Lookup("367520")
	if o.Platforms[availcache.Xbox] != availcache.StatusAvailable {
		t.Fatalf("override xbox = %v", o.Platforms[availcache.Xbox])
	}
	if len(opts.Providers) != 2 {
		t.Fatalf("providers = %d", len(opts.Providers))
	}
	if _, ok := opts.Providers[0].(*breaker.Provider); !ok {
		t.Fatalf("first provider should be breaker-wrapped, got %T", opts.Providers[0])
	}
	if _, ok := opts.Providers[1].(*static.Provider); !ok {
		t.Fatalf("second provider should be plain static, got %T", opts.Providers[1])
	}
	if got := opts.Providers[0].CanonicalURL(availcache.Nintendo, "Q1"); got != "https://www.wikidata.org/wiki/Q1" {
		t.Fatalf("canonical url = %q", got)
	}

	res, err := opts.Providers[0].Lookup(context.Background(), "99999")
	if err != nil || !res.Found || res.Platforms[availcache.PlayStation] != availcache.StatusUnavailable {
		t.Fatalf("lookup = %+v, %v", res, err)
	}
}

func TestFixtureFile(t *testing.T) {
	src, err := static.New(static.Config{
		Name: "snap",
		Records: map[string]static.Record{
			"7": {Name: "Celeste", Ref: "c7", Platforms: map[availcache.Platform]availcache.Status{availcache.Xbox: availcache.StatusAvailable}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := src.MarshalFixtures()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "snap.pb")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}

	doc := strings.Join([]string{
		"providers:",
		"  - name: snap",
		"    fixtureFile: " + path,
	}, "\n")
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	ps, err := cfg.NewProviders(nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ps[0].Lookup(context.Background(), "7")
	if err != nil || res.CanonicalName != "Celeste" || res.Platforms[availcache.Xbox] != availcache.StatusAvailable {
		t.Fatalf("lookup = %+v, %v", res, err)
	}
}
