package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/provider/static"
)

func newInner(t *testing.T) *static.Provider {
	t.Helper()
	p, err := static.New(static.Config{
		Name:    "igdb",
		Records: map[string]static.Record{"1": {Name: "One", Ref: "r1"}},
		URLTemplates: map[availcache.Platform]string{
			availcache.Xbox: "https://igdb.example/{ref}",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinRequests = 3
	cfg.FailureThreshold = 0.6
	cfg.Timeout = time.Hour
	return cfg
}

func TestPassThrough(t *testing.T) {
	inner := newInner(t)
	p := Wrap(inner, testConfig())
	if p.Name() != "igdb" {
		t.Fatalf("name = %q", p.Name())
	}
	res, err := p.Lookup(context.Background(), "1")
	if err != nil || !res.Found || res.CanonicalName != "One" {
		t.Fatalf("Lookup = %+v, %v", res, err)
	}
	out, err := p.LookupBatch(context.Background(), []string{"1", "2"})
	if err != nil || len(out) != 1 {
		t.Fatalf("LookupBatch = %v, %v", out, err)
	}
	if got := p.CanonicalURL(availcache.Xbox, "r1"); got != "https://igdb.example/r1" {
		t.Fatalf("url = %q", got)
	}
}

func TestTripsOpen(t *testing.T) {
	inner := newInner(t)
	p := Wrap(inner, testConfig())
	inner.Fail(errors.New("502"))

	for i := 0; i < 3; i++ {
		if _, err := p.Lookup(context.Background(), "1"); err == nil {
			t.Fatal("expected inner failure")
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", p.State())
	}

	inner.Fail(nil)
	lookupsBefore, _ := inner.Calls()
	if _, err := p.LookupBatch(context.Background(), []string{"1"}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if lookups, batches := inner.Calls(); lookups != lookupsBefore || batches != 0 {
		t.Fatal("open circuit still reached the provider")
	}
}

func TestCancellationDoesNotTrip(t *testing.T) {
	inner := newInner(t)
	p := Wrap(inner, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if _, err := p.Lookup(ctx, "1"); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	}
	if p.State() != gobreaker.StateClosed {
		t.Fatalf("state = %v, want closed", p.State())
	}
}
