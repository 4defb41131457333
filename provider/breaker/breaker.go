// Package breaker isolates a failing Provider behind a circuit breaker. While
// the circuit is open calls fail fast, which the resolver treats like any
// other transient failure: the tier is skipped and nothing is cached.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/availcache"
)

type Config struct {
	MaxRequests      uint32        // probes allowed while half-open
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open -> half-open delay
	FailureThreshold float64       // failure ratio that trips the circuit
	MinRequests      uint32        // requests needed before the ratio counts

	Logger availcache.Logger
}

// DefaultConfig trips at 80% failures over at least 5 requests and probes
// again after 60s.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

type Provider struct {
	inner availcache.Provider
	cb    *gobreaker.CircuitBreaker
}

var _ availcache.Provider = (*Provider)(nil)

func Wrap(inner availcache.Provider, cfg Config) *Provider {
	log := cfg.Logger
	if log == nil {
		log = availcache.NopLogger{}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("provider circuit state changed", availcache.Fields{
				"provider": name, "from": from.String(), "to": to.String(),
			})
		},
		// a caller canceling is not the provider's fault
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &Provider{inner: inner, cb: cb}
}

func (p *Provider) Name() string { return p.inner.Name() }

func (p *Provider) State() gobreaker.State { return p.cb.State() }

func (p *Provider) Lookup(ctx context.Context, entityID string) (availcache.LookupResult, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Lookup(ctx, entityID)
	})
	if err != nil {
		return availcache.LookupResult{}, err
	}
	return v.(availcache.LookupResult), nil
}

func (p *Provider) LookupBatch(ctx context.Context, entityIDs []string) (map[string]availcache.LookupResult, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.LookupBatch(ctx, entityIDs)
	})
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]availcache.LookupResult)
	return m, nil
}

func (p *Provider) CanonicalURL(pl availcache.Platform, ref string) string {
	return p.inner.CanonicalURL(pl, ref)
}
