// Package static is an in-memory Provider backed by fixture records. It serves
// staging setups and tests that must not reach real data sources.
package static

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/availcache"
)

// RefPlaceholder is replaced by the record's external ref in URL templates.
const RefPlaceholder = "{ref}"

// Record is what the provider knows about one entity.
type Record struct {
	Name      string
	Ref       string
	Platforms map[availcache.Platform]availcache.Status
}

type Config struct {
	Name    string // required; becomes the Source of entries it produces
	Records map[string]Record

	// URLTemplates build canonical URLs, e.g.
	// "https://www.wikidata.org/wiki/{ref}". Platforms without a template
	// have no canonical URL.
	URLTemplates map[availcache.Platform]string

	Latency time.Duration // simulated round trip per call
}

type Provider struct {
	name      string
	records   map[string]Record
	templates map[availcache.Platform]string
	latency   time.Duration

	mu  sync.RWMutex
	err error

	lookups atomic.Int64
	batches atomic.Int64
}

var _ availcache.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		return nil, errors.New("static provider: name is required")
	}
	p := &Provider{
		name:      cfg.Name,
		records:   make(map[string]Record, len(cfg.Records)),
		templates: make(map[availcache.Platform]string, len(cfg.URLTemplates)),
		latency:   cfg.Latency,
	}
	for id, r := range cfg.Records {
		p.records[id] = r
	}
	for pl, t := range cfg.URLTemplates {
		p.templates[pl] = t
	}
	return p, nil
}

func (p *Provider) Name() string { return p.name }

// Fail makes every following call return err; nil restores normal answers.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Calls reports how many single and batch lookups were served or attempted.
func (p *Provider) Calls() (lookups, batches int64) {
	return p.lookups.Load(), p.batches.Load()
}

func (p *Provider) Lookup(ctx context.Context, entityID string) (availcache.LookupResult, error) {
	p.lookups.Add(1)
	if err := p.roundTrip(ctx); err != nil {
		return availcache.LookupResult{}, err
	}
	return p.result(entityID), nil
}

func (p *Provider) LookupBatch(ctx context.Context, entityIDs []string) (map[string]availcache.LookupResult, error) {
	p.batches.Add(1)
	if err := p.roundTrip(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]availcache.LookupResult, len(entityIDs))
	for _, id := range entityIDs {
		if r := p.result(id); r.Found {
			out[id] = r
		}
	}
	return out, nil
}

func (p *Provider) CanonicalURL(pl availcache.Platform, ref string) string {
	t, ok := p.templates[pl]
	if !ok || ref == "" {
		return ""
	}
	return strings.ReplaceAll(t, RefPlaceholder, ref)
}

func (p *Provider) roundTrip(ctx context.Context) error {
	p.mu.RLock()
	err := p.err
	p.mu.RUnlock()
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return ctx.Err()
}

func (p *Provider) result(entityID string) availcache.LookupResult {
	r, ok := p.records[entityID]
	if !ok {
		return availcache.LookupResult{}
	}
	platforms := make(map[availcache.Platform]availcache.Status, len(r.Platforms))
	for pl, st := range r.Platforms {
		platforms[pl] = st
	}
	return availcache.LookupResult{
		Found:         true,
		CanonicalName: r.Name,
		Platforms:     platforms,
		ExternalRef:   r.Ref,
	}
}
