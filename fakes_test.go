package availcache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/availcache/backend"
)

// ==============================
// Backend
// ==============================

type memBackend struct {
	mu     sync.Mutex
	m      map[string][]byte
	sets   int
	getErr error
	setErr error
	reject bool // Set reports ok=false like an admission drop
}

var _ backend.Backend = (*memBackend)(nil)

func newMemBackend() *memBackend { return &memBackend{m: make(map[string][]byte)} }

func (b *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, false, b.getErr
	}
	v, ok := b.m[key]
	return v, ok, nil
}

func (b *memBackend) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.setErr != nil {
		return false, b.setErr
	}
	if b.reject {
		return false, nil
	}
	b.sets++
	b.m[key] = append([]byte(nil), value...)
	return true, nil
}

func (b *memBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.m, key)
	return nil
}

func (b *memBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *memBackend) Close(context.Context) error { return nil }

func (b *memBackend) setCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sets
}

func (b *memBackend) raw(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.m[key]
	return v, ok
}

func (b *memBackend) put(key string, v []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[key] = v
}

// ==============================
// Provider
// ==============================

type fakeProvider struct {
	name    string
	records map[string]LookupResult

	mu       sync.Mutex
	err      error
	lookups  int
	batches  [][]string
	canonURL string // "" => no canonical URLs
}

var _ Provider = (*fakeProvider)(nil)

func newFakeProvider(name string, records map[string]LookupResult) *fakeProvider {
	return &fakeProvider{name: name, records: records}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakeProvider) Lookup(_ context.Context, id string) (LookupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.err != nil {
		return LookupResult{}, p.err
	}
	return p.records[id], nil
}

func (p *fakeProvider) LookupBatch(_ context.Context, ids []string) (map[string]LookupResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]string(nil), ids...))
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[string]LookupResult)
	for _, id := range ids {
		if r, ok := p.records[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (p *fakeProvider) CanonicalURL(pl Platform, ref string) string {
	if p.canonURL == "" {
		return ""
	}
	return p.canonURL + pl.String() + "/" + ref
}

func (p *fakeProvider) calls() (lookups int, batches [][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups, append([][]string(nil), p.batches...)
}

var errUpstream = errors.New("upstream unavailable")

// ==============================
// Clock
// ==============================

// fakeClock only moves on Advance. Due timers fire synchronously inside
// Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*fakeTimer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(now):
			t.stopped = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// ==============================
// Helpers
// ==============================

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recHooks struct {
	NopHooks
	mu       sync.Mutex
	heals    []string
	failed   map[string]int
	resolved map[Source]int
	persist  int
	batches  []int
	dropped  []string
}

func newRecHooks() *recHooks {
	return &recHooks{failed: make(map[string]int), resolved: make(map[Source]int)}
}

func (h *recHooks) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
}

func (h *recHooks) ProviderFailed(p string, n int, _ error) {
	h.mu.Lock()
	h.failed[p] += n
	h.mu.Unlock()
}

func (h *recHooks) Resolved(s Source, _ bool) {
	h.mu.Lock()
	h.resolved[s]++
	h.mu.Unlock()
}

func (h *recHooks) PersistFailed(string, error) {
	h.mu.Lock()
	h.persist++
	h.mu.Unlock()
}

func (h *recHooks) BatchDispatched(_ string, size, _ int) {
	h.mu.Lock()
	h.batches = append(h.batches, size)
	h.mu.Unlock()
}

func (h *recHooks) DeliveryDropped(id string) {
	h.mu.Lock()
	h.dropped = append(h.dropped, id)
	h.mu.Unlock()
}

func newTestStore(t *testing.T, b *memBackend, clk Clock, hooks Hooks) *Store {
	t.Helper()
	s, err := NewStore(StoreOptions{Namespace: "test", Backend: b, Clock: clk, Hooks: hooks})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func statuses(n, ps, xb Status) map[Platform]Status {
	return map[Platform]Status{Nintendo: n, PlayStation: ps, Xbox: xb}
}
