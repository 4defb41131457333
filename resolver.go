package availcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Request asks for the attributes of one entity.
type Request struct {
	EntityID    string `json:"entityId"`
	DisplayName string `json:"displayName"`
}

// Result is one resolved entity. Err is a *PersistError when the entry could
// not be stored; Entry is still usable in that case.
type Result struct {
	Entry     Entry
	FromCache bool
	Err       error

	stored bool // Entry (under some name) is in the store
}

var errEmptyID = errors.New("availcache: empty entity id")

// ResolverOptions configures a Resolver. Store is required; Providers are
// tried in slice order.
type ResolverOptions struct {
	Store     EntryStore
	Overrides *OverrideTable
	Providers []Provider

	TTLDays         int           // 0 => 7
	ProviderTimeout time.Duration // per provider call; 0 => 5s, < 0 disables
	MaxBatchSize    int           // ids per provider batch call; 0 => unlimited
	SearchURL       SearchURLFunc // nil => StoreSearchURL

	Logger Logger
	Hooks  Hooks
	Clock  Clock
}

// Resolver runs the waterfall cache -> override -> providers -> fallback and
// writes the outcome back to the store.
type Resolver struct {
	store     EntryStore
	overrides *OverrideTable
	providers []Provider
	tiers     []tier

	ttlDays  int
	timeout  time.Duration
	maxBatch int
	search   SearchURLFunc

	log   Logger
	hooks Hooks
	clock Clock

	sf      singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the shared context of one collapsed resolution. It is canceled
// only once every caller waiting on it has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: resolver store is required", ErrNotConfigured)
	}
	for i, p := range opts.Providers {
		if p == nil {
			return nil, fmt.Errorf("%w: provider %d is nil", ErrNotConfigured, i)
		}
	}
	r := &Resolver{
		store:     opts.Store,
		overrides: opts.Overrides,
		providers: append([]Provider(nil), opts.Providers...),
		ttlDays:   coalesce(opts.TTLDays, defaultTTLDays),
		timeout:   coalesce(opts.ProviderTimeout, defaultProviderTimeout),
		maxBatch:  opts.MaxBatchSize,
		search:    opts.SearchURL,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		clock:     coalesce[Clock](opts.Clock, SystemClock),
	}
	if r.search == nil {
		r.search = StoreSearchURL
	}

	r.tiers = append(r.tiers, cacheTier{r}, overrideTier{r})
	for _, p := range r.providers {
		r.tiers = append(r.tiers, providerTier{r: r, p: p})
	}
	r.tiers = append(r.tiers, fallbackTier{r})
	return r, nil
}

func (r *Resolver) ready() error {
	if r == nil || r.store == nil || len(r.tiers) == 0 {
		return ErrNotConfigured
	}
	return nil
}

// Resolve returns the attributes of one entity. Concurrent calls for the same
// id share one waterfall run. Each caller waits on its own ctx; the shared run
// is abandoned only when all of them are gone. A caller whose display name
// differs from the shared result gets the entry renamed for it.
//
// A *PersistError is returned together with a populated Result when the entry
// was resolved but could not be stored.
func (r *Resolver) Resolve(ctx context.Context, entityID, displayName string) (Result, error) {
	if err := r.ready(); err != nil {
		return Result{}, err
	}
	if entityID == "" {
		return Result{}, errEmptyID
	}
	req := Request{EntityID: entityID, DisplayName: displayName}
	return r.shared(ctx, entityID, displayName, func(fctx context.Context) (Result, error) {
		return r.waterfall(fctx, req)
	})
}

// Refresh deletes the stored entry and resolves from the top of the waterfall,
// bypassing any cached state.
func (r *Resolver) Refresh(ctx context.Context, entityID, displayName string) (Result, error) {
	if err := r.ready(); err != nil {
		return Result{}, err
	}
	if entityID == "" {
		return Result{}, errEmptyID
	}
	req := Request{EntityID: entityID, DisplayName: displayName}
	return r.shared(ctx, "refresh\x00"+entityID, displayName, func(fctx context.Context) (Result, error) {
		if err := r.store.Delete(fctx, entityID); err != nil {
			return Result{}, fmt.Errorf("availcache: refresh %q: %w", entityID, err)
		}
		r.log.Debug("forced refresh", Fields{"entity": entityID})
		return r.waterfall(fctx, req)
	})
}

// shared runs fn once per key for all concurrent callers.
func (r *Resolver) shared(ctx context.Context, key, displayName string, fn func(context.Context) (Result, error)) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		f, ch := r.join(ctx, key, fn)
		select {
		case out := <-ch:
			r.leave(key, f)
			if errors.Is(out.Err, context.Canceled) && ctx.Err() == nil {
				// joined a run its other callers had already abandoned
				continue
			}
			res, _ := out.Val.(Result)
			if out.Err != nil && res.Entry.EntityID == "" {
				return res, out.Err
			}
			res = r.forCaller(ctx, res, displayName)
			return res, res.Err
		case <-ctx.Done():
			r.leave(key, f)
			return Result{}, ctx.Err()
		}
	}
}

func (r *Resolver) join(ctx context.Context, key string, fn func(context.Context) (Result, error)) (*flight, <-chan singleflight.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flights == nil {
		r.flights = make(map[string]*flight)
	}
	f, ok := r.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		r.flights[key] = f
	}
	f.waiters++
	ch := r.sf.DoChan(key, func() (any, error) {
		defer r.land(key, f)
		return fn(f.ctx)
	})
	return f, ch
}

func (r *Resolver) leave(key string, f *flight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
		if r.flights[key] == f {
			delete(r.flights, key)
		}
	}
}

func (r *Resolver) land(key string, f *flight) {
	r.mu.Lock()
	if r.flights[key] == f {
		delete(r.flights, key)
	}
	r.mu.Unlock()
	f.cancel()
}

// forCaller renames a shared result for a caller that knows a different
// display name. The rename is stored only when the shared entry was.
func (r *Resolver) forCaller(ctx context.Context, res Result, displayName string) Result {
	if displayName == "" || displayName == res.Entry.DisplayName {
		return res
	}
	out := Result{
		Entry:     renameEntry(res.Entry, displayName, r.search),
		FromCache: res.FromCache,
		stored:    res.stored,
	}
	if !res.stored {
		out.Err = res.Err
		return out
	}
	if err := r.store.Save(ctx, out.Entry); err != nil {
		r.hooks.PersistFailed(out.Entry.EntityID, err)
		r.log.Error("persist renamed entry", Fields{"entity": out.Entry.EntityID, "err": err})
		out.Err = &PersistError{EntityID: out.Entry.EntityID, Err: err}
	}
	return out
}

func (r *Resolver) waterfall(ctx context.Context, req Request) (Result, error) {
	tr := &trail{}
	for _, t := range r.tiers {
		out, ok, err := t.one(ctx, req, tr)
		if err != nil {
			return Result{}, fmt.Errorf("availcache: resolve %q at %s: %w", req.EntityID, t.name(), err)
		}
		if ok {
			res := r.finish(ctx, out)
			return res, res.Err
		}
	}
	// fallbackTier always resolves
	return Result{}, fmt.Errorf("%w: no terminal tier", ErrNotConfigured)
}

// ResolveBatch resolves many entities tier by tier so every provider sees at
// most one batch call per chunk. Duplicate ids are resolved once; the last
// display name given for an id wins. Per-entity persistence failures are
// reported in Result.Err; the returned error is reserved for store read
// failures and wiring defects.
func (r *Resolver) ResolveBatch(ctx context.Context, reqs []Request) (map[string]Result, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	pending := dedupRequests(reqs)
	out := make(map[string]Result, len(pending))
	trails := make(map[string]*trail, len(pending))
	for _, req := range pending {
		trails[req.EntityID] = &trail{}
	}

	for _, t := range r.tiers {
		if len(pending) == 0 {
			break
		}
		resolved, err := t.many(ctx, pending, trails)
		if err != nil {
			return out, fmt.Errorf("availcache: resolve batch at %s: %w", t.name(), err)
		}
		next := make([]Request, 0, len(pending))
		for _, req := range pending {
			o, ok := resolved[req.EntityID]
			if !ok {
				next = append(next, req)
				continue
			}
			out[req.EntityID] = r.finish(ctx, o)
		}
		pending = next
	}
	return out, nil
}

// finish persists the outcome when the tier asks for it.
func (r *Resolver) finish(ctx context.Context, o outcome) Result {
	res := Result{Entry: o.entry, FromCache: o.fromCache, stored: o.fromCache}
	r.hooks.Resolved(o.entry.Source, o.fromCache)
	if !o.persist {
		return res
	}
	if err := r.store.Save(ctx, o.entry); err != nil {
		r.hooks.PersistFailed(o.entry.EntityID, err)
		r.log.Error("persist resolved entry", Fields{"entity": o.entry.EntityID, "source": o.entry.Source, "err": err})
		res.Err = &PersistError{EntityID: o.entry.EntityID, Err: err}
		return res
	}
	res.stored = true
	return res
}

// cached serves a valid entry, renaming it when the caller knows a newer
// display name.
func (r *Resolver) cached(e Entry, displayName string) outcome {
	if displayName == "" || displayName == e.DisplayName {
		return outcome{entry: e, fromCache: true}
	}
	return outcome{entry: renameEntry(e, displayName, r.search), fromCache: true, persist: true}
}

func (r *Resolver) stamp(e Entry) Entry {
	e.ResolvedAt = r.clock.Now()
	e.TTLDays = r.ttlDays
	e.SchemaVersion = SchemaVersion
	return e
}

func (r *Resolver) overrideEntry(req Request, o Override) Entry {
	return r.stamp(Entry{
		EntityID:    req.EntityID,
		DisplayName: req.DisplayName,
		Attributes:  o.attributes(r.search, req.DisplayName),
		Source:      SourceOverride,
	})
}

func (r *Resolver) providerEntry(p Provider, req Request, res LookupResult) Entry {
	name := coalesce(req.DisplayName, res.CanonicalName)
	attrs := make(map[Platform]Attribute, len(Platforms))
	for _, pl := range Platforms {
		st := res.Platforms[pl]
		var u string
		if st != StatusUnknown && res.ExternalRef != "" {
			u = p.CanonicalURL(pl, res.ExternalRef)
		}
		if u == "" {
			u = r.search(pl, name)
		}
		attrs[pl] = Attribute{Status: st, URL: u}
	}
	e := Entry{
		EntityID:    req.EntityID,
		DisplayName: name,
		Attributes:  attrs,
		Source:      Source(p.Name()),
	}
	if res.ExternalRef != "" {
		e.ExternalRefs = map[string]string{p.Name(): res.ExternalRef}
	}
	return r.stamp(e)
}

func (r *Resolver) fallbackEntry(req Request) Entry {
	return r.stamp(Entry{
		EntityID:    req.EntityID,
		DisplayName: req.DisplayName,
		Attributes:  fallbackAttributes(r.search, req.DisplayName),
		Source:      SourceFallback,
	})
}

func (r *Resolver) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Resolver) providerFailed(provider string, ids []string, batch bool, err error) {
	perr := &ProviderError{Provider: provider, Batch: batch, Err: err}
	r.hooks.ProviderFailed(provider, len(ids), err)
	f := Fields{"provider": provider, "n": len(ids), "err": perr}
	if len(ids) == 1 {
		f["entity"] = ids[0]
	}
	r.log.Warn("provider lookup failed; trying next tier", f)
}

// dedupRequests drops empty ids and collapses duplicates, keeping first-seen
// order and the last non-empty display name.
func dedupRequests(reqs []Request) []Request {
	idx := make(map[string]int, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, req := range reqs {
		if req.EntityID == "" {
			continue
		}
		if i, ok := idx[req.EntityID]; ok {
			if req.DisplayName != "" {
				out[i].DisplayName = req.DisplayName
			}
			continue
		}
		idx[req.EntityID] = len(out)
		out = append(out, req)
	}
	return out
}
