package availcache

import (
	"context"
)

// outcome is a definitive answer of one tier for one entity.
type outcome struct {
	entry     Entry
	fromCache bool
	persist   bool
}

// trail is what the waterfall remembers about one entity while it moves
// down the tiers.
type trail struct {
	failed int // provider tiers that failed transiently
}

// tier is one step of the resolution waterfall. Both forms return ok=false /
// leave an id out of the map to hand it to the next tier. Only errors that
// must abort the whole resolution are returned.
type tier interface {
	name() string
	one(ctx context.Context, req Request, tr *trail) (outcome, bool, error)
	many(ctx context.Context, reqs []Request, trails map[string]*trail) (map[string]outcome, error)
}

type cacheTier struct{ r *Resolver }

func (cacheTier) name() string { return "cache" }

func (t cacheTier) one(ctx context.Context, req Request, _ *trail) (outcome, bool, error) {
	e, ok, err := t.r.store.Get(ctx, req.EntityID)
	if err != nil || !ok {
		return outcome{}, false, err
	}
	return t.r.cached(e, req.DisplayName), true, nil
}

func (t cacheTier) many(ctx context.Context, reqs []Request, _ map[string]*trail) (map[string]outcome, error) {
	found, _, err := t.r.store.GetMany(ctx, entityIDs(reqs))
	if err != nil {
		return nil, err
	}
	out := make(map[string]outcome, len(found))
	for _, req := range reqs {
		if e, ok := found[req.EntityID]; ok {
			out[req.EntityID] = t.r.cached(e, req.DisplayName)
		}
	}
	return out, nil
}

type overrideTier struct{ r *Resolver }

func (overrideTier) name() string { return string(SourceOverride) }

func (t overrideTier) one(_ context.Context, req Request, _ *trail) (outcome, bool, error) {
	o, ok := t.r.overrides.Lookup(req.EntityID)
	if !ok {
		return outcome{}, false, nil
	}
	return outcome{entry: t.r.overrideEntry(req, o), persist: true}, true, nil
}

func (t overrideTier) many(_ context.Context, reqs []Request, _ map[string]*trail) (map[string]outcome, error) {
	out := make(map[string]outcome)
	for _, req := range reqs {
		if o, ok := t.r.overrides.Lookup(req.EntityID); ok {
			out[req.EntityID] = outcome{entry: t.r.overrideEntry(req, o), persist: true}
		}
	}
	return out, nil
}

type providerTier struct {
	r *Resolver
	p Provider
}

func (t providerTier) name() string { return t.p.Name() }

func (t providerTier) one(ctx context.Context, req Request, tr *trail) (outcome, bool, error) {
	cctx, cancel := t.r.providerContext(ctx)
	res, err := t.p.Lookup(cctx, req.EntityID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// the caller is gone; there is nobody to fall back for
			return outcome{}, false, ctx.Err()
		}
		t.r.providerFailed(t.p.Name(), []string{req.EntityID}, false, err)
		tr.failed++
		return outcome{}, false, nil
	}
	if !res.Found {
		t.r.hooks.ProviderMiss(t.p.Name(), 1)
		return outcome{}, false, nil
	}
	return outcome{entry: t.r.providerEntry(t.p, req, res), persist: true}, true, nil
}

func (t providerTier) many(ctx context.Context, reqs []Request, trails map[string]*trail) (map[string]outcome, error) {
	out := make(map[string]outcome)
	for _, chunk := range chunk(reqs, t.r.maxBatch) {
		ids := entityIDs(chunk)
		cctx, cancel := t.r.providerContext(ctx)
		res, err := t.p.LookupBatch(cctx, ids)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			t.r.providerFailed(t.p.Name(), ids, true, err)
			for _, id := range ids {
				trails[id].failed++
			}
			continue
		}
		misses := 0
		for _, req := range chunk {
			lr, ok := res[req.EntityID]
			if !ok || !lr.Found {
				misses++
				continue
			}
			out[req.EntityID] = outcome{entry: t.r.providerEntry(t.p, req, lr), persist: true}
		}
		if misses > 0 {
			t.r.hooks.ProviderMiss(t.p.Name(), misses)
		}
	}
	return out, nil
}

// fallbackTier always resolves. The entry is persisted unless every provider
// failed transiently for it, so an outage never pins Unknown for a whole TTL.
type fallbackTier struct{ r *Resolver }

func (fallbackTier) name() string { return string(SourceFallback) }

func (t fallbackTier) one(_ context.Context, req Request, tr *trail) (outcome, bool, error) {
	return t.outcome(req, tr), true, nil
}

func (t fallbackTier) many(_ context.Context, reqs []Request, trails map[string]*trail) (map[string]outcome, error) {
	out := make(map[string]outcome, len(reqs))
	for _, req := range reqs {
		out[req.EntityID] = t.outcome(req, trails[req.EntityID])
	}
	return out, nil
}

func (t fallbackTier) outcome(req Request, tr *trail) outcome {
	n := len(t.r.providers)
	persist := n == 0 || tr.failed < n
	if !persist {
		t.r.log.Warn("all providers failed; fallback not cached", Fields{"entity": req.EntityID, "providers": n})
	}
	return outcome{entry: t.r.fallbackEntry(req), persist: persist}
}

func entityIDs(reqs []Request) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.EntityID
	}
	return out
}

func chunk(reqs []Request, size int) [][]Request {
	if size <= 0 || len(reqs) <= size {
		return [][]Request{reqs}
	}
	out := make([][]Request, 0, (len(reqs)+size-1)/size)
	for len(reqs) > size {
		out = append(out, reqs[:size])
		reqs = reqs[size:]
	}
	return append(out, reqs)
}
