// Package availcache resolves per-platform availability of catalog entities
// from ranked external providers and caches the outcome.
//
// Components:
//   - Store: persisted entries keyed by entity id over a backend.Backend
//     (Redis, BigCache, Ristretto) with TTL + schema version validity.
//   - OverrideTable: static forced values, consulted before any provider.
//   - Provider: ranked async lookup sources with a uniform LookupResult.
//   - Resolver: the waterfall cache -> override -> provider 1..N -> fallback,
//     single and vectorized.
//   - Coordinator: debounces and deduplicates single-entity requests into
//     ResolveBatch calls and fans results back out.
//
// Keys:
//
//	<ns>:<entityId>  - one framed entry per entity
//
// Only deterministic outcomes are cached: found, override, and fallback after
// at least one provider answered. Transient provider failures never are.
//
// Usage:
//
//	eng, _ := availcache.New(availcache.Options{
//	    Backend:   rb,
//	    Providers: []availcache.Provider{wikidata, igdb},
//	})
//	res, err := eng.Enqueue(ctx, availcache.Request{EntityID: "367520", DisplayName: "Hollow Knight"})
package availcache
