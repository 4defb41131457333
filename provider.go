package availcache

import "context"

// LookupResult is the uniform answer of a Provider for one entity.
// Found=false is a definitive negative; transient failures are reported as
// errors instead.
type LookupResult struct {
	Found         bool
	CanonicalName string
	Platforms     map[Platform]Status // platforms the provider knows nothing about are absent
	ExternalRef   string              // provider-specific id, "" when none
}

// Provider is one ranked external data source.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider; it is recorded as the Source of entries it produced.
	Name() string

	Lookup(ctx context.Context, entityID string) (LookupResult, error)

	// LookupBatch answers many ids in one round trip. Ids absent from the
	// returned map are treated as not found.
	LookupBatch(ctx context.Context, entityIDs []string) (map[string]LookupResult, error)

	// CanonicalURL returns the provider-authoritative page for a platform, or ""
	// when the provider cannot build one from ref.
	CanonicalURL(p Platform, externalRef string) string
}
