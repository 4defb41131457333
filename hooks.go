package availcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; the resolver and the
// coordinator call them on hot paths.
type Hooks interface {
	// A stored entry could not be decoded and was deleted.
	// reason ∈ {"corrupt", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A provider call failed transiently (error or timeout). n is the number of
	// ids involved (1 for single lookups).
	ProviderFailed(provider string, n int, err error)

	// A provider answered definitively without a record for n ids.
	ProviderMiss(provider string, n int)

	// An entity was resolved by the given tier.
	Resolved(source Source, fromCache bool)

	// Writing a resolved entry to the store failed.
	PersistFailed(entityID string, err error)

	// The coordinator sent a batch of size unique ids built from requests enqueued calls.
	BatchDispatched(batchID string, size, requests int)

	// A result could not be delivered because its requester went away.
	DeliveryDropped(entityID string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)           {}
func (NopHooks) ProviderFailed(string, int, error) {}
func (NopHooks) ProviderMiss(string, int)          {}
func (NopHooks) Resolved(Source, bool)             {}
func (NopHooks) PersistFailed(string, error)       {}
func (NopHooks) BatchDispatched(string, int, int)  {}
func (NopHooks) DeliveryDropped(string)            {}

// TeeHooks fans every event out to each of its members in order.
type TeeHooks []Hooks

func (t TeeHooks) SelfHeal(storageKey, reason string) {
	for _, h := range t {
		h.SelfHeal(storageKey, reason)
	}
}

func (t TeeHooks) ProviderFailed(provider string, n int, err error) {
	for _, h := range t {
		h.ProviderFailed(provider, n, err)
	}
}

func (t TeeHooks) ProviderMiss(provider string, n int) {
	for _, h := range t {
		h.ProviderMiss(provider, n)
	}
}

func (t TeeHooks) Resolved(source Source, fromCache bool) {
	for _, h := range t {
		h.Resolved(source, fromCache)
	}
}

func (t TeeHooks) PersistFailed(entityID string, err error) {
	for _, h := range t {
		h.PersistFailed(entityID, err)
	}
}

func (t TeeHooks) BatchDispatched(batchID string, size, requests int) {
	for _, h := range t {
		h.BatchDispatched(batchID, size, requests)
	}
}

func (t TeeHooks) DeliveryDropped(entityID string) {
	for _, h := range t {
		h.DeliveryDropped(entityID)
	}
}
