package availcache

import "time"

const (
	defaultNamespace       = "availcache"
	defaultTTLDays         = 7
	defaultDebounce        = 100 * time.Millisecond
	defaultMaxWait         = time.Second
	defaultProviderTimeout = 5 * time.Second
	defaultBatchTimeout    = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
