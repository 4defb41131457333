// Package backend defines the persistence abstraction used by availcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Keys are namespaced as "<namespace>:<entityId>". The store lists a namespace
// through Keys, so Clear and Stats never touch keys outside their prefix.
package backend

import (
	"context"
	"time"
)

// Backend is a minimal byte store with TTLs and prefix listing.
// Must be safe for concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL; ttl <= 0 means no expiry.
	// cost may be ignored. Returns ok=false when the store rejected the
	// write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Keys lists every live key starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close(ctx context.Context) error
}
