package availcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/availcache/backend"
	"github.com/unkn0wn-root/availcache/codec"
	"github.com/unkn0wn-root/availcache/internal/util"
	"github.com/unkn0wn-root/availcache/internal/wire"
)

// EntryStore is what the resolver needs from the Cache Store.
type EntryStore interface {
	Get(ctx context.Context, entityID string) (Entry, bool, error)
	GetMany(ctx context.Context, entityIDs []string) (found map[string]Entry, missing []string, err error)
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, entityID string) error
}

type SetCostFunc func(key string, raw []byte) int64

// StoreOptions configures a Store. Backend is required.
type StoreOptions struct {
	Namespace string // key prefix; "" => "availcache"
	Backend   backend.Backend
	Codec     codec.Codec[Entry] // nil => JSON

	// Retention is the backend TTL of written entries. Keep it well above the
	// entry TTL so stale entries stay visible to GetWithStaleness.
	// 0 => no backend expiry.
	Retention      time.Duration
	ComputeSetCost SetCostFunc // nil => encoded size

	Logger Logger
	Hooks  Hooks
	Clock  Clock
}

// Store persists entries keyed by entity id. It holds no in-memory copy;
// every call goes to the backend.
type Store struct {
	ns        string
	backend   backend.Backend
	codec     codec.Codec[Entry]
	retention time.Duration
	cost      SetCostFunc
	log       Logger
	hooks     Hooks
	clock     Clock
}

var _ EntryStore = (*Store)(nil)

// Lookup is the result of GetWithStaleness.
type Lookup struct {
	Entry Entry
	Found bool // physically present and decodable
	Stale bool // present but past its TTL or written under another schema
}

// Stats summarizes the namespace.
type Stats struct {
	Count            int        `json:"count"`
	Stale            int        `json:"stale"`
	OldestResolvedAt *time.Time `json:"oldestResolvedAt"`
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("%w: store backend is required", ErrNotConfigured)
	}
	s := &Store{
		ns:        coalesce(opts.Namespace, defaultNamespace),
		backend:   opts.Backend,
		codec:     opts.Codec,
		retention: opts.Retention,
		cost:      opts.ComputeSetCost,
		log:       coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:     coalesce[Hooks](opts.Hooks, NopHooks{}),
		clock:     coalesce[Clock](opts.Clock, SystemClock),
	}
	if s.codec == nil {
		s.codec = codec.JSON[Entry]{}
	}
	if s.cost == nil {
		s.cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	return s, nil
}

func (s *Store) Namespace() string { return s.ns }

// Get returns the entry only when it is valid. Missing, stale and corrupt
// entries are all reported as a miss.
func (s *Store) Get(ctx context.Context, entityID string) (Entry, bool, error) {
	k := util.StorageKey(s.ns, entityID)
	raw, ok, err := s.backend.Get(ctx, k)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	h, payload, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return Entry{}, false, nil
	}
	if !validAt(h.ResolvedAt, int(h.TTLDays), int(h.Schema), s.clock.Now()) {
		return Entry{}, false, nil
	}
	e, err := s.codec.Decode(payload)
	if err != nil {
		s.heal(ctx, k, "value_decode")
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetWithStaleness returns any physically present entry and whether it fails
// the validity check. An entry written under another schema is reported as
// found and stale even when its payload no longer decodes; Entry then only
// carries what the frame header knows.
func (s *Store) GetWithStaleness(ctx context.Context, entityID string) (Lookup, error) {
	k := util.StorageKey(s.ns, entityID)
	raw, ok, err := s.backend.Get(ctx, k)
	if err != nil || !ok {
		return Lookup{}, err
	}
	h, payload, err := wire.Decode(raw)
	if err != nil {
		s.heal(ctx, k, "corrupt")
		return Lookup{}, nil
	}
	stale := !validAt(h.ResolvedAt, int(h.TTLDays), int(h.Schema), s.clock.Now())
	e, err := s.codec.Decode(payload)
	if err != nil {
		if int(h.Schema) != SchemaVersion {
			return Lookup{Entry: Entry{
				EntityID:      entityID,
				ResolvedAt:    h.ResolvedAt,
				TTLDays:       int(h.TTLDays),
				SchemaVersion: int(h.Schema),
			}, Found: true, Stale: true}, nil
		}
		s.heal(ctx, k, "value_decode")
		return Lookup{}, nil
	}
	return Lookup{Entry: e, Found: true, Stale: stale}, nil
}

// GetMany partitions ids into valid entries and misses. Duplicate ids are
// looked up once.
func (s *Store) GetMany(ctx context.Context, entityIDs []string) (map[string]Entry, []string, error) {
	ids := util.Dedup(entityIDs)
	found := make(map[string]Entry, len(ids))
	var missing []string
	for _, id := range ids {
		e, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			found[id] = e
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

// Save upserts e under its EntityID. Last write wins.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if e.EntityID == "" {
		return errors.New("availcache: save: empty entity id")
	}
	if e.TTLDays < 0 || e.SchemaVersion < 0 || e.SchemaVersion > 0xFFFF {
		return fmt.Errorf("availcache: save %q: invalid ttl/schema %d/%d", e.EntityID, e.TTLDays, e.SchemaVersion)
	}
	payload, err := s.codec.Encode(e)
	if err != nil {
		return fmt.Errorf("availcache: encode %q: %w", e.EntityID, err)
	}
	k := util.StorageKey(s.ns, e.EntityID)
	raw := wire.Encode(wire.Header{
		Schema:     uint16(e.SchemaVersion),
		ResolvedAt: e.ResolvedAt,
		TTLDays:    uint32(e.TTLDays),
	}, payload)
	ok, err := s.backend.Set(ctx, k, raw, s.cost(k, raw), s.retention)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("availcache: save %q: %w", e.EntityID, ErrSaveRejected)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, entityID string) error {
	return s.backend.Del(ctx, util.StorageKey(s.ns, entityID))
}

// Clear removes every key in this store's namespace and nothing else.
func (s *Store) Clear(ctx context.Context) (int, error) {
	keys, err := s.backend.Keys(ctx, util.Prefix(s.ns))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if _, ok := util.EntityID(s.ns, k); !ok {
			continue
		}
		if err := s.backend.Del(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	s.log.Info("store cleared", Fields{"ns": s.ns, "removed": removed})
	return removed, nil
}

// Stats counts the namespace from frame headers only; payloads are not decoded.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.backend.Keys(ctx, util.Prefix(s.ns))
	if err != nil {
		return Stats{}, err
	}
	now := s.clock.Now()
	var st Stats
	for _, k := range keys {
		raw, ok, err := s.backend.Get(ctx, k)
		if err != nil {
			return Stats{}, err
		}
		if !ok {
			continue // expired between Keys and Get
		}
		h, err := wire.DecodeHeader(raw)
		if err != nil {
			continue
		}
		st.Count++
		if !validAt(h.ResolvedAt, int(h.TTLDays), int(h.Schema), now) {
			st.Stale++
		}
		if st.OldestResolvedAt == nil || h.ResolvedAt.Before(*st.OldestResolvedAt) {
			t := h.ResolvedAt
			st.OldestResolvedAt = &t
		}
	}
	return st, nil
}

func (s *Store) heal(ctx context.Context, storageKey, reason string) {
	_ = s.backend.Del(ctx, storageKey)
	s.hooks.SelfHeal(storageKey, reason)
	s.log.Debug("self-healed stored entry", Fields{"key": storageKey, "reason": reason})
}
