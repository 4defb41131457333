package availcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/availcache/backend"
	"github.com/unkn0wn-root/availcache/codec"
)

// Options wires a complete Engine. Only Backend is required; everything else
// has sensible defaults.
type Options struct {
	// Required
	Backend backend.Backend

	Namespace string             // key prefix; "" => "availcache"
	Codec     codec.Codec[Entry] // nil => JSON
	Retention time.Duration      // backend TTL of entries; 0 => no expiry

	Overrides       *OverrideTable // nil => empty
	Providers       []Provider     // ranked, first is tried first
	TTLDays         int            // 0 => 7
	ProviderTimeout time.Duration  // 0 => 5s, < 0 disables
	MaxBatchSize    int            // 0 => unlimited
	SearchURL       SearchURLFunc  // nil => StoreSearchURL

	Debounce     time.Duration // 0 => 100ms
	MaxWait      time.Duration // 0 => 1s
	BatchTimeout time.Duration // 0 => 30s

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks
	Clock  Clock  // nil => SystemClock
}

// Engine is the resolution-and-cache engine: a Store, a Resolver over it and
// a Coordinator in front of the Resolver.
type Engine struct {
	backend  backend.Backend
	store    *Store
	resolver *Resolver
	coord    *Coordinator
	log      Logger
}

func New(opts Options) (*Engine, error) {
	log := coalesce[Logger](opts.Logger, NopLogger{})
	hooks := coalesce[Hooks](opts.Hooks, NopHooks{})
	clock := coalesce[Clock](opts.Clock, SystemClock)

	store, err := NewStore(StoreOptions{
		Namespace: opts.Namespace,
		Backend:   opts.Backend,
		Codec:     opts.Codec,
		Retention: opts.Retention,
		Logger:    log,
		Hooks:     hooks,
		Clock:     clock,
	})
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver(ResolverOptions{
		Store:           store,
		Overrides:       opts.Overrides,
		Providers:       opts.Providers,
		TTLDays:         opts.TTLDays,
		ProviderTimeout: opts.ProviderTimeout,
		MaxBatchSize:    opts.MaxBatchSize,
		SearchURL:       opts.SearchURL,
		Logger:          log,
		Hooks:           hooks,
		Clock:           clock,
	})
	if err != nil {
		return nil, err
	}
	coord, err := NewCoordinator(CoordinatorOptions{
		Resolver:     resolver,
		Debounce:     opts.Debounce,
		MaxWait:      opts.MaxWait,
		BatchTimeout: opts.BatchTimeout,
		Logger:       log,
		Hooks:        hooks,
		Clock:        clock,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("engine ready", Fields{
		"ns":        store.Namespace(),
		"providers": len(opts.Providers),
		"overrides": opts.Overrides.Len(),
	})
	return &Engine{backend: opts.Backend, store: store, resolver: resolver, coord: coord, log: log}, nil
}

func (e *Engine) Store() *Store             { return e.store }
func (e *Engine) Resolver() *Resolver       { return e.resolver }
func (e *Engine) Coordinator() *Coordinator { return e.coord }

// Resolve runs the waterfall for one entity immediately, without batching.
func (e *Engine) Resolve(ctx context.Context, entityID, displayName string) (Result, error) {
	return e.resolver.Resolve(ctx, entityID, displayName)
}

// Enqueue resolves one entity through the coordinator, sharing provider
// round trips with requests that arrive within the same window.
func (e *Engine) Enqueue(ctx context.Context, req Request) (Result, error) {
	return e.coord.Resolve(ctx, req)
}

func (e *Engine) ResolveBatch(ctx context.Context, reqs []Request) (map[string]Result, error) {
	return e.resolver.ResolveBatch(ctx, reqs)
}

func (e *Engine) Refresh(ctx context.Context, entityID, displayName string) (Result, error) {
	return e.resolver.Refresh(ctx, entityID, displayName)
}

func (e *Engine) Clear(ctx context.Context) (int, error) { return e.store.Clear(ctx) }

func (e *Engine) Stats(ctx context.Context) (Stats, error) { return e.store.Stats(ctx) }

// Close drains the coordinator, then releases the backend.
func (e *Engine) Close(ctx context.Context) error {
	cerr := e.coord.Close(ctx)
	berr := e.backend.Close(ctx)
	return errors.Join(cerr, berr)
}

// Response is the answer to one inbound Request. A persistence failure is
// reported with Success=false while Data still carries the resolved entry.
type Response struct {
	Success   bool   `json:"success"`
	Data      *Entry `json:"data,omitempty"`
	FromCache bool   `json:"fromCache,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BatchRequest struct {
	Entities []Request `json:"entities"`
}

type BatchResponse struct {
	Success bool                `json:"success"`
	Results map[string]Response `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Handle serves one inbound request through the coordinator.
func (e *Engine) Handle(ctx context.Context, req Request) Response {
	res, err := e.coord.Resolve(ctx, req)
	return NewResponse(res, err)
}

// HandleRefresh serves a forced refresh.
func (e *Engine) HandleRefresh(ctx context.Context, req Request) Response {
	res, err := e.resolver.Refresh(ctx, req.EntityID, req.DisplayName)
	return NewResponse(res, err)
}

// HandleBatch serves a batch request directly; it already is a batch, so
// the coordinator is bypassed.
func (e *Engine) HandleBatch(ctx context.Context, req BatchRequest) BatchResponse {
	results, err := e.resolver.ResolveBatch(ctx, req.Entities)
	if err != nil {
		return BatchResponse{Error: err.Error()}
	}
	out := BatchResponse{Success: true, Results: make(map[string]Response, len(results))}
	for id, res := range results {
		out.Results[id] = NewResponse(res, res.Err)
	}
	return out
}

// NewResponse renders the outcome of a Resolve or Refresh call.
func NewResponse(res Result, err error) Response {
	var perr *PersistError
	switch {
	case err == nil:
		entry := res.Entry
		return Response{Success: true, Data: &entry, FromCache: res.FromCache}
	case errors.As(err, &perr) && res.Entry.EntityID != "":
		entry := res.Entry
		return Response{Data: &entry, FromCache: res.FromCache, Error: err.Error()}
	default:
		return Response{Error: fmt.Sprint(err)}
	}
}
