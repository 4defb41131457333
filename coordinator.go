package availcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchResolver is what the coordinator dispatches to. *Resolver implements it.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, reqs []Request) (map[string]Result, error)
}

// Delivery is the outcome handed to a requester. Err is ErrNoData (possibly
// wrapping the cause) when the batch failed, or a *PersistError next to a
// usable Result.
type Delivery struct {
	EntityID string
	Result   Result
	Err      error
}

// Handle receives the outcome of a submitted request.
type Handle interface {
	// Alive reports whether the requester can still take a delivery.
	// Results for dead handles are persisted but not delivered.
	Alive() bool
	// Deliver must not block.
	Deliver(Delivery)
}

// HandleFunc adapts a function to an always-alive Handle.
type HandleFunc func(Delivery)

func (HandleFunc) Alive() bool          { return true }
func (f HandleFunc) Deliver(d Delivery) { f(d) }

// CoordinatorOptions configures a Coordinator. Resolver is required.
type CoordinatorOptions struct {
	Resolver BatchResolver

	Debounce     time.Duration // quiet period after the last submit; 0 => 100ms
	MaxWait      time.Duration // upper bound from first pending submit to dispatch; 0 => 1s
	BatchTimeout time.Duration // deadline of one dispatched batch; 0 => 30s

	Logger Logger
	Hooks  Hooks
	Clock  Clock
}

type pendingEntry struct {
	req     Request
	handles []Handle
}

type batch struct {
	entries  []*pendingEntry
	requests int
}

// Coordinator coalesces single-entity requests arriving close together into
// ResolveBatch calls and fans the results back out. Requests for the same id
// inside one window share a single resolution.
type Coordinator struct {
	resolver     BatchResolver
	debounce     time.Duration
	maxWait      time.Duration
	batchTimeout time.Duration

	log   Logger
	hooks Hooks
	clock Clock

	mu       sync.Mutex
	pending  map[string]*pendingEntry
	order    []string
	requests int
	first    time.Time
	timer    Timer
	seq      uint64 // invalidates timers that fire after a reschedule
	closed   bool
	inflight sync.WaitGroup
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Resolver == nil {
		return nil, fmt.Errorf("%w: coordinator resolver is required", ErrNotConfigured)
	}
	c := &Coordinator{
		resolver:     opts.Resolver,
		debounce:     coalesce(opts.Debounce, defaultDebounce),
		maxWait:      coalesce(opts.MaxWait, defaultMaxWait),
		batchTimeout: coalesce(opts.BatchTimeout, defaultBatchTimeout),
		log:          coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:        coalesce[Hooks](opts.Hooks, NopHooks{}),
		clock:        coalesce[Clock](opts.Clock, SystemClock),
		pending:      make(map[string]*pendingEntry),
	}
	if c.maxWait < c.debounce {
		c.maxWait = c.debounce
	}
	return c, nil
}

// Submit queues req and (re)starts the debounce window. A later submit for a
// pending id replaces its display name and adds h to the same resolution.
func (c *Coordinator) Submit(req Request, h Handle) error {
	if req.EntityID == "" {
		return errEmptyID
	}
	if h == nil {
		return fmt.Errorf("%w: nil handle", ErrNotConfigured)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if len(c.pending) == 0 {
		c.first = c.clock.Now()
	}
	pe, ok := c.pending[req.EntityID]
	if !ok {
		pe = &pendingEntry{req: req}
		c.pending[req.EntityID] = pe
		c.order = append(c.order, req.EntityID)
	} else if req.DisplayName != "" {
		pe.req.DisplayName = req.DisplayName
	}
	pe.handles = append(pe.handles, h)
	c.requests++
	c.scheduleLocked()
	return nil
}

// Resolve submits req and waits for its delivery or ctx.
// Canceling ctx only abandons the wait; the batch still resolves and persists.
func (c *Coordinator) Resolve(ctx context.Context, req Request) (Result, error) {
	h := &chanHandle{ctx: ctx, ch: make(chan Delivery, 1)}
	if err := c.Submit(req, h); err != nil {
		return Result{}, err
	}
	select {
	case d := <-h.ch:
		return d.Result, d.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Pending reports the number of distinct ids waiting for dispatch.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush dispatches whatever is pending now, on the calling goroutine.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	b := c.takeLocked()
	c.mu.Unlock()
	c.dispatch(b)
}

// Close flushes pending requests and waits for in-flight batches or ctx.
// Submits after Close fail with ErrClosed.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	b := c.takeLocked()
	c.mu.Unlock()
	c.dispatch(b)

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) scheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	d := c.debounce
	if rem := c.first.Add(c.maxWait).Sub(c.clock.Now()); rem < d {
		d = rem
	}
	if d < 0 {
		d = 0
	}
	c.seq++
	seq := c.seq
	c.timer = c.clock.AfterFunc(d, func() { c.fire(seq) })
}

func (c *Coordinator) fire(seq uint64) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return
	}
	b := c.takeLocked()
	c.mu.Unlock()
	c.dispatch(b)
}

// takeLocked snapshots and clears the pending set. The caller must dispatch
// the returned batch.
func (c *Coordinator) takeLocked() batch {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
	b := batch{entries: make([]*pendingEntry, 0, len(c.order)), requests: c.requests}
	for _, id := range c.order {
		b.entries = append(b.entries, c.pending[id])
	}
	c.pending = make(map[string]*pendingEntry)
	c.order = nil
	c.requests = 0
	c.inflight.Add(1)
	return b
}

func (c *Coordinator) dispatch(b batch) {
	defer c.inflight.Done()
	if len(b.entries) == 0 {
		return
	}
	batchID := uuid.NewString()
	reqs := make([]Request, len(b.entries))
	for i, pe := range b.entries {
		reqs[i] = pe.req
	}
	c.hooks.BatchDispatched(batchID, len(reqs), b.requests)
	c.log.Debug("dispatching batch", Fields{"batch": batchID, "ids": len(reqs), "requests": b.requests})

	ctx, cancel := context.WithTimeout(context.Background(), c.batchTimeout)
	defer cancel()
	results, err := c.resolveBatch(ctx, reqs)
	if err != nil {
		c.log.Error("batch resolution failed", Fields{"batch": batchID, "ids": len(reqs), "err": err})
	}

	for _, pe := range b.entries {
		d := Delivery{EntityID: pe.req.EntityID}
		switch res, ok := results[pe.req.EntityID]; {
		case err != nil:
			d.Err = fmt.Errorf("%w: %w", ErrNoData, err)
		case !ok:
			d.Err = ErrNoData
		default:
			d.Result, d.Err = res, res.Err
		}
		for _, h := range pe.handles {
			if !h.Alive() {
				c.hooks.DeliveryDropped(d.EntityID)
				c.log.Debug("requester gone; result kept in store only", Fields{"batch": batchID, "entity": d.EntityID})
				continue
			}
			h.Deliver(d)
		}
	}
}

// resolveBatch turns a panicking resolver into a batch failure so one bad
// batch cannot take the process down.
func (c *Coordinator) resolveBatch(ctx context.Context, reqs []Request) (res map[string]Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("availcache: resolver panic: %v", p)
		}
	}()
	return c.resolver.ResolveBatch(ctx, reqs)
}

type chanHandle struct {
	ctx context.Context
	ch  chan Delivery
}

func (h *chanHandle) Alive() bool { return h.ctx.Err() == nil }

func (h *chanHandle) Deliver(d Delivery) {
	select {
	case h.ch <- d:
	default:
	}
}
