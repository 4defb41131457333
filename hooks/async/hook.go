// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	    MissEvery:     100,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	eng, _ := availcache.New(availcache.Options{
//	    Backend: rb,
//	    Hooks:   hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/availcache"
)

// Hooks forwards events to inner on worker goroutines. Events are dropped,
// never blocked on, when the queue is full.
type Hooks struct {
	inner   availcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ availcache.Hooks = (*Hooks)(nil)

func New(inner availcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events raised after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string) { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) ProviderFailed(p string, n int, err error) {
	h.try(func() { h.inner.ProviderFailed(p, n, err) })
}
func (h *Hooks) ProviderMiss(p string, n int) { h.try(func() { h.inner.ProviderMiss(p, n) }) }
func (h *Hooks) Resolved(s availcache.Source, fromCache bool) {
	h.try(func() { h.inner.Resolved(s, fromCache) })
}
func (h *Hooks) PersistFailed(id string, err error) {
	h.try(func() { h.inner.PersistFailed(id, err) })
}
func (h *Hooks) BatchDispatched(id string, size, requests int) {
	h.try(func() { h.inner.BatchDispatched(id, size, requests) })
}
func (h *Hooks) DeliveryDropped(id string) { h.try(func() { h.inner.DeliveryDropped(id) }) }
