// Package prom exports availcache events as Prometheus metrics.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/availcache"
)

// Hooks counts engine events. All metrics live on the Registerer given to
// New, so several engines can run side by side with their own registries.
type Hooks struct {
	selfHeal        *prometheus.CounterVec
	providerFailed  *prometheus.CounterVec
	providerMiss    *prometheus.CounterVec
	resolved        *prometheus.CounterVec
	persistFailed   prometheus.Counter
	batchSize       prometheus.Histogram
	batchRequests   prometheus.Histogram
	deliveryDropped prometheus.Counter
}

var _ availcache.Hooks = (*Hooks)(nil)

// New registers the metrics on reg. A nil reg gets a fresh private registry.
func New(namespace string, reg prometheus.Registerer) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "self_heal_total",
			Help:      "Stored entries deleted because they could not be decoded.",
		}, []string{"reason"}),
		providerFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failed_ids_total",
			Help:      "Entity ids whose provider lookup failed transiently.",
		}, []string{"provider"}),
		providerMiss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_miss_ids_total",
			Help:      "Entity ids a provider answered as not found.",
		}, []string{"provider"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolved_total",
			Help:      "Resolutions by producing tier.",
		}, []string{"source", "from_cache"}),
		persistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failed_total",
			Help:      "Resolved entries that could not be written to the store.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_ids",
			Help:      "Distinct entity ids per dispatched batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		batchRequests: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_requests",
			Help:      "Submitted requests coalesced into one batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		deliveryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_dropped_total",
			Help:      "Results not delivered because the requester went away.",
		}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.providerFailed, h.providerMiss, h.resolved,
		h.persistFailed, h.batchSize, h.batchRequests, h.deliveryDropped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_ string, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }

func (h *Hooks) ProviderFailed(provider string, n int, _ error) {
	h.providerFailed.WithLabelValues(provider).Add(float64(n))
}

func (h *Hooks) ProviderMiss(provider string, n int) {
	h.providerMiss.WithLabelValues(provider).Add(float64(n))
}

func (h *Hooks) Resolved(source availcache.Source, fromCache bool) {
	h.resolved.WithLabelValues(string(source), strconv.FormatBool(fromCache)).Inc()
}

func (h *Hooks) PersistFailed(string, error) { h.persistFailed.Inc() }

func (h *Hooks) BatchDispatched(_ string, size, requests int) {
	h.batchSize.Observe(float64(size))
	h.batchRequests.Observe(float64(requests))
}

func (h *Hooks) DeliveryDropped(string) { h.deliveryDropped.Inc() }
