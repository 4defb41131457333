package prom

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/availcache"
)

func TestCounters(t *testing.T) {
	h, err := New("availcache", nil)
	if err != nil {
		t.Fatal(err)
	}
	h.SelfHeal("availcache:1", "corrupt")
	h.SelfHeal("availcache:2", "corrupt")
	h.ProviderFailed("wikidata", 3, errors.New("timeout"))
	h.ProviderMiss("wikidata", 2)
	h.Resolved(availcache.SourceFallback, false)
	h.Resolved(availcache.SourceFallback, true)
	h.Resolved(availcache.SourceFallback, true)
	h.PersistFailed("1", errors.New("readonly"))
	h.DeliveryDropped("1")

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"self_heal", h.selfHeal.WithLabelValues("corrupt"), 2},
		{"provider_failed", h.providerFailed.WithLabelValues("wikidata"), 3},
		{"provider_miss", h.providerMiss.WithLabelValues("wikidata"), 2},
		{"resolved cached", h.resolved.WithLabelValues("fallback", "true"), 2},
		{"resolved fresh", h.resolved.WithLabelValues("fallback", "false"), 1},
		{"persist_failed", h.persistFailed, 1},
		{"delivery_dropped", h.deliveryDropped, 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBatchHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New("ac", reg)
	if err != nil {
		t.Fatal(err)
	}
	h.BatchDispatched("b1", 4, 9)
	h.BatchDispatched("b2", 1, 1)

	if n := testutil.CollectAndCount(h.batchSize); n != 1 {
		t.Fatalf("batch_ids series = %d", n)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "ac_batch_requests" {
			continue
		}
		hist := mf.GetMetric()[0].GetHistogram()
		if hist.GetSampleCount() != 2 || hist.GetSampleSum() != 10 {
			t.Fatalf("batch_requests count=%d sum=%v", hist.GetSampleCount(), hist.GetSampleSum())
		}
		return
	}
	t.Fatal("ac_batch_requests not gathered")
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New("dup", reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New("dup", reg); err == nil {
		t.Fatal("expected AlreadyRegistered error")
	}
}
