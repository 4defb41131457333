package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/availcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	MissEvery     uint64
	ResolvedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	missCtr     atomic.Uint64
	resolvedCtr atomic.Uint64
}

var _ availcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("availcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderFailed(provider string, n int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("availcache.provider_failed",
		"provider", provider,
		"ids", n,
		"err", err)
}

func (h *Hooks) ProviderMiss(provider string, n int) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("availcache.provider_miss",
		"provider", provider,
		"ids", n)
}

func (h *Hooks) Resolved(source availcache.Source, fromCache bool) {
	if h.l == nil || !sample(h.opts.ResolvedEvery, &h.resolvedCtr) {
		return
	}
	h.l.Debug("availcache.resolved",
		"source", string(source),
		"from_cache", fromCache)
}

func (h *Hooks) PersistFailed(entityID string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("availcache.persist_failed",
		"entity", h.redact(entityID),
		"err", err)
}

func (h *Hooks) BatchDispatched(batchID string, size, requests int) {
	if h.l == nil {
		return
	}
	h.l.Debug("availcache.batch_dispatched",
		"batch", batchID,
		"ids", size,
		"requests", requests)
}

func (h *Hooks) DeliveryDropped(entityID string) {
	if h.l == nil {
		return
	}
	h.l.Debug("availcache.delivery_dropped",
		"entity", h.redact(entityID))
}
