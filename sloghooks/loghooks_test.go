package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRedactsKeys(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.SelfHeal("availcache:secret-id", "corrupt")
	h.PersistFailed("secret-id", errors.New("readonly"))

	out := buf.String()
	if strings.Contains(out, "secret-id") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "availcache.self_heal") || !strings.Contains(out, "reason=corrupt") {
		t.Fatalf("self heal not logged: %s", out)
	}
	if !strings.Contains(out, "err=readonly") {
		t.Fatalf("persist failure not logged: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{Redact: func(s string) string { return "<" + s + ">" }})
	h.DeliveryDropped("42")
	if !strings.Contains(buf.String(), "entity=<42>") {
		t.Fatalf("custom redactor ignored: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{MissEvery: 3})
	for i := 0; i < 9; i++ {
		h.ProviderMiss("wikidata", 1)
	}
	if n := strings.Count(buf.String(), "availcache.provider_miss"); n != 3 {
		t.Fatalf("sampled lines = %d, want 3", n)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.SelfHeal("k", "corrupt")
	h.ProviderFailed("p", 1, errors.New("x"))
	h.BatchDispatched("b", 1, 1)
}
