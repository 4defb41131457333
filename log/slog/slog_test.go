package slog

import (
	"bytes"
	"errors"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/availcache"
)

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("suppressed", availcache.Fields{"x": 1})
	l.Warn("provider lookup failed", availcache.Fields{"provider": "wikidata", "err": errors.New("timeout")})

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("debug logged at info level: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "err=timeout") || !strings.Contains(out, "provider=wikidata") {
		t.Fatalf("unexpected output: %s", out)
	}
	// attributes are sorted by key
	if strings.Index(out, "err=") > strings.Index(out, "provider=") {
		t.Fatalf("attributes not sorted: %s", out)
	}
}
