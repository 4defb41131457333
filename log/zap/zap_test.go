package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/availcache"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("dispatching batch", availcache.Fields{"ids": 3})
	l.Warn("provider lookup failed", availcache.Fields{"provider": "wikidata", "err": errors.New("timeout")})
	l.Info("no fields", nil)

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	warn := entries[1]
	if warn.Level != zapcore.WarnLevel || warn.Message != "provider lookup failed" {
		t.Fatalf("warn = %+v", warn)
	}
	fields := warn.ContextMap()
	if fields["provider"] != "wikidata" || fields["err"] != "timeout" {
		t.Fatalf("fields = %v", fields)
	}
	if got := entries[0].ContextMap()["ids"]; got != int64(3) {
		t.Fatalf("ids = %#v", got)
	}
}
