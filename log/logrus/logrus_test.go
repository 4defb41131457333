package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/availcache"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Error("persist resolved entry", availcache.Fields{"entity": "1", "err": errors.New("readonly")})
	l.Debug("plain", nil)

	if len(hook.Entries) != 2 {
		t.Fatalf("entries = %d", len(hook.Entries))
	}
	e := hook.Entries[0]
	if e.Level != logrus.ErrorLevel || e.Message != "persist resolved entry" {
		t.Fatalf("entry = %+v", e)
	}
	// errors are flattened so JSON output stays readable
	if e.Data["err"] != "readonly" || e.Data["entity"] != "1" {
		t.Fatalf("data = %v", e.Data)
	}
}
