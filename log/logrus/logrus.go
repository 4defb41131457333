package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/availcache"
)

var _ availcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f availcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f availcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f availcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f availcache.Fields) { l.with(f).Error(msg) }

// with renders error values as strings; logrus' JSON formatter would otherwise
// print them as {}.
func (l LogrusLogger) with(f availcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			lf[k] = err.Error()
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
