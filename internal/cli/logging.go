package cli

import (
	"fmt"
	"io"
	stdslog "log/slog"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/availcache"
	"github.com/unkn0wn-root/availcache/config"
	logruslog "github.com/unkn0wn-root/availcache/log/logrus"
	sloglog "github.com/unkn0wn-root/availcache/log/slog"
	zaplog "github.com/unkn0wn-root/availcache/log/zap"
)

// newLogger builds the engine logger described by cfg, writing to w. The
// returned func flushes buffered output.
func newLogger(cfg config.Log, w io.Writer) (availcache.Logger, func(), error) {
	switch cfg.Library {
	case "logrus":
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		if cfg.Format == "json" {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, func() {}, nil

	case "slog":
		l, err := newSlog(cfg, w)
		if err != nil {
			return nil, nil, err
		}
		return sloglog.Logger{L: l}, func() {}, nil

	case "", "zap":
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		enc := zap.NewDevelopmentEncoderConfig()
		newEnc := zapcore.NewConsoleEncoder
		if cfg.Format == "json" {
			enc = zap.NewProductionEncoderConfig()
			newEnc = zapcore.NewJSONEncoder
		}
		core := zapcore.NewCore(newEnc(enc), zapcore.AddSync(w), lvl)
		l := zap.New(core)
		return zaplog.ZapLogger{L: l}, func() { _ = l.Sync() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown log library %q", cfg.Library)
	}
}

func newSlog(cfg config.Log, w io.Writer) (*stdslog.Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	opts := &stdslog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return stdslog.New(stdslog.NewJSONHandler(w, opts)), nil
	}
	return stdslog.New(stdslog.NewTextHandler(w, opts)), nil
}
