// Package logging wraps zap (via otelzap, so log records pick up the
// active trace/span IDs automatically) behind a small interface tailored
// to this system: structured key/value fields, a context-aware call form,
// and an Audit level for the record-of-delivery events operators grep for.
package logging

import (
	"context"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Logger is the structured logger threaded through every component.
type Logger struct {
	base *otelzap.Logger
}

// New builds a Logger. development toggles a human-readable console
// encoder (for local runs) versus JSON (for production).
func New(development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{base: otelzap.New(zl)}, nil
}

func fields(kv []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}

// Info logs at info level, attaching ctx's active span if present.
func (l *Logger) Info(ctx context.Context, msg string, kv ...interface{}) {
	l.base.Ctx(ctx).Info(msg, fields(kv)...)
}

// Error logs at error level, attaching ctx's active span if present.
func (l *Logger) Error(ctx context.Context, msg string, kv ...interface{}) {
	l.base.Ctx(ctx).Error(msg, fields(kv)...)
}

// Warn logs at warn level, attaching ctx's active span if present.
func (l *Logger) Warn(ctx context.Context, msg string, kv ...interface{}) {
	l.base.Ctx(ctx).Warn(msg, fields(kv)...)
}

// Audit logs a record-of-delivery event: a message was scheduled, sent,
// failed terminally, or dead-lettered. These are the events an operator
// reconciling a user complaint ("I never got my birthday message") greps
// for, so they're tagged distinctly from ordinary operational info logs.
func (l *Logger) Audit(ctx context.Context, msg string, kv ...interface{}) {
	l.base.Ctx(ctx).Info(msg, append(fields(kv), zap.Bool("audit", true))...)
}

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
