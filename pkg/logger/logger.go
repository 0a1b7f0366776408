// Package logger builds the zap loggers used across the service.
package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger writing to stderr at level with the given format.
// Unknown formats fall back to json.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}

	var cfg zap.Config
	if format == FormatConsole {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

type ctxKey int

const idKey ctxKey = 0

// NewContextWithID returns a copy of ctx carrying a request id.
func NewContextWithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// IDFromContext returns the request id stored in ctx, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok
}

// FromContext returns l annotated with the request id of ctx when there is one.
func FromContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	if id, ok := IDFromContext(ctx); ok {
		return l.With(zap.String("request_id", id))
	}
	return l
}
