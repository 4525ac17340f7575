// Package logging configures the process-wide zerolog logger.
//
// Services log through zerolog.Ctx(ctx); the HTTP middleware attaches a
// request-scoped logger carrying req_id, and Init installs the global logger
// as the fallback for contexts without one.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// Init replaces the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", "field-route-service").Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
}

// WithRequestID returns ctx carrying a child logger tagged with reqID.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := zerolog.Ctx(ctx).With().Str("req_id", reqID).Logger()
	return l.WithContext(ctx)
}
