// Package logging defines the structured-logging interface used across the
// gateway and its slog and zap implementations.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/zap"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "otp sent", "identity", id, "channel", ch)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// New builds the logger selected by backend ("zap" or "slog"), writing JSON
// to w.
func New(backend string, w io.Writer) (Logger, error) {
	switch backend {
	case "slog":
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, nil))), nil
	case "zap":
		return NewZapLogger(newZapJSON(w)), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

// Nop discards everything.
func Nop() Logger {
	return NewZapLogger(zap.NewNop())
}
