package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Standard attribute keys, kept protocol-agnostic in spirit of
// marmos91-dittofs's internal/logger key catalog, trimmed to what this
// daemon's control/data/transfer/site paths actually emit.
const (
	KeySessionID = "session_id"
	KeyClientIP  = "client_ip"
	KeyUser      = "user"
	KeyCommand   = "command"
	KeyPath      = "path"
	KeyBytes     = "bytes"
	KeyDuration  = "duration_ms"
	KeyError     = "error"
	KeySection   = "section"
)

var base = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Configure rebuilds the package logger for the given format ("json" or
// "text") and level. Called once at startup from the command-line
// flags, before the config file is loaded.
func Configure(format, level string, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	base = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "warn":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Event logs msg at the given level, attaching the session context (if
// any is present on ctx) plus extra attrs. PASS arguments must never be
// passed as an attr — callers redact before calling this.
func Event(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	lc := FromContext(ctx)
	all := make([]any, 0, len(attrs)*2+10)
	if lc != nil {
		all = append(all,
			KeySessionID, lc.SessionID,
			KeyClientIP, lc.ClientIP,
		)
		if lc.Username != "" {
			all = append(all, KeyUser, lc.Username)
		}
		if lc.Command != "" {
			all = append(all, KeyCommand, lc.Command)
		}
		if lc.VirtualPath != "" {
			all = append(all, KeyPath, lc.VirtualPath)
		}
	}
	for _, a := range attrs {
		all = append(all, a.Key, a.Value.Any())
	}
	base.Log(ctx, level, msg, all...)
}

func Info(ctx context.Context, msg string, attrs ...slog.Attr)  { Event(ctx, slog.LevelInfo, msg, attrs...) }
func Warn(ctx context.Context, msg string, attrs ...slog.Attr)  { Event(ctx, slog.LevelWarn, msg, attrs...) }
func Error(ctx context.Context, msg string, attrs ...slog.Attr) { Event(ctx, slog.LevelError, msg, attrs...) }
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) { Event(ctx, slog.LevelDebug, msg, attrs...) }
