// Package logging provides request-scoped structured logging built on
// log/slog, carried via context.Context the way marmos91-dittofs's
// internal/logger package does for its NFS sessions.
package logging

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// SessionContext holds the fields attached to every log line produced
// while handling one control connection.
type SessionContext struct {
	SessionID   string
	ClientIP    string
	Username    string // empty until PASS succeeds
	Command     string // last command processed
	VirtualPath string
	StartTime   time.Time
}

// WithContext returns a context carrying lc.
func WithContext(ctx context.Context, lc *SessionContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the SessionContext, or nil if absent.
func FromContext(ctx context.Context) *SessionContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*SessionContext)
	return lc
}

// NewSessionContext creates a SessionContext for a freshly accepted connection.
func NewSessionContext(sessionID, clientIP string) *SessionContext {
	return &SessionContext{SessionID: sessionID, ClientIP: clientIP, StartTime: time.Now()}
}

// Clone returns a shallow copy, so per-command mutation doesn't race
// with the connection-lifetime context held elsewhere.
func (lc *SessionContext) Clone() *SessionContext {
	if lc == nil {
		return nil
	}
	cp := *lc
	return &cp
}

// WithCommand returns a copy with Command/VirtualPath set.
func (lc *SessionContext) WithCommand(command, virtualPath string) *SessionContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Command = command
		clone.VirtualPath = virtualPath
	}
	return clone
}

// WithUser returns a copy with Username set.
func (lc *SessionContext) WithUser(username string) *SessionContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Username = username
	}
	return clone
}

// DurationMs returns the time elapsed since StartTime, in milliseconds.
func (lc *SessionContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
