package ftpd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"duskftpd/internal/accounts"
	"duskftpd/internal/config"
	"duskftpd/internal/logging"
	"duskftpd/internal/metrics"
	"duskftpd/internal/site"
	"duskftpd/internal/vfs"
)

// maxPassiveBindAttempts bounds PASV's retry loop when a candidate port
// is already in use, per spec.md section 4.F ("allocate a listener...
// with retry on bind failure (bounded attempts)").
const maxPassiveBindAttempts = 16

// Server owns the shared, cross-session state spec.md section 5 scopes
// tightly: the swappable config snapshot, the passive-port round-robin
// cursor (a single atomic increment), the accounts repository, the
// virtual filesystem root, and the optional TLS material for AUTH TLS.
// Per-session state never lives here.
type Server struct {
	cfgPtr atomic.Pointer[config.Snapshot]

	Accounts  *accounts.Store
	FS        *vfs.FS
	TLSConfig *tls.Config
	Metrics   *metrics.Metrics

	pasvCursor atomic.Uint32

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
}

// NewServer wires a Server from its process-boundary inputs (spec.md
// section 6): a loaded config snapshot, an accounts repository handle,
// and (optionally) a TLS context factory for AUTH TLS/PROT P.
func NewServer(cfg *config.Snapshot, store *accounts.Store, tlsConfig *tls.Config, m *metrics.Metrics) *Server {
	srv := &Server{
		Accounts:  store,
		FS:        vfs.New(cfg.SitePath),
		TLSConfig: tlsConfig,
		Metrics:   m,
		sessions:  map[string]*Session{},
	}
	srv.cfgPtr.Store(cfg)
	return srv
}

// registerSession adds sess to the live-sessions registry SITE WHO reads.
func (srv *Server) registerSession(sess *Session) {
	srv.sessionsMu.Lock()
	srv.sessions[sess.ID] = sess
	srv.sessionsMu.Unlock()
}

// unregisterSession removes sess from the live-sessions registry.
func (srv *Server) unregisterSession(sess *Session) {
	srv.sessionsMu.Lock()
	delete(srv.sessions, sess.ID)
	srv.sessionsMu.Unlock()
}

// listSessions snapshots the currently connected sessions for SITE WHO,
// per spec.md section 4.I.
func (srv *Server) listSessions() []site.SessionSummary {
	srv.sessionsMu.RLock()
	defer srv.sessionsMu.RUnlock()
	out := make([]site.SessionSummary, 0, len(srv.sessions))
	for _, sess := range srv.sessions {
		sess.mu.Lock()
		username := "-"
		if sess.principal != nil {
			username = sess.principal.Name
		}
		out = append(out, site.SessionSummary{
			Username: username,
			ClientIP: sess.clientIP,
			Command:  sess.lastCommand,
		})
		sess.mu.Unlock()
	}
	return out
}

// Config returns the current configuration snapshot. Sessions capture
// this once, at accept time and at each command boundary, and hold the
// *config.Snapshot pointer they captured rather than re-reading this
// method mid-command — satisfying spec.md section 3's invariant that an
// in-flight session's snapshot only advances between commands.
func (srv *Server) Config() *config.Snapshot {
	return srv.cfgPtr.Load()
}

// SetConfig atomically swaps in a freshly reloaded snapshot (the SIGHUP
// reload in cmd/duskftpd). Sessions already mid-command keep running against the old
// pointer.
func (srv *Server) SetConfig(cfg *config.Snapshot) {
	srv.cfgPtr.Store(cfg)
}

// Serve accepts connections on listener until ctx is cancelled, handing
// each to its own goroutine per spec.md section 5's "one logical task
// per connected client" model.
func (srv *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		cfg := srv.Config()
		sess := newSession(srv, conn, cfg)
		if srv.Metrics != nil {
			srv.Metrics.ConnectionsTotal.Inc()
			srv.Metrics.ActiveSessions.Inc()
		}
		srv.registerSession(sess)
		go func() {
			defer func() {
				srv.unregisterSession(sess)
				if srv.Metrics != nil {
					srv.Metrics.ActiveSessions.Dec()
				}
			}()
			sess.serve()
		}()
	}
}

// allocatePassiveListener binds a listener on the next port in the
// configured pasv_ports ranges, advancing the shared round-robin cursor
// with a single atomic increment and retrying a bounded number of times
// on bind failure, per spec.md sections 4.F and 5.
func (srv *Server) allocatePassiveListener() (net.Listener, int, error) {
	cfg := srv.Config()
	ports := flattenPortRanges(cfg.PasvPorts)
	if len(ports) == 0 {
		ln, err := net.Listen("tcp4", ":0")
		if err != nil {
			return nil, 0, err
		}
		_, portStr, _ := net.SplitHostPort(ln.Addr().String())
		var port int
		fmt.Sscanf(portStr, "%d", &port)
		return ln, port, nil
	}
	var lastErr error
	attempts := maxPassiveBindAttempts
	if len(ports)*2 < attempts {
		attempts = len(ports) * 2
	}
	for attempt := 0; attempt < attempts; attempt++ {
		idx := int(srv.pasvCursor.Add(1)-1) % len(ports)
		port := ports[idx]
		ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", port))
		if err == nil {
			return ln, port, nil
		}
		lastErr = err
		logging.Debug(context.Background(), "pasv bind attempt failed", slog.Int("port", port))
	}
	return nil, 0, fmt.Errorf("no available passive port after %d attempts: %w", attempts, lastErr)
}

func flattenPortRanges(ranges []config.PortRange) []int {
	var out []int
	for _, r := range ranges {
		for p := r.Low; p <= r.High; p++ {
			out = append(out, p)
		}
	}
	return out
}
