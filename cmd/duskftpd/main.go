// Command duskftpd is the process entry point: flag parsing, config
// loading, accounts store and virtual filesystem wiring, and the
// signal-driven graceful shutdown sequence, grounded on
// marmos91-dittofs's cmd/dittofs/main.go (load config -> init logging ->
// build server -> serve in background -> select on signal/server-error).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"duskftpd/internal/accounts"
	"duskftpd/internal/config"
	"duskftpd/internal/ftpd"
	"duskftpd/internal/logging"
	"duskftpd/internal/metrics"
)

func main() {
	configPath := flag.String("config", "/etc/duskftpd/duskftpd.conf", "path to the daemon's configuration file")
	metricsPort := flag.Int("metrics-port", 9000, "port for the /healthz and /metrics HTTP endpoints")
	logFormat := flag.String("log-format", "text", "log output format: text or json")
	logLevel := flag.String("log-level", "info", "minimum log level: debug, info, warn, error")
	flag.Parse()

	logging.Configure(*logFormat, *logLevel, os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := accounts.Open(filepath.Join(cfg.DataPath, "accounts"))
	if err != nil {
		log.Fatalf("open accounts store: %v", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var tlsConfig *tls.Config
	if cfg.TLSCertificate != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertificate, cfg.TLSCertificate)
		if err != nil {
			log.Fatalf("load tls certificate: %v", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	srv := ftpd.NewServer(cfg, store, tlsConfig, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx = logging.WithContext(ctx, logging.NewSessionContext("-", "-"))

	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatalf("listen on port %d: %v", cfg.Port, err)
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	go store.WatchChanges(watchCtx, 2*time.Second)

	healthy := func() bool { return true }
	httpSrv := metrics.NewHTTPServer(*metricsPort, reg, healthy)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, listener)
	}()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpSrv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logging.Info(ctx, "duskftpd listening", slog.Int("port", cfg.Port), slog.Int("metrics_port", *metricsPort))

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloaded, err := config.Reload(*configPath, srv.Config())
				if err != nil {
					logging.Error(ctx, "config reload failed", slog.String(logging.KeyError, err.Error()))
					continue
				}
				srv.SetConfig(reloaded)
				logging.Info(ctx, "config reloaded", slog.Int("version", reloaded.Version))
				continue
			}
			logging.Info(ctx, "shutdown signal received")
			cancel()
			<-serveErr
			return
		case err := <-serveErr:
			if err != nil {
				logging.Error(ctx, "server error", slog.String(logging.KeyError, err.Error()))
				os.Exit(1)
			}
			return
		case err := <-httpErr:
			if err != nil {
				logging.Warn(ctx, "metrics server error", slog.String(logging.KeyError, err.Error()))
			}
		}
	}
}
