// zenohd is a daemon that opens a zenoh session over a configured link,
// drives its background reader, and exposes a Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gabrik/zenoh-pico-go/internal/config"
	"github.com/gabrik/zenoh-pico-go/internal/link"
	zenohmetrics "github.com/gabrik/zenoh-pico-go/internal/metrics"
	appversion "github.com/gabrik/zenoh-pico-go/internal/version"
	"github.com/gabrik/zenoh-pico-go/zenoh"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("zenohd starting",
		slog.String("version", appversion.Version),
		slog.String("link_network", cfg.Link.Network),
		slog.String("link_addr", cfg.Link.Addr),
		slog.Bool("link_listen", cfg.Link.Listen),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := zenohmetrics.NewCollector(reg)

	if err := runServers(cfg, collector, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("zenohd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("zenohd stopped")
	return 0
}

// runServers opens the link, drives the session's background reader, and
// serves the metrics endpoint, all under an errgroup with a signal-aware
// context for graceful shutdown.
func runServers(
	cfg *config.Config,
	collector *zenohmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	var sessHolder atomic.Pointer[zenoh.Session]
	g.Go(func() error {
		return runSession(gCtx, cfg, collector, logger, &sessHolder)
	})

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	startSIGHUPReload(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, &sessHolder, logger, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runSession opens the configured link, opens a session over it, publishes
// the session pointer to sessHolder so gracefulShutdown can close it, and
// blocks in the session's background reader until ctx is canceled or the
// link errs.
func runSession(
	ctx context.Context,
	cfg *config.Config,
	collector *zenohmetrics.Collector,
	logger *slog.Logger,
	sessHolder *atomic.Pointer[zenoh.Session],
) error {
	l, err := openLink(ctx, cfg.Link, logger)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}

	sess := zenoh.Open(l, cfg.Session, logger)
	sess.SetMetrics(collector)
	sessHolder.Store(sess)

	logger.Info("session opened", slog.String("peer", cfg.Link.Addr))
	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("session reader: %w", err)
	}
	return nil
}

// openLink establishes the configured transport: Listen accepts a single
// inbound peer connection, otherwise it dials out.
func openLink(ctx context.Context, cfg config.LinkConfig, logger *slog.Logger) (link.Link, error) {
	var conn net.Conn

	if cfg.Listen {
		lc := net.ListenConfig{}
		ln, err := lc.Listen(ctx, cfg.Network, cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s %s: %w", cfg.Network, cfg.Addr, err)
		}
		logger.Info("waiting for peer connection",
			slog.String("network", cfg.Network),
			slog.String("addr", cfg.Addr),
		)
		conn, err = ln.Accept()
		if cerr := ln.Close(); cerr != nil {
			logger.Warn("failed to close listener", slog.String("error", cerr.Error()))
		}
		if err != nil {
			return nil, fmt.Errorf("accept on %s: %w", cfg.Addr, err)
		}
	} else {
		dialer := net.Dialer{}
		var err error
		conn, err = dialer.DialContext(ctx, cfg.Network, cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s %s: %w", cfg.Network, cfg.Addr, err)
		}
	}

	if cfg.Network == "udp" {
		return link.NewUDPLink(conn), nil
	}
	return link.NewTCPLink(conn), nil
}

// startSIGHUPReload registers the SIGHUP-triggered log-level reload
// goroutine. Unlike a daemon with declarative session reconciliation,
// reload here has nothing else to re-derive from config: the link and
// session are fixed for the process lifetime.
func startSIGHUPReload(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				reloadLogLevel(configPath, logLevel, logger)
			}
		}
	})
}

func reloadLogLevel(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// gracefulShutdown closes the session's link (unblocking its background
// reader) and shuts down the metrics server within shutdownTimeout.
func gracefulShutdown(
	ctx context.Context,
	sessHolder *atomic.Pointer[zenoh.Session],
	logger *slog.Logger,
	metricsSrv *http.Server,
) error {
	logger.Info("initiating graceful shutdown")

	if sess := sessHolder.Load(); sess != nil {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to close session link", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// listenAndServe creates a TCP listener via ListenConfig and serves HTTP
// requests until the server is shut down.
func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
