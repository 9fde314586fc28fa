// Package scraperd runs a fixed pipeline of scraper stages on a schedule and
// publishes progress to a JSON status artifact that external tools poll.
package scraperd

import (
	"log/slog"
	"net/http"
	"time"

	cfg "github.com/DenDanskeSamler/scraperd/internal/config"
	"github.com/DenDanskeSamler/scraperd/internal/daemon"
	"github.com/DenDanskeSamler/scraperd/internal/history"
	"github.com/DenDanskeSamler/scraperd/internal/history/factory"
	"github.com/DenDanskeSamler/scraperd/internal/metrics"
	iapi "github.com/DenDanskeSamler/scraperd/internal/server"
	"github.com/DenDanskeSamler/scraperd/internal/stage"
	"github.com/DenDanskeSamler/scraperd/internal/status"
	itls "github.com/DenDanskeSamler/scraperd/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type StageSpec = stage.Spec

type StageResult = stage.Result

type Status = status.Document

type StageStatus = status.StageResult

type Config = cfg.Config

type ServerConfig = cfg.ServerConfig

type TLSConfig = cfg.TLSConfig

type HistoryConfig = cfg.HistoryConfig

type HistorySink = history.Sink

// Daemon is a thin facade over the internal orchestration loop.
// It provides a stable public API for embedding.

type Daemon struct{ inner *daemon.Daemon }

// New builds a daemon from resolved configuration. The history sink may be
// nil to disable the audit trail.
func New(c *Config, lg *slog.Logger, sink HistorySink) (*Daemon, error) {
	d, err := daemon.New(c, lg, sink)
	if err != nil {
		return nil, err
	}
	return &Daemon{inner: d}, nil
}

// Run blocks until RequestShutdown is called.
func (d *Daemon) Run() error { return d.inner.Run() }

// RunOnce executes a single cycle and returns.
func (d *Daemon) RunOnce() error { return d.inner.RunOnce() }

func (d *Daemon) RequestShutdown()        { d.inner.RequestShutdown() }
func (d *Daemon) ShutdownRequested() bool { return d.inner.ShutdownRequested() }
func (d *Daemon) StatusFile() string      { return d.inner.StatusFile() }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// LoadStatus reads a published status artifact from disk.
func LoadStatus(path string) (Status, error) { return status.Load(path) }

// NewHistorySinkFromDSN builds a history sink from a DSN such as
// "sqlite:///var/lib/scraperd/history.db" or "postgres://...".
func NewHistorySinkFromDSN(dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// NewStatusServer starts the read-only HTTP status API.
func NewStatusServer(sc ServerConfig, statusPath string, withMetrics bool) (*http.Server, error) {
	return iapi.New(sc, statusPath, withMetrics)
}

// TLS presets for the status server, for embedders that do not go through
// the TOML config file.

// DevTLSConfig returns a server TLS config that self-signs into certDir on
// first use.
func DevTLSConfig(certDir string) *TLSConfig { return itls.Default.Development(certDir) }

// ProductionTLSConfig returns a server TLS config using operator-provided
// certificates.
func ProductionTLSConfig(certFile, keyFile string) *TLSConfig {
	return itls.Default.Production(certFile, keyFile)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
