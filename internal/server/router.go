package server

import (
	"net/http"
	"os"
	"time"

	"github.com/DenDanskeSamler/scraperd/internal/config"
	"github.com/DenDanskeSamler/scraperd/internal/metrics"
	"github.com/DenDanskeSamler/scraperd/internal/status"
	itls "github.com/DenDanskeSamler/scraperd/internal/tls"
	"github.com/gin-gonic/gin"
)

// Router exposes the read-only status API. It serves the same artifact the
// daemon publishes, so responses always reflect the latest completed write.
// Endpoints:
//   GET {basePath}/status   current status document
//   GET {basePath}/healthz  liveness probe
//   GET /metrics            Prometheus exposition (when enabled)
//
// There are no control endpoints. The daemon is driven by its config file
// and signals only.
type Router struct {
	statusPath  string
	basePath    string
	withMetrics bool
}

// NewRouter constructs a Router serving the document at statusPath.
// Example basePath: "/api" results in /api/status and /api/healthz.
func NewRouter(statusPath, basePath string, withMetrics bool) *Router {
	return &Router{
		statusPath:  statusPath,
		basePath:    sanitizeBase(basePath),
		withMetrics: withMetrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	if r.withMetrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// New starts a standalone HTTP server for the status API on cfg.Listen.
// TLS is enabled when the configuration asks for it. The returned server is
// already serving; shut it down with http.Server.Shutdown or Close.
func New(cfg config.ServerConfig, statusPath string, withMetrics bool) (*http.Server, error) {
	r := NewRouter(statusPath, cfg.BasePath, withMetrics)
	tcfg, err := itls.SetupTLS(cfg)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r.Handler(),
		TLSConfig:         tcfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if tcfg != nil {
		go func() { _ = srv.ListenAndServeTLS("", "") }()
	} else {
		go func() { _ = srv.ListenAndServe() }()
	}
	return srv, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	doc, err := status.Load(r.statusPath)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "no status published yet"})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, doc)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
