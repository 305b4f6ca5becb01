package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benchrig/benchrig/internal/health"
	"github.com/benchrig/benchrig/internal/manager"
	"github.com/benchrig/benchrig/internal/metrics"
)

// Router exposes read-only observability endpoints over the manager and an
// optional monitor.
// Endpoints:
//   GET {basePath}/status   registered services and their last-known health
//   GET {basePath}/urls     current dependency URL bundle
//   GET {basePath}/health   all-of health predicate, 503 when degraded
//   GET {basePath}/stats    per-service probe statistics
//   GET /metrics            Prometheus exposition
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *manager.Manager
	mon      *health.Monitor
	basePath string
}

// NewRouter constructs a Router. mon may be nil when continuous monitoring
// is disabled.
func NewRouter(mgr *manager.Manager, mon *health.Monitor, basePath string) *Router {
	return &Router{mgr: mgr, mon: mon, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/urls", r.handleURLs)
	group.GET("/health", r.handleHealth)
	group.GET("/stats", r.handleStats)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *manager.Manager, mon *health.Monitor) *http.Server {
	r := NewRouter(mgr, mon, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type statusResp struct {
	Initialized bool                                    `json:"initialized"`
	Services    map[manager.ServiceKind]manager.Service `json:"services"`
	Health      map[string]health.Status                `json:"health"`
}

type healthResp struct {
	Healthy   bool `json:"healthy"`
	Services  int  `json:"services"`
	Unhealthy int  `json:"unhealthy"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResp{
		Initialized: r.mgr.Initialized(),
		Services:    r.mgr.Services(),
		Health:      r.mgr.HealthStatus(),
	})
}

func (r *Router) handleURLs(c *gin.Context) {
	c.JSON(http.StatusOK, r.mgr.URLs())
}

func (r *Router) handleHealth(c *gin.Context) {
	statuses := r.mgr.HealthStatus()
	unhealthy := 0
	for _, st := range statuses {
		if !st.Healthy() {
			unhealthy++
		}
	}
	resp := healthResp{
		Healthy:   r.mgr.Healthy(),
		Services:  len(statuses),
		Unhealthy: unhealthy,
	}
	code := http.StatusOK
	if !resp.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (r *Router) handleStats(c *gin.Context) {
	if r.mon == nil {
		c.JSON(http.StatusOK, map[string]health.Stats{})
		return
	}
	c.JSON(http.StatusOK, r.mon.AllStats())
}
