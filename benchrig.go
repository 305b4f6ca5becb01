package benchrig

import (
	"context"
	"net/http"
	"time"

	cfg "github.com/benchrig/benchrig/internal/config"
	"github.com/benchrig/benchrig/internal/health"
	"github.com/benchrig/benchrig/internal/manager"
	"github.com/benchrig/benchrig/internal/metrics"
	iapi "github.com/benchrig/benchrig/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type ServiceKind = manager.ServiceKind

type URLs = manager.URLs

type HealthStatus = health.Status

type HealthStats = health.Stats

type HealthEvent = health.Event

const (
	KindAgent   = manager.KindAgent
	KindSandbox = manager.KindSandbox
)

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.

type Manager struct {
	inner *manager.Manager
	mon   *health.Monitor
}

// New builds a Manager with an attached health monitor configured from cfg.
func New(c Config) *Manager {
	m := &Manager{
		inner: manager.New(c),
		mon:   health.NewMonitor(c.HealthCheckInterval, c.HealthCheckTimeout),
	}
	m.inner.AttachMonitor(m.mon)
	return m
}

func (m *Manager) EnsureDependencies(ctx context.Context) (URLs, error) {
	return m.inner.EnsureDependencies(ctx)
}
func (m *Manager) URLs() URLs                            { return m.inner.URLs() }
func (m *Manager) HealthStatus() map[string]HealthStatus { return m.inner.HealthStatus() }
func (m *Manager) Healthy() bool                         { return m.inner.Healthy() }
func (m *Manager) Initialized() bool                     { return m.inner.Initialized() }
func (m *Manager) Restart(ctx context.Context, kind ServiceKind) error {
	return m.inner.Restart(ctx, kind)
}
func (m *Manager) Cleanup()      { m.inner.Cleanup() }
func (m *Manager) ForceCleanup() { m.inner.ForceCleanup() }

// Monitor facade

func (m *Manager) StartMonitoring() error { return m.mon.StartMonitoring() }
func (m *Manager) StopMonitoring() error  { return m.mon.StopMonitoring() }
func (m *Manager) IsMonitoring() bool     { return m.mon.IsMonitoring() }
func (m *Manager) Stats() map[string]HealthStats {
	return m.mon.AllStats()
}
func (m *Manager) NextEvent(timeout time.Duration) (HealthEvent, bool) {
	return m.mon.NextEvent(timeout)
}
func (m *Manager) TryNextEvent() (HealthEvent, bool) { return m.mon.TryNextEvent() }

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the observability API using
// the given manager.
func NewHTTPServer(addr, basePath string, m *Manager) *http.Server {
	return iapi.NewServer(addr, basePath, m.inner, m.mon)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
