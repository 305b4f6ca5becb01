package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benchrig/benchrig/internal/binary"
	"github.com/benchrig/benchrig/internal/config"
	"github.com/benchrig/benchrig/internal/health"
	"github.com/benchrig/benchrig/internal/logger"
	"github.com/benchrig/benchrig/internal/proc"
)

const (
	// startupPoll is the sub-interval used while waiting for a fresh
	// process to pass its first health check.
	startupPoll = 100 * time.Millisecond
	// startStagger is the pause between consecutive service spawns.
	startStagger = 100 * time.Millisecond
)

// Manager owns the full dependency lifecycle: acquire binaries, spawn
// processes, wait for health, hand out service URLs and tear everything
// down again. Lifecycle operations are serialized; reads are concurrent.
type Manager struct {
	cfg     config.Config
	logCfg  logger.Config
	sup     *proc.Supervisor
	acq     *binary.Acquirer
	checker *health.Checker

	opMu sync.Mutex // serializes ensure/restart/cleanup

	mu          sync.RWMutex
	initialized bool
	services    map[ServiceKind]*Service
	urls        URLs
	monitor     *health.Monitor
}

// New builds a Manager from validated configuration.
func New(cfg config.Config) *Manager {
	logCfg := logger.Config{Dir: cfg.LogDir}
	return &Manager{
		cfg:    cfg,
		logCfg: logCfg,
		sup:    proc.NewSupervisor(logCfg),
		acq: binary.New(binary.Options{
			CacheDir:     cfg.CacheDir,
			DownloadBase: cfg.Sandbox.DownloadBase,
			Version:      cfg.Sandbox.Version,
			BuildCommand: cfg.Sandbox.BuildCommand,
			SourceDir:    cfg.Sandbox.SourceDir,
		}),
		checker:  health.NewChecker(cfg.HealthCheckTimeout),
		services: make(map[ServiceKind]*Service),
	}
}

// AttachMonitor registers every current and future service with mon so the
// background loop keeps probing them after startup.
func (m *Manager) AttachMonitor(mon *health.Monitor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitor = mon
	for kind := range m.services {
		_ = mon.AddService(health.CheckConfig{Service: kind.String(), Probe: m.probeFor(kind)})
	}
}

// EnsureDependencies brings up every required service in priority order and
// returns the URL bundle. It is idempotent: once all services are up, later
// calls return the cached bundle without spawning anything.
func (m *Manager) EnsureDependencies(ctx context.Context) (URLs, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	if m.initialized {
		urls := m.urls
		m.mu.RUnlock()
		return urls, nil
	}
	m.mu.RUnlock()

	// Fresh pass: start each service's log from a clean slate.
	for _, kind := range kindOrder {
		if err := m.logCfg.Truncate(kind.String()); err != nil {
			slog.Debug("Could not truncate service log", "service", kind, "error", err)
		}
	}

	for i, kind := range kindOrder {
		if i > 0 {
			select {
			case <-ctx.Done():
				return URLs{}, ctx.Err()
			case <-time.After(startStagger):
			}
		}
		if m.registered(kind) {
			continue
		}
		svc, err := m.startService(ctx, kind)
		if err != nil {
			return URLs{}, fmt.Errorf("ensure %s: %w", kind, err)
		}
		m.register(svc)
	}

	m.mu.Lock()
	m.urls = m.assembleURLsLocked()
	m.initialized = true
	urls := m.urls
	m.mu.Unlock()

	slog.Info("All dependencies ready",
		"agent_url", urls.AgentURL, "sandbox_rpc_url", urls.SandboxRPCURL)
	return urls, nil
}

// registered reports whether kind already has a usable registration, which
// lets a retried ensure pass skip services that came up before a failure.
func (m *Manager) registered(kind ServiceKind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[kind]
	if !ok {
		return false
	}
	return svc.Shared || (svc.guard != nil && svc.guard.Alive())
}

func (m *Manager) startService(ctx context.Context, kind ServiceKind) (*Service, error) {
	switch kind {
	case KindAgent:
		return m.startAgent(ctx)
	case KindSandbox:
		return m.startSandbox(ctx)
	default:
		return nil, fmt.Errorf("unknown service kind %q", kind)
	}
}

func (m *Manager) startAgent(ctx context.Context) (*Service, error) {
	port := m.cfg.Agent.Port
	if svc := m.findShared(KindAgent, m.cfg.Agent.ProcessName, port); svc != nil {
		return svc, nil
	}
	if proc.PortInUse(port) {
		return nil, &PortConflictError{Service: KindAgent, Port: port}
	}

	g, err := m.sup.Start(proc.Config{
		Name:            KindAgent.String(),
		Command:         m.cfg.Agent.Command,
		ShutdownTimeout: m.cfg.ShutdownTimeout,
	})
	if err != nil {
		return nil, err
	}

	urls := agentURLs(port)
	if err := m.waitStartup(ctx, KindAgent, m.checker.HTTPProbe(urls["api"]+"/health")); err != nil {
		// Left running for post-mortem log inspection.
		return nil, err
	}
	return &Service{
		Kind:      KindAgent,
		Port:      port,
		URLs:      urls,
		PID:       g.PID(),
		StartedAt: time.Now(),
		guard:     g,
	}, nil
}

func (m *Manager) startSandbox(ctx context.Context) (*Service, error) {
	port := m.cfg.Sandbox.Port
	if svc := m.findShared(KindSandbox, m.cfg.Sandbox.Binary, port); svc != nil {
		return svc, nil
	}
	if proc.PortInUse(port) {
		return nil, &PortConflictError{Service: KindSandbox, Port: port}
	}

	res, err := m.acq.Acquire(ctx, m.cfg.Sandbox.Binary)
	if err != nil {
		return nil, err
	}
	slog.Info("Sandbox binary resolved", "path", res.Path, "provenance", res.Provenance.String())

	g, err := m.sup.Start(proc.Config{
		Name:            KindSandbox.String(),
		Command:         res.Path,
		Args:            m.cfg.Sandbox.Args,
		ShutdownTimeout: m.cfg.ShutdownTimeout,
	})
	if err != nil {
		return nil, err
	}

	urls := sandboxURLs(port)
	if err := m.waitStartup(ctx, KindSandbox, m.checker.RPCProbe(urls["rpc"], "getHealth")); err != nil {
		return nil, err
	}
	return &Service{
		Kind:       KindSandbox,
		Port:       port,
		URLs:       urls,
		PID:        g.PID(),
		Provenance: res.Provenance.String(),
		StartedAt:  time.Now(),
		guard:      g,
	}, nil
}

// findShared returns a registration for an already-running same-named
// process when shared-instance reuse is enabled.
func (m *Manager) findShared(kind ServiceKind, processName string, port int) *Service {
	if !m.cfg.SharedInstances || processName == "" {
		return nil
	}
	pids, err := proc.FindProcessByName(processName)
	if err != nil || len(pids) == 0 {
		return nil
	}
	slog.Info("Reusing shared instance", "service", kind, "process", processName, "pid", pids[0])
	urls := agentURLs(port)
	if kind == KindSandbox {
		urls = sandboxURLs(port)
	}
	return &Service{
		Kind:      kind,
		Port:      port,
		URLs:      urls,
		Shared:    true,
		PID:       pids[0],
		StartedAt: time.Now(),
	}
}

// waitStartup polls the probe until it passes or StartupTimeout elapses.
func (m *Manager) waitStartup(ctx context.Context, kind ServiceKind, probe health.Probe) error {
	wctx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout)
	defer cancel()
	err := health.WaitHealthy(wctx, kind.String(), probe, startupPoll, m.cfg.HealthCheckTimeout)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &health.TimeoutError{Service: kind.String(), Timeout: m.cfg.StartupTimeout}
}

func (m *Manager) register(svc *Service) {
	m.mu.Lock()
	m.services[svc.Kind] = svc
	mon := m.monitor
	m.mu.Unlock()
	if mon != nil {
		_ = mon.AddService(health.CheckConfig{Service: svc.Kind.String(), Probe: m.probeFor(svc.Kind)})
	}
	slog.Info("Service registered", "service", svc.Kind, "port", svc.Port, "shared", svc.Shared)
}

func (m *Manager) probeFor(kind ServiceKind) health.Probe {
	switch kind {
	case KindSandbox:
		return m.checker.RPCProbe(sandboxURLs(m.cfg.Sandbox.Port)["rpc"], "getHealth")
	default:
		return m.checker.HTTPProbe(agentURLs(m.cfg.Agent.Port)["api"] + "/health")
	}
}

// Restart stops one service and starts it fresh, replacing its registration.
func (m *Manager) Restart(ctx context.Context, kind ServiceKind) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	svc, ok := m.services[kind]
	if ok {
		delete(m.services, kind)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("restart %s: service not registered", kind)
	}
	if svc.guard != nil {
		if err := svc.guard.Shutdown(); err != nil {
			slog.Error("Shutdown before restart failed", "service", kind, "error", err)
		}
	}

	fresh, err := m.startService(ctx, kind)
	if err != nil {
		return fmt.Errorf("restart %s: %w", kind, err)
	}
	m.register(fresh)

	m.mu.Lock()
	m.urls = m.assembleURLsLocked()
	m.mu.Unlock()
	return nil
}

// URLs returns the current address bundle, falling back to config-derived
// defaults for services that are not registered.
func (m *Manager) URLs() URLs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assembleURLsLocked()
}

func (m *Manager) assembleURLsLocked() URLs {
	out := URLs{
		AgentURL:      agentURLs(m.cfg.Agent.Port)["api"],
		SandboxRPCURL: sandboxURLs(m.cfg.Sandbox.Port)["rpc"],
		SandboxWSURL:  sandboxURLs(m.cfg.Sandbox.Port)["ws"],
	}
	if svc, ok := m.services[KindAgent]; ok {
		out.AgentURL = svc.URLs["api"]
	}
	if svc, ok := m.services[KindSandbox]; ok {
		out.SandboxRPCURL = svc.URLs["rpc"]
		out.SandboxWSURL = svc.URLs["ws"]
	}
	return out
}

// Services returns a snapshot of the current registrations.
func (m *Manager) Services() map[ServiceKind]Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[ServiceKind]Service, len(m.services))
	for kind, svc := range m.services {
		out[kind] = *svc
	}
	return out
}

// HealthStatus returns each registered service's last-known health. With a
// monitor attached the live monitor view wins; otherwise services report the
// healthy state they held when registration succeeded.
func (m *Manager) HealthStatus() map[string]health.Status {
	m.mu.RLock()
	mon := m.monitor
	out := make(map[string]health.Status, len(m.services))
	for kind, svc := range m.services {
		out[kind.String()] = health.Status{
			Service:   kind.String(),
			State:     health.StateHealthy,
			StateName: health.StateHealthy.String(),
			CheckedAt: svc.StartedAt,
		}
	}
	m.mu.RUnlock()

	if mon != nil {
		for name, st := range mon.Statuses() {
			if _, ok := out[name]; ok && st.State != health.StateUnknown {
				out[name] = st
			}
		}
	}
	return out
}

// Healthy reports whether every registered service is currently healthy.
func (m *Manager) Healthy() bool {
	statuses := m.HealthStatus()
	if len(statuses) == 0 {
		return false
	}
	for _, st := range statuses {
		if !st.Healthy() {
			return false
		}
	}
	return true
}

// Initialized reports whether a full ensure pass has completed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Cleanup gracefully shuts down every owned process and clears all
// registrations. Individual shutdown failures are logged and skipped so one
// stuck process cannot block releasing the others.
func (m *Manager) Cleanup() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(func(g *proc.Guard) error { return g.Shutdown() })
}

// ForceCleanup is Cleanup without the grace period.
func (m *Manager) ForceCleanup() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(func(g *proc.Guard) error { return g.ForceShutdown() })
}

func (m *Manager) teardown(stop func(*proc.Guard) error) {
	m.mu.Lock()
	services := m.services
	mon := m.monitor
	m.services = make(map[ServiceKind]*Service)
	m.initialized = false
	m.urls = URLs{}
	m.mu.Unlock()

	for kind, svc := range services {
		if mon != nil {
			_ = mon.RemoveService(kind.String())
		}
		if svc.guard == nil {
			continue // shared instances are not ours to stop
		}
		if err := stop(svc.guard); err != nil {
			slog.Error("Service shutdown failed", "service", kind, "error", err)
		} else {
			slog.Info("Service stopped", "service", kind)
		}
	}

	// Safety net for guards never registered, e.g. a process that started
	// but failed its health wait.
	m.sup.Close()
}

func agentURLs(port int) map[string]string {
	return map[string]string{"api": fmt.Sprintf("http://localhost:%d", port)}
}

func sandboxURLs(port int) map[string]string {
	return map[string]string{
		"rpc": fmt.Sprintf("http://localhost:%d", port),
		"ws":  fmt.Sprintf("ws://localhost:%d/ws", port),
	}
}
