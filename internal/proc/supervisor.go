package proc

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benchrig/benchrig/internal/logger"
	"github.com/benchrig/benchrig/internal/metrics"
)

// spawnConfirm is how long Start watches a fresh process for an immediate
// exit before declaring the spawn successful.
const spawnConfirm = 150 * time.Millisecond

// Supervisor starts child processes with redirected output and tracks one
// live Guard per logical service name. Close force-terminates any guard that
// was never explicitly released.
type Supervisor struct {
	log logger.Config

	mu      sync.RWMutex
	guards  map[string]*Guard
	pending map[string]struct{}
}

// NewSupervisor creates a Supervisor writing service output per log.
func NewSupervisor(log logger.Config) *Supervisor {
	return &Supervisor{
		log:     log,
		guards:  make(map[string]*Guard),
		pending: make(map[string]struct{}),
	}
}

// Start spawns the configured process and returns its ownership guard.
// A second start under a name whose guard is still live, or whose spawn is
// still in flight, is an error.
func (s *Supervisor) Start(cfg Config) (*Guard, error) {
	if cfg.Name == "" {
		return nil, &StartError{Name: cfg.Name, Err: fmt.Errorf("process name cannot be empty")}
	}

	// Reserve the name before unlocking so a concurrent Start for the same
	// name cannot spawn a second process while ours is still in flight.
	s.mu.Lock()
	if _, inflight := s.pending[cfg.Name]; inflight {
		s.mu.Unlock()
		return nil, &StartError{Name: cfg.Name, Err: fmt.Errorf("process start already in progress")}
	}
	if existing := s.guards[cfg.Name]; existing != nil && existing.Alive() {
		s.mu.Unlock()
		return nil, &StartError{Name: cfg.Name, Err: fmt.Errorf("process already running (pid %d)", existing.PID())}
	}
	s.pending[cfg.Name] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, cfg.Name)
		s.mu.Unlock()
	}()

	out, err := s.openWriter(cfg)
	if err != nil {
		return nil, &StartError{Name: cfg.Name, Err: err}
	}

	cmd := cfg.buildCommand()
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		if out != nil {
			_ = out.Close()
		}
		return nil, &StartError{Name: cfg.Name, Err: err}
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	g := &Guard{
		name:            cfg.Name,
		cmd:             cmd,
		out:             out,
		shutdownTimeout: shutdownTimeout,
		waitDone:        make(chan struct{}),
		release:         s.remove,
	}
	go g.reap()

	// Confirm the process did not exit at once (bad flags, missing libs).
	select {
	case <-g.waitDone:
		return nil, &StartError{Name: cfg.Name, Err: fmt.Errorf("process exited immediately after spawn: %v", g.WaitErr())}
	case <-time.After(spawnConfirm):
	}

	s.mu.Lock()
	s.guards[cfg.Name] = g
	s.mu.Unlock()

	metrics.IncProcessStart(cfg.Name)
	slog.Info("Process started", "name", cfg.Name, "pid", g.PID())
	return g, nil
}

// Guard returns the live guard for a service name, if any.
func (s *Supervisor) Guard(name string) (*Guard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guards[name]
	return g, ok
}

// Running reports whether a live guard exists for the service name.
func (s *Supervisor) Running(name string) bool {
	g, ok := s.Guard(name)
	return ok && g.Alive()
}

// Close force-terminates every guard that was not explicitly released.
// It is the safety net for leaked guards, never the primary shutdown path.
func (s *Supervisor) Close() {
	s.mu.Lock()
	leaked := make([]*Guard, 0, len(s.guards))
	for _, g := range s.guards {
		leaked = append(leaked, g)
	}
	s.mu.Unlock()

	for _, g := range leaked {
		slog.Warn("Force terminating leaked process guard", "name", g.Name(), "pid", g.PID())
		_ = g.ForceShutdown()
	}
}

func (s *Supervisor) openWriter(cfg Config) (io.WriteCloser, error) {
	if cfg.LogPath != "" {
		return logger.Config{Path: cfg.LogPath}.Writer(cfg.Name)
	}
	return s.log.Writer(cfg.Name)
}

// remove drops the guard from the registry when it is released. Invoked by
// Guard.Shutdown/ForceShutdown exactly once per guard.
func (s *Supervisor) remove(g *Guard) {
	s.mu.Lock()
	if s.guards[g.name] == g {
		delete(s.guards, g.name)
	}
	s.mu.Unlock()
	metrics.IncProcessStop(g.name)
}
