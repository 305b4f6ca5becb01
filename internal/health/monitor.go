package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benchrig/benchrig/internal/metrics"
)

type serviceEntry struct {
	cfg    CheckConfig
	status Status
	stats  Stats
}

// Monitor periodically probes registered services, tracks their state and
// emits lifecycle, completion and transition events. Probes run outside the
// registry lock so a slow endpoint never blocks status reads.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration

	mu       sync.RWMutex
	services map[string]*serviceEntry
	running  bool
	stop     chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc

	events *eventQueue
}

// NewMonitor returns a monitor probing every interval with the given
// per-probe timeout.
func NewMonitor(interval, timeout time.Duration) *Monitor {
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		services: make(map[string]*serviceEntry),
		events:   newEventQueue(),
	}
}

// AddService registers a service for monitoring. Re-adding an existing name
// replaces its probe and resets its state to unknown.
func (m *Monitor) AddService(cfg CheckConfig) error {
	if cfg.Service == "" {
		return &UnknownServiceError{Service: ""}
	}
	if cfg.Probe == nil {
		return &UnknownServiceError{Service: cfg.Service}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[cfg.Service] = &serviceEntry{
		cfg:    cfg,
		status: Status{Service: cfg.Service, State: StateUnknown, StateName: StateUnknown.String()},
		stats:  Stats{Service: cfg.Service},
	}
	return nil
}

// RemoveService unregisters a service.
func (m *Monitor) RemoveService(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[name]; !ok {
		return &UnknownServiceError{Service: name}
	}
	delete(m.services, name)
	metrics.SetServiceUp(name, false)
	return nil
}

// StartMonitoring launches the probe loop. It fails with ErrAlreadyRunning
// when the loop is active.
func (m *Monitor) StartMonitoring() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.cancel = cancel
	go m.loop(ctx, m.stop, m.done)
	m.events.publish(Event{Type: EventMonitorStarted, At: time.Now()})
	return nil
}

// StopMonitoring cancels in-flight probes and waits for the loop to exit.
func (m *Monitor) StopMonitoring() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.running = false
	stop, done, cancel := m.stop, m.done, m.cancel
	m.mu.Unlock()

	cancel()
	close(stop)
	<-done
	m.events.publish(Event{Type: EventMonitorStopped, At: time.Now()})
	return nil
}

// IsMonitoring reports whether the probe loop is active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.checkDue(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.checkDue(ctx)
		}
	}
}

// checkDue probes every service whose interval has elapsed.
func (m *Monitor) checkDue(ctx context.Context) {
	now := time.Now()
	m.mu.RLock()
	var due []CheckConfig
	for _, e := range m.services {
		iv := e.cfg.Interval
		if iv <= 0 {
			iv = m.interval
		}
		if e.stats.LastCheckedAt.IsZero() || now.Sub(e.stats.LastCheckedAt) >= iv {
			due = append(due, e.cfg)
		}
	}
	m.mu.RUnlock()
	if len(due) == 0 {
		return
	}

	var wg sync.WaitGroup
	results := make([]CheckResult, len(due))
	for i, cfg := range due {
		wg.Add(1)
		go func(i int, cfg CheckConfig) {
			defer wg.Done()
			results[i] = Run(ctx, cfg.Service, m.timeout, cfg.Probe)
		}(i, cfg)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return
	}
	for _, res := range results {
		m.applyResult(res)
	}
}

// applyResult folds one probe outcome into the registry, emits a completion
// event per check and a transition event when the coarse state flipped.
func (m *Monitor) applyResult(res CheckResult) {
	m.mu.Lock()
	e, ok := m.services[res.Service]
	if !ok {
		m.mu.Unlock()
		return
	}
	old := e.status.State
	next := StateUnhealthy
	if res.Healthy {
		next = StateHealthy
	}
	e.status = Status{
		Service:   res.Service,
		State:     next,
		StateName: next.String(),
		Reason:    res.Reason,
		CheckedAt: res.CheckedAt,
		Latency:   res.Latency,
	}
	e.stats.TotalChecks++
	if res.Healthy {
		e.stats.Successes++
		e.stats.ConsecutiveFails = 0
	} else {
		e.stats.Failures++
		e.stats.ConsecutiveFails++
	}
	e.stats.LastLatency = res.Latency
	e.stats.LastCheckedAt = res.CheckedAt
	m.mu.Unlock()

	metrics.ObserveHealthCheck(res.Service, res.Healthy, res.Latency.Seconds())
	metrics.SetServiceUp(res.Service, res.Healthy)

	m.events.publish(Event{
		Type:    EventCheckCompleted,
		Service: res.Service,
		New:     next,
		Reason:  res.Reason,
		Latency: res.Latency,
		At:      res.CheckedAt,
	})

	if old != StateUnknown && old != next {
		metrics.RecordStatusTransition(res.Service, old.String(), next.String())
		slog.Info("service status changed",
			"service", res.Service, "from", old.String(), "to", next.String(), "reason", res.Reason)
		m.events.publish(Event{
			Type:    EventStatusChanged,
			Service: res.Service,
			Old:     old,
			New:     next,
			Reason:  res.Reason,
			At:      res.CheckedAt,
		})
	}
}

// CheckAllServices probes every registered service once, outside the regular
// loop cadence, and returns the refreshed statuses.
func (m *Monitor) CheckAllServices(ctx context.Context) map[string]Status {
	m.mu.RLock()
	cfgs := make([]CheckConfig, 0, len(m.services))
	for _, e := range m.services {
		cfgs = append(cfgs, e.cfg)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	results := make([]CheckResult, len(cfgs))
	for i, cfg := range cfgs {
		wg.Add(1)
		go func(i int, cfg CheckConfig) {
			defer wg.Done()
			results[i] = Run(ctx, cfg.Service, m.timeout, cfg.Probe)
		}(i, cfg)
	}
	wg.Wait()
	for _, res := range results {
		m.applyResult(res)
	}
	return m.Statuses()
}

// WaitForServiceHealth blocks until name reports healthy or timeout elapses.
// On timeout it returns a *TimeoutError.
func (m *Monitor) WaitForServiceHealth(ctx context.Context, name string, timeout time.Duration) error {
	m.mu.RLock()
	e, ok := m.services[name]
	var cfg CheckConfig
	if ok {
		cfg = e.cfg
	}
	m.mu.RUnlock()
	if !ok {
		return &UnknownServiceError{Service: name}
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	interval := cfg.Interval
	if interval <= 0 {
		interval = m.interval
	}
	// Poll faster than the steady-state cadence so startup latency stays low.
	if interval > 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		res := Run(wctx, name, m.timeout, cfg.Probe)
		if wctx.Err() == nil {
			m.applyResult(res)
		}
		if res.Healthy {
			return nil
		}
		select {
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TimeoutError{Service: name, Timeout: timeout}
		case <-ticker.C:
		}
	}
}

// Statuses returns a snapshot of every service's current status.
func (m *Monitor) Statuses() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.services))
	for name, e := range m.services {
		out[name] = e.status
	}
	return out
}

// ServiceInfo returns the status of one service.
func (m *Monitor) ServiceInfo(name string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.services[name]
	if !ok {
		return Status{}, &UnknownServiceError{Service: name}
	}
	return e.status, nil
}

// AllStats returns a snapshot of per-service probe statistics.
func (m *Monitor) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.services))
	for name, e := range m.services {
		out[name] = e.stats
	}
	return out
}

// ServiceNames returns the registered service names in sorted order.
func (m *Monitor) ServiceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceCount returns the number of registered services.
func (m *Monitor) ServiceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// HealthyCount returns how many services currently report healthy.
func (m *Monitor) HealthyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.services {
		if e.status.State == StateHealthy {
			n++
		}
	}
	return n
}

// UnhealthyCount returns how many services currently report unhealthy.
// Services never probed count as neither.
func (m *Monitor) UnhealthyCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.services {
		if e.status.State == StateUnhealthy {
			n++
		}
	}
	return n
}

// TryNextEvent pops the oldest pending monitor event without blocking.
func (m *Monitor) TryNextEvent() (Event, bool) {
	return m.events.tryNext()
}

// NextEvent waits up to timeout for a monitor event.
func (m *Monitor) NextEvent(timeout time.Duration) (Event, bool) {
	return m.events.next(timeout)
}
