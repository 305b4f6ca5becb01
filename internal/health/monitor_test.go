package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okProbe(ctx context.Context) error { return nil }

func failProbe(ctx context.Context) error { return errors.New("connection refused") }

func TestAddRemoveService(t *testing.T) {
	m := NewMonitor(time.Second, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "a", Probe: okProbe}))
	require.NoError(t, m.AddService(CheckConfig{Service: "b", Probe: okProbe}))
	require.Equal(t, 2, m.ServiceCount())
	require.Equal(t, []string{"a", "b"}, m.ServiceNames())

	require.NoError(t, m.RemoveService("a"))
	require.Equal(t, 1, m.ServiceCount())

	var unknown *UnknownServiceError
	err := m.RemoveService("a")
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "a", unknown.Service)
}

func TestAddServiceValidation(t *testing.T) {
	m := NewMonitor(time.Second, time.Second)
	require.Error(t, m.AddService(CheckConfig{Service: "", Probe: okProbe}))
	require.Error(t, m.AddService(CheckConfig{Service: "x"}))
}

func TestStartStopLifecycleErrors(t *testing.T) {
	m := NewMonitor(50*time.Millisecond, time.Second)

	require.ErrorIs(t, m.StopMonitoring(), ErrNotStarted)
	require.NoError(t, m.StartMonitoring())
	require.True(t, m.IsMonitoring())
	require.ErrorIs(t, m.StartMonitoring(), ErrAlreadyRunning)
	require.NoError(t, m.StopMonitoring())
	require.False(t, m.IsMonitoring())
	require.ErrorIs(t, m.StopMonitoring(), ErrNotStarted)

	// The monitor can be restarted after a clean stop.
	require.NoError(t, m.StartMonitoring())
	require.NoError(t, m.StopMonitoring())
}

func TestMonitorLifecycleEvents(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.StartMonitoring())

	ev, ok := m.TryNextEvent()
	require.True(t, ok)
	require.Equal(t, EventMonitorStarted, ev.Type)
	require.False(t, ev.At.IsZero())

	require.NoError(t, m.StopMonitoring())
	ev, ok = m.TryNextEvent()
	require.True(t, ok)
	require.Equal(t, EventMonitorStopped, ev.Type)

	_, ok = m.TryNextEvent()
	require.False(t, ok)

	// Each restart emits a fresh start/stop pair.
	require.NoError(t, m.StartMonitoring())
	require.NoError(t, m.StopMonitoring())
	ev, _ = m.TryNextEvent()
	require.Equal(t, EventMonitorStarted, ev.Type)
	ev, _ = m.TryNextEvent()
	require.Equal(t, EventMonitorStopped, ev.Type)
}

func TestCheckCompletedEventCarriesResult(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "svc", Probe: okProbe}))

	now := time.Now()
	m.applyResult(CheckResult{Service: "svc", Healthy: true, CheckedAt: now, Latency: 5 * time.Millisecond})
	m.applyResult(CheckResult{Service: "svc", Healthy: false, Reason: "connection refused", CheckedAt: now, Latency: 2 * time.Millisecond})

	ev, ok := m.TryNextEvent()
	require.True(t, ok)
	require.Equal(t, EventCheckCompleted, ev.Type)
	require.Equal(t, "svc", ev.Service)
	require.Equal(t, StateHealthy, ev.New)
	require.Equal(t, 5*time.Millisecond, ev.Latency)
	require.Equal(t, now, ev.At)

	ev, ok = m.TryNextEvent()
	require.True(t, ok)
	require.Equal(t, EventCheckCompleted, ev.Type)
	require.Equal(t, "svc", ev.Service)
	require.Equal(t, StateUnhealthy, ev.New)
	require.Equal(t, "connection refused", ev.Reason)
	require.Equal(t, 2*time.Millisecond, ev.Latency)

	// The state flip follows its completion event.
	ev, ok = m.TryNextEvent()
	require.True(t, ok)
	require.Equal(t, EventStatusChanged, ev.Type)
}

func TestStatusChangeEventsOnlyOnTransition(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "svc", Probe: okProbe}))

	sequence := []bool{true, true, false, false, true}
	for _, healthy := range sequence {
		res := CheckResult{Service: "svc", Healthy: healthy, CheckedAt: time.Now()}
		if !healthy {
			res.Reason = "connection refused"
		}
		m.applyResult(res)
	}

	var changes []Event
	for {
		ev, ok := m.TryNextEvent()
		if !ok {
			break
		}
		if ev.Type == EventStatusChanged {
			changes = append(changes, ev)
		}
	}
	require.Len(t, changes, 2)
	require.Equal(t, StateHealthy, changes[0].Old)
	require.Equal(t, StateUnhealthy, changes[0].New)
	require.Equal(t, "connection refused", changes[0].Reason)
	require.Equal(t, StateUnhealthy, changes[1].Old)
	require.Equal(t, StateHealthy, changes[1].New)
}

func TestStatsAccumulation(t *testing.T) {
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "svc", Probe: okProbe}))

	for _, healthy := range []bool{true, false, false, true, false} {
		m.applyResult(CheckResult{Service: "svc", Healthy: healthy, CheckedAt: time.Now(), Latency: time.Millisecond})
	}

	stats := m.AllStats()["svc"]
	require.Equal(t, uint64(5), stats.TotalChecks)
	require.Equal(t, uint64(2), stats.Successes)
	require.Equal(t, uint64(3), stats.Failures)
	require.Equal(t, uint64(1), stats.ConsecutiveFails)
	require.Equal(t, time.Millisecond, stats.LastLatency)
}

func TestCheckAllServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	checker := NewChecker(time.Second)
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "up", Probe: checker.HTTPProbe(srv.URL)}))
	require.NoError(t, m.AddService(CheckConfig{Service: "down", Probe: failProbe}))

	statuses := m.CheckAllServices(context.Background())
	require.Equal(t, StateHealthy, statuses["up"].State)
	require.Equal(t, StateUnhealthy, statuses["down"].State)
	require.Equal(t, 1, m.HealthyCount())
	require.Equal(t, 1, m.UnhealthyCount())
}

func TestMonitorLoopProbesContinuously(t *testing.T) {
	var calls atomic.Int64
	probe := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}
	m := NewMonitor(20*time.Millisecond, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "svc", Probe: probe}))
	require.NoError(t, m.StartMonitoring())
	defer func() { _ = m.StopMonitoring() }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, calls.Load(), int64(3), "loop should keep probing")

	st, err := m.ServiceInfo("svc")
	require.NoError(t, err)
	require.True(t, st.Healthy())
}

func TestStopAbandonsInflightProbes(t *testing.T) {
	release := make(chan struct{})
	probe := func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}
	m := NewMonitor(20*time.Millisecond, time.Minute)
	require.NoError(t, m.AddService(CheckConfig{Service: "slow", Probe: probe}))
	require.NoError(t, m.StartMonitoring())

	time.Sleep(50 * time.Millisecond) // let the loop enter the probe
	done := make(chan error, 1)
	go func() { done <- m.StopMonitoring() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop should cancel in-flight probes, not wait for them")
	}
	close(release)
}

func TestWaitForServiceHealthTimeout(t *testing.T) {
	m := NewMonitor(50*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, m.AddService(CheckConfig{Service: "never", Probe: failProbe}))

	start := time.Now()
	err := m.WaitForServiceHealth(context.Background(), "never", 300*time.Millisecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "never", te.Service)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForServiceHealthSucceeds(t *testing.T) {
	var calls atomic.Int64
	probe := func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	}
	m := NewMonitor(time.Hour, time.Second)
	require.NoError(t, m.AddService(CheckConfig{Service: "warmup", Probe: probe}))

	require.NoError(t, m.WaitForServiceHealth(context.Background(), "warmup", 5*time.Second))
	st, err := m.ServiceInfo("warmup")
	require.NoError(t, err)
	require.True(t, st.Healthy())
}

func TestWaitForServiceHealthUnknown(t *testing.T) {
	m := NewMonitor(time.Second, time.Second)
	var unknown *UnknownServiceError
	require.ErrorAs(t, m.WaitForServiceHealth(context.Background(), "ghost", time.Second), &unknown)
}

func TestEventQueueOrderingAndWakeup(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 3; i++ {
		q.publish(Event{Type: EventCheckCompleted, Service: fmt.Sprintf("s%d", i)})
	}
	for i := 0; i < 3; i++ {
		ev, ok := q.tryNext()
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("s%d", i), ev.Service)
	}
	_, ok := q.tryNext()
	require.False(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.publish(Event{Type: EventMonitorStopped})
	}()
	ev, ok := q.next(2 * time.Second)
	require.True(t, ok)
	require.Equal(t, EventMonitorStopped, ev.Type)

	_, ok = q.next(20 * time.Millisecond)
	require.False(t, ok)
}
