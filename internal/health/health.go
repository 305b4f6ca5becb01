package health

import (
	"errors"
	"fmt"
	"time"
)

// State is the coarse health classification of a monitored service.
type State int

const (
	// StateUnknown means the service has never been checked.
	StateUnknown State = iota
	// StateHealthy means the last probe succeeded.
	StateHealthy
	// StateUnhealthy means the last probe failed or timed out.
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Status is the current health of one service as seen by the monitor.
type Status struct {
	Service   string        `json:"service"`
	State     State         `json:"-"`
	StateName string        `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	CheckedAt time.Time     `json:"checked_at,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// Healthy reports whether the status represents a passing service.
func (s Status) Healthy() bool { return s.State == StateHealthy }

// CheckResult is the outcome of a single probe invocation.
type CheckResult struct {
	Service   string
	Healthy   bool
	Reason    string
	CheckedAt time.Time
	Latency   time.Duration
}

// Stats aggregates probe outcomes for one service since it was added.
type Stats struct {
	Service          string        `json:"service"`
	TotalChecks      uint64        `json:"total_checks"`
	Successes        uint64        `json:"successes"`
	Failures         uint64        `json:"failures"`
	ConsecutiveFails uint64        `json:"consecutive_fails"`
	LastLatency      time.Duration `json:"last_latency"`
	LastCheckedAt    time.Time     `json:"last_checked_at"`
}

// CheckConfig describes how one service should be probed.
type CheckConfig struct {
	// Service is the unique name the monitor tracks the target under.
	Service string
	// Probe performs one health check. Required.
	Probe Probe
	// Interval overrides the monitor's default probe interval when > 0.
	Interval time.Duration
}

var (
	// ErrAlreadyRunning is returned when StartMonitoring is called twice.
	ErrAlreadyRunning = errors.New("health: monitor already running")
	// ErrNotStarted is returned when StopMonitoring is called before start.
	ErrNotStarted = errors.New("health: monitor not started")
)

// TimeoutError indicates a service did not become healthy within the allowed
// startup window.
type TimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("health: service %q not healthy within %s", e.Service, e.Timeout)
}

// UnknownServiceError indicates an operation referenced a service the monitor
// does not track.
type UnknownServiceError struct {
	Service string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("health: unknown service %q", e.Service)
}
