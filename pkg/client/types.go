package client

import (
	"errors"
	"fmt"
	"time"
)

// ServiceInfo describes one registered dependency service
type ServiceInfo struct {
	Kind       string            `json:"kind"`
	Port       int               `json:"port"`
	URLs       map[string]string `json:"urls"`
	Shared     bool              `json:"shared"`
	PID        int               `json:"pid,omitempty"`
	Provenance string            `json:"provenance,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
}

// ServiceHealth is one service's last-known health status
type ServiceHealth struct {
	Service   string        `json:"service"`
	State     string        `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	CheckedAt time.Time     `json:"checked_at,omitempty"`
	Latency   time.Duration `json:"latency,omitempty"`
}

// StatusResponse is the payload of GET /status
type StatusResponse struct {
	Initialized bool                     `json:"initialized"`
	Services    map[string]ServiceInfo   `json:"services"`
	Health      map[string]ServiceHealth `json:"health"`
}

// URLBundle is the payload of GET /urls
type URLBundle struct {
	AgentURL      string `json:"agent_url"`
	SandboxRPCURL string `json:"sandbox_rpc_url"`
	SandboxWSURL  string `json:"sandbox_ws_url"`
}

// HealthResponse is the payload of GET /health
type HealthResponse struct {
	Healthy   bool `json:"healthy"`
	Services  int  `json:"services"`
	Unhealthy int  `json:"unhealthy"`
}

// ServiceStats aggregates probe outcomes for one service
type ServiceStats struct {
	Service          string        `json:"service"`
	TotalChecks      uint64        `json:"total_checks"`
	Successes        uint64        `json:"successes"`
	Failures         uint64        `json:"failures"`
	ConsecutiveFails uint64        `json:"consecutive_fails"`
	LastLatency      time.Duration `json:"last_latency"`
	LastCheckedAt    time.Time     `json:"last_checked_at"`
}

// StatusError reports a non-OK HTTP response from the daemon
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("daemon returned status %d: %s", e.Code, e.Body)
}

func asStatusError(err error, target **StatusError) bool {
	return errors.As(err, target)
}
