package manager

import (
	"fmt"
	"time"

	"github.com/benchrig/benchrig/internal/proc"
)

// ServiceKind identifies one of the built-in managed services.
type ServiceKind string

const (
	// KindAgent is the agent-serving HTTP process.
	KindAgent ServiceKind = "agent"
	// KindSandbox is the blockchain sandbox node.
	KindSandbox ServiceKind = "sandbox"
)

// kindOrder is the fixed startup order. The agent must be reachable before
// anything needing the sandbox address runs, so it starts first.
var kindOrder = []ServiceKind{KindAgent, KindSandbox}

func (k ServiceKind) String() string { return string(k) }

// Priority returns the startup rank, lower first.
func (k ServiceKind) Priority() int {
	for i, kind := range kindOrder {
		if kind == k {
			return i
		}
	}
	return len(kindOrder)
}

// Service is one registered dependency as the manager sees it.
type Service struct {
	Kind       ServiceKind       `json:"kind"`
	Port       int               `json:"port"`
	URLs       map[string]string `json:"urls"`
	Shared     bool              `json:"shared"`
	PID        int               `json:"pid,omitempty"`
	Provenance string            `json:"provenance,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`

	guard *proc.Guard
}

// URLs is the address bundle handed to the benchmark runner.
type URLs struct {
	AgentURL      string `json:"agent_url"`
	SandboxRPCURL string `json:"sandbox_rpc_url"`
	SandboxWSURL  string `json:"sandbox_ws_url"`
}

// PortConflictError indicates a service's configured port is already bound
// by an unrelated listener. Detected pre-flight, before any spawn.
type PortConflictError struct {
	Service ServiceKind
	Port    int
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d for service %q is already in use", e.Port, e.Service)
}
