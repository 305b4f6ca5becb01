package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	c := New()
	if c.Agent.Port != DefaultAgentPort {
		t.Fatalf("agent port: got %d want %d", c.Agent.Port, DefaultAgentPort)
	}
	if c.Sandbox.Port != DefaultSandboxPort {
		t.Fatalf("sandbox port: got %d want %d", c.Sandbox.Port, DefaultSandboxPort)
	}
	if c.Sandbox.Binary != DefaultSandboxBinary || c.Sandbox.Version != DefaultSandboxVersion {
		t.Fatalf("sandbox binary defaults wrong: %+v", c.Sandbox)
	}
	if !c.SharedInstances {
		t.Fatalf("shared instances should default on")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BENCHRIG_AGENT_PORT", "19090")
	t.Setenv("BENCHRIG_SANDBOX_PORT", "18899")
	t.Setenv("BENCHRIG_CACHE_DIR", "/tmp/benchrig-cache")
	t.Setenv("BENCHRIG_VERBOSE", "true")
	t.Setenv("BENCHRIG_SHARED_INSTANCES", "false")

	c := New()
	if c.Agent.Port != 19090 || c.Sandbox.Port != 18899 {
		t.Fatalf("env ports not applied: agent=%d sandbox=%d", c.Agent.Port, c.Sandbox.Port)
	}
	if c.CacheDir != "/tmp/benchrig-cache" {
		t.Fatalf("cache dir not applied: %s", c.CacheDir)
	}
	if !c.Verbose {
		t.Fatalf("verbose not applied")
	}
	if c.SharedInstances {
		t.Fatalf("shared instances override not applied")
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("BENCHRIG_AGENT_PORT", "not-a-number")
	c := New()
	if c.Agent.Port != DefaultAgentPort {
		t.Fatalf("garbage env should keep default, got %d", c.Agent.Port)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "benchrig.toml")
	data := `
shared_instances = false
verbose = true
cache_dir = "cache"
log_dir = "mylogs"
health_check_interval = "1s"
health_check_timeout = "3s"
startup_timeout = "30s"
shutdown_timeout = "5s"

[agent]
port = 9191
command = "agent-server --listen :9191"
process_name = "agent-server"

[sandbox]
port = 8898
binary = "surfpool"
version = "v0.10.8"
args = ["start", "--no-tui"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Agent.Port != 9191 || c.Sandbox.Port != 8898 {
		t.Fatalf("ports not loaded: %+v", c)
	}
	if c.Agent.Command != "agent-server --listen :9191" {
		t.Fatalf("agent command not loaded: %q", c.Agent.Command)
	}
	if c.LogDir != "mylogs" {
		t.Fatalf("log dir not loaded: %q", c.LogDir)
	}
	if c.HealthCheckInterval != time.Second || c.StartupTimeout != 30*time.Second {
		t.Fatalf("durations not loaded: %+v", c)
	}
	if c.SharedInstances {
		t.Fatalf("shared_instances not loaded")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero agent port", func(c *Config) { c.Agent.Port = 0 }},
		{"huge sandbox port", func(c *Config) { c.Sandbox.Port = 70000 }},
		{"same ports", func(c *Config) { c.Sandbox.Port = c.Agent.Port }},
		{"empty agent command", func(c *Config) { c.Agent.Command = "  " }},
		{"empty sandbox binary", func(c *Config) { c.Sandbox.Binary = "" }},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }},
		{"empty log dir", func(c *Config) { c.LogDir = "" }},
		{"zero interval", func(c *Config) { c.HealthCheckInterval = 0 }},
		{"negative startup timeout", func(c *Config) { c.StartupTimeout = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			tc.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
