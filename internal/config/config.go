package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied by New and Load.
const (
	DefaultAgentPort           = 9090
	DefaultSandboxPort         = 8899
	DefaultSandboxBinary       = "surfpool"
	DefaultSandboxVersion      = "v0.10.8"
	DefaultSandboxDownloadBase = "https://github.com/txtx/surfpool/releases/download"
	DefaultHealthInterval      = 2 * time.Second
	DefaultHealthTimeout       = 5 * time.Second
	DefaultStartupTimeout      = 60 * time.Second
	DefaultShutdownTimeout     = 10 * time.Second
	DefaultCacheDir            = ".benchrig/cache"
	DefaultLogDir              = "logs"
)

// AgentConfig describes the agent-serving process. It is run from a command
// line, not an acquired binary.
type AgentConfig struct {
	Port        int    `toml:"port" mapstructure:"port"`
	Command     string `toml:"command" mapstructure:"command"`
	ProcessName string `toml:"process_name" mapstructure:"process_name"` // for shared-instance matching
}

// SandboxConfig describes the blockchain sandbox node. Its binary is resolved
// through the acquirer (cache, release download, source build, PATH).
type SandboxConfig struct {
	Port         int      `toml:"port" mapstructure:"port"`
	Binary       string   `toml:"binary" mapstructure:"binary"`
	Version      string   `toml:"version" mapstructure:"version"`
	DownloadBase string   `toml:"download_base" mapstructure:"download_base"`
	BuildCommand string   `toml:"build_command" mapstructure:"build_command"`
	SourceDir    string   `toml:"source_dir" mapstructure:"source_dir"`
	Args         []string `toml:"args" mapstructure:"args"`
}

// Config is the immutable configuration for the dependency engine.
// Validate once at construction; a Config that fails Validate must not be used.
type Config struct {
	Agent   AgentConfig   `toml:"agent" mapstructure:"agent"`
	Sandbox SandboxConfig `toml:"sandbox" mapstructure:"sandbox"`

	SharedInstances bool `toml:"shared_instances" mapstructure:"shared_instances"`
	Verbose         bool `toml:"verbose" mapstructure:"verbose"`

	CacheDir string `toml:"cache_dir" mapstructure:"cache_dir"`
	LogDir   string `toml:"log_dir" mapstructure:"log_dir"`

	HealthCheckInterval time.Duration `toml:"health_check_interval" mapstructure:"health_check_interval"`
	HealthCheckTimeout  time.Duration `toml:"health_check_timeout" mapstructure:"health_check_timeout"`
	StartupTimeout      time.Duration `toml:"startup_timeout" mapstructure:"startup_timeout"`
	ShutdownTimeout     time.Duration `toml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// New returns a Config populated with defaults and environment overrides.
func New() Config {
	c := Config{
		Agent: AgentConfig{
			Port:        DefaultAgentPort,
			ProcessName: "benchrig-agent",
			Command:     "benchrig-agent",
		},
		Sandbox: SandboxConfig{
			Port:         DefaultSandboxPort,
			Binary:       DefaultSandboxBinary,
			Version:      DefaultSandboxVersion,
			DownloadBase: DefaultSandboxDownloadBase,
			Args:         []string{"start", "--no-tui"},
		},
		SharedInstances:     true,
		CacheDir:            DefaultCacheDir,
		LogDir:              DefaultLogDir,
		HealthCheckInterval: DefaultHealthInterval,
		HealthCheckTimeout:  DefaultHealthTimeout,
		StartupTimeout:      DefaultStartupTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
	}
	c.applyEnv()
	return c
}

// Load reads a TOML config file, layering it over defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	c := New()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		c.applyEnv()
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyEnv overrides fields from BENCHRIG_* environment variables.
func (c *Config) applyEnv() {
	if p, ok := envInt("BENCHRIG_AGENT_PORT"); ok {
		c.Agent.Port = p
	}
	if p, ok := envInt("BENCHRIG_SANDBOX_PORT"); ok {
		c.Sandbox.Port = p
	}
	if v := os.Getenv("BENCHRIG_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("BENCHRIG_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if b, ok := envBool("BENCHRIG_VERBOSE"); ok {
		c.Verbose = b
	}
	if b, ok := envBool("BENCHRIG_SHARED_INSTANCES"); ok {
		c.SharedInstances = b
	}
}

// Validate checks the configuration for fatal inconsistencies.
func (c Config) Validate() error {
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("invalid agent port: %d", c.Agent.Port)
	}
	if c.Sandbox.Port <= 0 || c.Sandbox.Port > 65535 {
		return fmt.Errorf("invalid sandbox port: %d", c.Sandbox.Port)
	}
	if c.Agent.Port == c.Sandbox.Port {
		return fmt.Errorf("port conflict: agent and sandbox both configured for port %d", c.Agent.Port)
	}
	if strings.TrimSpace(c.Agent.Command) == "" {
		return fmt.Errorf("agent command cannot be empty")
	}
	if strings.TrimSpace(c.Sandbox.Binary) == "" {
		return fmt.Errorf("sandbox binary name cannot be empty")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir cannot be empty")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir cannot be empty")
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health_check_interval must be greater than 0")
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("health_check_timeout must be greater than 0")
	}
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be greater than 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be greater than 0")
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	lower := strings.ToLower(v)
	return lower != "false" && lower != "0", true
}
