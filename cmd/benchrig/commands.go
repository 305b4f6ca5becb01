package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benchrig/benchrig"
	"github.com/benchrig/benchrig/internal/logger"
	"github.com/benchrig/benchrig/internal/proc"
	"github.com/benchrig/benchrig/pkg/client"
)

type command struct {
	global *GlobalFlags
}

func (c command) loadConfig() (benchrig.Config, error) {
	cfg, err := benchrig.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return benchrig.Config{}, err
	}
	if c.global.Verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// Up starts every dependency, then supervises until interrupted.
func (c command) Up(f UpFlags) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Verbose, true)
	if err := benchrig.RegisterMetricsDefault(); err != nil {
		slog.Warn("Metrics registration failed", "error", err)
	}

	mgr := benchrig.New(cfg)
	urls, err := mgr.EnsureDependencies(context.Background())
	if err != nil {
		return fmt.Errorf("dependency startup failed: %w", err)
	}
	printJSON(urls)

	if err := mgr.StartMonitoring(); err != nil {
		return err
	}

	var srv *http.Server
	if f.Serve {
		srv = benchrig.NewHTTPServer(f.Listen, "", mgr)
		slog.Info("Observability API listening", "addr", f.Listen)
	}

	waitForSignal()

	if srv != nil {
		_ = srv.Close()
	}
	_ = mgr.StopMonitoring()
	mgr.Cleanup()
	return nil
}

// Serve is Up with the observability API always enabled.
func (c command) Serve(f ServeFlags) error {
	return c.Up(UpFlags{Serve: true, Listen: f.Listen})
}

// Down terminates dependency processes found by name. It covers processes
// left behind by a crashed run or started as shared instances.
func (c command) Down() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Verbose, true)

	targets := []string{cfg.Agent.ProcessName, cfg.Sandbox.Binary}
	terminated := 0
	for _, name := range targets {
		if name == "" {
			continue
		}
		pids, err := proc.FindProcessByName(name)
		if err != nil {
			slog.Warn("Process lookup failed", "name", name, "error", err)
			continue
		}
		for _, pid := range pids {
			if err := proc.Terminate(pid); err != nil {
				slog.Warn("Terminate failed", "name", name, "pid", pid, "error", err)
				continue
			}
			slog.Info("Terminated", "name", name, "pid", pid)
			terminated++
		}
	}
	if terminated == 0 {
		slog.Info("No dependency processes found")
	}
	return nil
}

// Status prints the daemon's service registrations and health.
func (c command) Status(f QueryFlags) error {
	resp, err := c.apiClient(f).Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// Health prints the all-of predicate; unhealthy dependencies make the
// command exit non-zero.
func (c command) Health(f QueryFlags) error {
	resp, err := c.apiClient(f).Health(context.Background())
	if err != nil {
		return err
	}
	printJSON(resp)
	if !resp.Healthy {
		return fmt.Errorf("%d of %d services unhealthy", resp.Unhealthy, resp.Services)
	}
	return nil
}

// URLs prints the dependency URL bundle.
func (c command) URLs(f QueryFlags) error {
	resp, err := c.apiClient(f).URLs(context.Background())
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// Stats prints per-service probe statistics.
func (c command) Stats(f QueryFlags) error {
	resp, err := c.apiClient(f).Stats(context.Background())
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func (c command) apiClient(f QueryFlags) *client.Client {
	baseURL := f.APIUrl
	if baseURL == "" {
		baseURL = "http://127.0.0.1:7171"
	}
	return client.New(client.Config{BaseURL: baseURL, Timeout: f.APITimeout})
}

func waitForSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("Shutting down")
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(b))
}
