package proc

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/benchrig/benchrig/internal/logger"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return false
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	return NewSupervisor(logger.Config{Dir: filepath.Join(t.TempDir(), "logs")})
}

func TestStartAndShutdown(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	g, err := s.Start(Config{Name: "sleeper", Command: "sleep 30", ShutdownTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if g.PID() == 0 {
		t.Fatalf("expected pid")
	}
	if !s.Running("sleeper") {
		t.Fatalf("expected running")
	}
	if err := g.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if s.Running("sleeper") {
		t.Fatalf("still registered after shutdown")
	}
	if g.Alive() {
		t.Fatalf("process still alive after shutdown")
	}
}

func TestForceShutdown(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	g, err := s.Start(Config{Name: "victim", Command: "sleep 30", ShutdownTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.ForceShutdown(); err != nil {
		t.Fatalf("force shutdown: %v", err)
	}
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !g.Alive() }) {
		t.Fatalf("process survived force shutdown")
	}
}

func TestShutdownEscalatesAfterGrace(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	// The child ignores SIGTERM, so shutdown must escalate to SIGKILL.
	g, err := s.Start(Config{
		Name:            "stubborn",
		Command:         `sh -c 'trap "" TERM; while true; do sleep 1; done'`,
		ShutdownTimeout: 300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	start := time.Now()
	if err := g.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("shutdown returned before grace period: %v", elapsed)
	}
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !g.Alive() }) {
		t.Fatalf("process survived escalation")
	}
}

func TestDuplicateStartRejected(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	g, err := s.Start(Config{Name: "dup", Command: "sleep 30", ShutdownTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = g.ForceShutdown() }()

	if _, err := s.Start(Config{Name: "dup", Command: "sleep 30"}); err == nil {
		t.Fatalf("expected duplicate start error")
	}
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	const n = 4
	type outcome struct {
		g   *Guard
		err error
	}
	results := make(chan outcome, n)
	for i := 0; i < n; i++ {
		go func() {
			g, err := s.Start(Config{Name: "racer", Command: "sleep 30", ShutdownTimeout: time.Second})
			results <- outcome{g, err}
		}()
	}

	var winner *Guard
	failures := 0
	for i := 0; i < n; i++ {
		res := <-results
		if res.err != nil {
			failures++
			continue
		}
		if winner != nil {
			t.Fatalf("two starts succeeded for one name")
		}
		winner = res.g
	}
	if winner == nil {
		t.Fatalf("no start succeeded")
	}
	if failures != n-1 {
		t.Fatalf("expected %d rejections, got %d", n-1, failures)
	}

	registered, ok := s.Guard("racer")
	if !ok || registered != winner {
		t.Fatalf("registry holds a guard other than the winner's")
	}
	_ = winner.ForceShutdown()
}

func TestImmediateExitDetected(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	_, err := s.Start(Config{Name: "flash", Command: "true"})
	if err == nil {
		t.Fatalf("expected immediate-exit error")
	}
	var se *StartError
	if !errors.As(err, &se) {
		t.Fatalf("expected StartError, got %T: %v", err, err)
	}
	if !strings.Contains(se.Error(), "exited immediately") {
		t.Fatalf("unexpected error text: %v", se)
	}
	if s.Running("flash") {
		t.Fatalf("failed spawn should not be registered")
	}
}

func TestEmptyNameRejected(t *testing.T) {
	s := newTestSupervisor(t)
	if _, err := s.Start(Config{Command: "sleep 1"}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestOutputRedirectedToLogFile(t *testing.T) {
	requireUnix(t)
	logDir := filepath.Join(t.TempDir(), "logs")
	s := NewSupervisor(logger.Config{Dir: logDir})
	defer s.Close()

	g, err := s.Start(Config{
		Name:            "chatty",
		Command:         `sh -c 'echo hello-from-child; sleep 30'`,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = g.ForceShutdown() }()

	logPath := filepath.Join(logDir, "chatty.log")
	ok := waitUntil(3*time.Second, 50*time.Millisecond, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && strings.Contains(string(data), "hello-from-child")
	})
	if !ok {
		t.Fatalf("child output never reached %s", logPath)
	}
}

func TestCloseReapsLeakedGuards(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)

	g, err := s.Start(Config{Name: "leaked", Command: "sleep 30", ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Close()
	if !waitUntil(2*time.Second, 20*time.Millisecond, func() bool { return !g.Alive() }) {
		t.Fatalf("leaked guard not terminated by Close")
	}
}

func TestPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	if !PortInUse(port) {
		t.Fatalf("expected port %d in use", port)
	}
	_ = ln.Close()
	if !waitUntil(time.Second, 50*time.Millisecond, func() bool { return !PortInUse(port) }) {
		t.Fatalf("port %d still reported in use after close", port)
	}
}

func TestFindProcessByName(t *testing.T) {
	requireUnix(t)
	s := newTestSupervisor(t)
	defer s.Close()

	g, err := s.Start(Config{Name: "findme", Command: "sleep 30", ShutdownTimeout: time.Second})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = g.ForceShutdown() }()

	pids, err := FindProcessByName("sleep")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	found := false
	for _, pid := range pids {
		if pid == g.PID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("pid %d not among %v", g.PID(), pids)
	}
}

func TestProcessNameParsing(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{Command: "/usr/bin/sleep 5"}, "sleep"},
		{Config{Command: "surfpool", Args: []string{"start"}}, "surfpool"},
		{Config{Command: "node server.js"}, "node"},
	}
	for _, tc := range cases {
		if got := tc.cfg.ProcessName(); got != tc.want {
			t.Fatalf("ProcessName(%q): got %q want %q", tc.cfg.Command, got, tc.want)
		}
	}
}
