package proc

import (
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// killReapWait bounds how long shutdown waits for the reaper after SIGKILL.
const killReapWait = 2 * time.Second

// Guard is the scoped ownership handle for one spawned process. Exactly one
// guard exists per process; the preferred release path is an explicit
// Shutdown or ForceShutdown call. Guards still registered when the owning
// Supervisor closes are force-terminated as a safety net.
type Guard struct {
	name            string
	cmd             *exec.Cmd
	out             io.WriteCloser
	shutdownTimeout time.Duration
	waitDone        chan struct{} // closed by reap when cmd.Wait returns

	mu       sync.Mutex
	waitErr  error
	released bool
	release  func(*Guard) // removes the guard from the supervisor registry
}

// Name returns the logical service name.
func (g *Guard) Name() string { return g.name }

// PID returns the OS process identifier of the spawned process.
func (g *Guard) PID() int {
	if g.cmd.Process == nil {
		return 0
	}
	return g.cmd.Process.Pid
}

// Alive reports whether the process has not yet been reaped and still exists.
func (g *Guard) Alive() bool {
	select {
	case <-g.waitDone:
		return false
	default:
	}
	return processExists(g.PID())
}

// reap waits for the process to exit, records the exit error, closes the log
// writer and signals waiters. Exactly one reap goroutine runs per guard.
func (g *Guard) reap() {
	err := g.cmd.Wait()
	g.mu.Lock()
	g.waitErr = err
	g.mu.Unlock()
	if g.out != nil {
		_ = g.out.Close()
	}
	close(g.waitDone)
}

// WaitErr returns the exit error recorded by the reaper, if any.
func (g *Guard) WaitErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waitErr
}

// Shutdown sends a graceful termination signal to the process group and
// waits up to the configured grace period for exit, escalating to a forced
// kill when the process does not exit in time. It fails only when the forced
// kill itself fails.
func (g *Guard) Shutdown() error {
	defer g.markReleased()

	pid := g.PID()
	if pid == 0 || !g.Alive() {
		return nil
	}
	slog.Debug("Stopping process", "name", g.name, "pid", pid)

	_ = signalGroup(pid, syscall.SIGTERM)
	select {
	case <-g.waitDone:
		slog.Debug("Process exited gracefully", "name", g.name, "pid", pid)
		return nil
	case <-time.After(g.shutdownTimeout):
	}

	slog.Warn("Process did not exit in time, escalating to SIGKILL", "name", g.name, "pid", pid)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil && g.Alive() {
		return &ShutdownError{Name: g.name, PID: pid, Err: err}
	}
	select {
	case <-g.waitDone:
	case <-time.After(killReapWait):
		// best-effort; reaper will catch up
	}
	return nil
}

// ForceShutdown kills the process group immediately, skipping the grace
// period. Errors from the kill are returned but the guard is released
// regardless.
func (g *Guard) ForceShutdown() error {
	defer g.markReleased()

	pid := g.PID()
	if pid == 0 || !g.Alive() {
		return nil
	}
	slog.Debug("Force killing process", "name", g.name, "pid", pid)
	if err := signalGroup(pid, syscall.SIGKILL); err != nil && g.Alive() {
		return &ShutdownError{Name: g.name, PID: pid, Err: err}
	}
	select {
	case <-g.waitDone:
	case <-time.After(killReapWait):
	}
	return nil
}

func (g *Guard) markReleased() {
	g.mu.Lock()
	already := g.released
	g.released = true
	release := g.release
	g.mu.Unlock()
	if !already && release != nil {
		release(g)
	}
}
