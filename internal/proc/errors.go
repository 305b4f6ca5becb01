package proc

import "fmt"

// StartError reports that a process could not be spawned or exited
// immediately after spawn.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to start process %s: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// ShutdownError reports that the forced kill itself failed during shutdown.
// Graceful-termination timeouts escalate to a forced kill and are not errors.
type ShutdownError struct {
	Name string
	PID  int
	Err  error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("failed to shut down process %s (pid %d): %v", e.Name, e.PID, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }
