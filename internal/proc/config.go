package proc

import (
	"os/exec"
	"strings"
	"time"
)

// Config describes a child process to be supervised.
type Config struct {
	Name            string        // logical service name; one live guard per name
	Command         string        // executable path, or a full command line when Args is empty
	Args            []string      // explicit arguments; disables shell parsing of Command
	Dir             string        // optional working dir
	Env             []string      // optional extra env appended to the parent environment
	LogPath         string        // explicit log file; overrides the supervisor's log config
	ShutdownTimeout time.Duration // grace period before SIGKILL escalation
}

// buildCommand constructs an *exec.Cmd for the config. When Args is set the
// command is executed directly. Otherwise Command is treated as a command
// line: it avoids invoking a shell when not necessary, and respects an
// explicit shell invocation already present in the string (e.g. "sh -c '...'")
// without double-wrapping.
func (c Config) buildCommand() *exec.Cmd {
	if len(c.Args) > 0 {
		// #nosec G204
		return exec.Command(c.Command, c.Args...)
	}
	cmdStr := strings.TrimSpace(c.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	if afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr, returning the argument after "-c" verbatim so
// quoting is not broken.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return after, true
		}
	}
	return "", false
}

// ProcessName returns the base name the OS will report for this command,
// used for shared-instance matching.
func (c Config) ProcessName() string {
	if len(c.Args) > 0 || c.Command == "" {
		return baseName(c.Command)
	}
	parts := strings.Fields(c.Command)
	return baseName(parts[0])
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
