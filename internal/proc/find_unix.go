//go:build !windows

package proc

import (
	"os/exec"
	"strconv"
	"strings"
)

// FindProcessByName returns the pids of running processes whose executable
// base name matches name exactly. The match is against the command column of
// ps so log files or arguments mentioning the name do not count.
func FindProcessByName(name string) ([]int, error) {
	out, err := exec.Command("ps", "-eo", "pid,comm").Output()
	if err != nil {
		return nil, err
	}
	var pids []int
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		comm := fields[1]
		if comm != name && !strings.HasSuffix(comm, "/"+name) {
			continue
		}
		if pid, err := strconv.Atoi(fields[0]); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}
