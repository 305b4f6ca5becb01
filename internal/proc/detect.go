package proc

import (
	"fmt"
	"net"
	"time"
)

// portProbeTimeout bounds the connect attempt used for port detection.
const portProbeTimeout = 250 * time.Millisecond

// PortInUse reports whether something is already listening on the local TCP
// port. Used as a pre-flight check before spawning a service that wants to
// bind it.
func PortInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), portProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}