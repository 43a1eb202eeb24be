//go:build !windows

package client

import (
	"net"
	"time"

	"zowe.dev/go/zowe/internal/config"
)

func dial(addr config.DaemonAddress, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", addr.Value, timeout)
}
