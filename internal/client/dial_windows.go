//go:build windows

package client

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"

	"zowe.dev/go/zowe/internal/config"
)

func dial(addr config.DaemonAddress, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(addr.Value, &timeout)
}
