//go:build !linux

package session

import "net"

// checkPeer relies on socket permissions and the owner check on platforms
// without SO_PEERCRED
func checkPeer(conn net.Conn) error {
	return nil
}
