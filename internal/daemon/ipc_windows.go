//go:build windows

package daemon

import (
	"errors"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"

	"zowe.dev/go/zowe/internal/config"
)

// createIPCListener creates a Windows named pipe listener. go-winio opens
// the first instance exclusively, so a second daemon on the same name is
// refused by the OS. The pipe DACL grants access to the current user only.
func createIPCListener(addr config.DaemonAddress) (net.Listener, func(), error) {
	sddl, err := ownerOnlySDDL()
	if err != nil {
		return nil, nil, err
	}

	// Byte stream, framed by the session protocol
	cfg := &winio.PipeConfig{
		SecurityDescriptor: sddl,
		MessageMode:        false,
		InputBufferSize:    65536,
		OutputBufferSize:   65536,
	}

	listener, err := winio.ListenPipe(addr.Value, cfg)
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) || errors.Is(err, windows.ERROR_PIPE_BUSY) {
			return nil, nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr.Value)
		}
		return nil, nil, err
	}

	// Named pipes disappear with their last handle
	return listener, func() {}, nil
}

// ownerOnlySDDL returns a protected DACL allowing only the process user
func ownerOnlySDDL() (string, error) {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("get process user: %w", err)
	}
	return "D:P(A;;GA;;;" + user.User.Sid.String() + ")", nil
}

// RemoveStale is a no-op for named pipes
func RemoveStale(path string) error {
	return nil
}
