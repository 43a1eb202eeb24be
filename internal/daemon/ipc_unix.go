//go:build !windows

package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"zowe.dev/go/zowe/internal/config"
)

// createIPCListener binds a Unix domain socket. The sibling lock file is
// held for the listener's lifetime so a second daemon fails with
// ErrAddressInUse instead of unlinking a live socket. Release unlocks but
// never removes the lock file; every daemon must lock the same inode.
func createIPCListener(addr config.DaemonAddress) (net.Listener, func(), error) {
	socketPath := addr.Value

	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, nil, fmt.Errorf("create socket directory: %w", err)
	}

	lock := flock.New(config.LockFile(addr))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, nil, fmt.Errorf("%w: %s", ErrAddressInUse, socketPath)
	}

	if err := RemoveStale(socketPath); err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, err
	}

	// Owner only
	if err := os.Chmod(socketPath, 0600); err != nil {
		listener.Close()
		_ = lock.Unlock()
		return nil, nil, err
	}

	release := func() {
		// The listener normally unlinks on Close; this covers a socket left
		// behind by a failed accept loop.
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("remove socket", "path", socketPath, "error", err)
		}
		if err := lock.Unlock(); err != nil {
			slog.Debug("release socket lock", "path", lock.Path(), "error", err)
		}
	}

	return listener, release, nil
}

// RemoveStale deletes a leftover socket file at path. A missing file is
// not an error; a non-socket file is never removed.
func RemoveStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat stale socket: %w", err)
	}

	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: not a socket", path)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}
