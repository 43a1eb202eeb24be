// Package testutil provides test utilities for daemon integration tests
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"

	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/session"
)

// TestDaemon is a bound daemon serving on a private address
type TestDaemon struct {
	Lifecycle *daemon.Lifecycle
	Address   config.DaemonAddress
	Owner     string

	// Override is the ZOWE_DAEMON value that resolves to Address
	Override string

	t *testing.T
}

// SocketDir returns a short temporary directory. t.TempDir can exceed the
// unix socket path limit on macOS.
func SocketDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "zt")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// NewTestDaemon binds a daemon owned by owner that runs commands through
// engine. The daemon is closed when the test ends.
func NewTestDaemon(t *testing.T, owner string, engine session.Engine) *TestDaemon {
	t.Helper()

	override := filepath.Join(SocketDir(t), "d.sock")
	if runtime.GOOS == "windows" {
		override = "zowe-test-" + uuid.NewString()
	}
	addr := config.Resolve(runtime.GOOS, "", owner, override)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := daemon.New(daemon.ModeDecision{IsDaemon: true, Address: &addr, Owner: owner}, daemon.Options{
		NewHandler: session.Factory(session.Options{Engine: engine, Logger: logger}),
		Logger:     logger,
		Console:    io.Discard,
	})
	if err != nil {
		t.Fatalf("create daemon: %v", err)
	}
	if err := l.Bind(); err != nil {
		t.Fatalf("bind daemon: %v", err)
	}
	go l.Serve()
	t.Cleanup(func() { l.Close() })

	return &TestDaemon{
		Lifecycle: l,
		Address:   addr,
		Owner:     owner,
		Override:  override,
		t:         t,
	}
}

// UseEnv points ZOWE_DAEMON at this daemon for the rest of the test
func (td *TestDaemon) UseEnv() {
	td.t.Setenv(config.DaemonEnvVar, td.Override)
}

// WaitClosed waits for the daemon to release its address
func (td *TestDaemon) WaitClosed(timeout time.Duration) {
	td.t.Helper()

	select {
	case <-td.Lifecycle.Done():
	case <-time.After(timeout):
		td.t.Fatalf("daemon still %s after %v", td.Lifecycle.State(), timeout)
	}
}

// WaitFor waits for a condition to be true
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("timeout waiting for: %s", msg)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}
