//go:build !windows

package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/session"
	"zowe.dev/go/zowe/internal/testutil"
)

func echoEngine(ctx context.Context, inv session.Invocation) int {
	fmt.Fprint(inv.Stdout, strings.Join(inv.Args, " "))
	return 0
}

func TestRoundTrip(t *testing.T) {
	td := testutil.NewTestDaemon(t, "alice", echoEngine)

	c, err := ConnectTo(td.Address, "alice")
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	result, err := c.Exec([]string{"zos-files", "list"}, nil)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if string(result.Stdout) != "zos-files list" || result.ExitCode != 0 {
		t.Errorf("Exec: got %+v", result)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != "bound" || status.Owner != "alice" || status.PID != os.Getpid() {
		t.Errorf("Status: got %+v", status)
	}
	if status.Metrics.Counters.RequestsServed < 2 {
		t.Errorf("RequestsServed: got %d", status.Metrics.Counters.RequestsServed)
	}

	if _, err := c.Logs("", 10); err != nil {
		t.Fatalf("Logs: %v", err)
	}

	if err := c.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	td.WaitClosed(5 * time.Second)
	if td.Lifecycle.State() != daemon.StateClosed {
		t.Errorf("State: got %s, want closed", td.Lifecycle.State())
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	td := testutil.NewTestDaemon(t, "alice", echoEngine)

	first, err := ConnectTo(td.Address, "alice")
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	// A rejected session does not affect the others
	intruder, err := ConnectTo(td.Address, "mallory")
	if err != nil {
		t.Fatal(err)
	}
	defer intruder.Close()
	if err := intruder.Ping(); err == nil {
		t.Error("non-owner ping should fail")
	}

	if err := first.Ping(); err != nil {
		t.Errorf("owner ping after rejection: %v", err)
	}
}

func TestConnectToMissingDaemon(t *testing.T) {
	addr := config.DaemonAddress{Kind: config.KindUnixPath, Value: filepath.Join(testutil.SocketDir(t), "none.sock")}
	if _, err := ConnectTo(addr, "alice"); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}
