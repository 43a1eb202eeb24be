//go:build !windows

package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/session"
	"zowe.dev/go/zowe/internal/testutil"
)

// startTestDaemon serves this package's command tree and points
// ZOWE_DAEMON at it
func startTestDaemon(t *testing.T) *testutil.TestDaemon {
	t.Helper()

	user, err := config.CurrentUser()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}

	engine := func(ctx context.Context, inv session.Invocation) int {
		return Run(ctx, inv.Args, IOStreams{In: inv.Stdin, Out: inv.Stdout, ErrOut: inv.Stderr})
	}

	td := testutil.NewTestDaemon(t, user, engine)
	td.UseEnv()
	return td
}

func TestDaemonExecRunsInDaemon(t *testing.T) {
	SetVersion("9.9.9")
	defer SetVersion("dev")
	startTestDaemon(t)

	code, out, _ := runArgs(t, "daemon", "exec", "--", "version")
	if code != 0 {
		t.Fatalf("exit code: got %d", code)
	}
	if out != "zowe version 9.9.9\n" {
		t.Errorf("output: got %q", out)
	}
}

func TestDaemonExecPropagatesFailure(t *testing.T) {
	startTestDaemon(t)

	code, _, errOut := runArgs(t, "daemon", "exec", "bogus")
	if code != 1 {
		t.Errorf("exit code: got %d, want 1", code)
	}
	if strings.Count(errOut, "Error:") != 1 {
		t.Errorf("stderr should carry the daemon-side error once: %q", errOut)
	}
}

func TestDaemonStatus(t *testing.T) {
	startTestDaemon(t)

	code, out, _ := runArgs(t, "daemon", "status")
	if code != 0 {
		t.Fatalf("exit code: got %d", code)
	}
	if !strings.Contains(out, "State:       bound") || !strings.Contains(out, "PID:") {
		t.Errorf("status output: %q", out)
	}
}

func TestDaemonStop(t *testing.T) {
	td := startTestDaemon(t)

	code, out, _ := runArgs(t, "daemon", "stop")
	if code != 0 {
		t.Fatalf("exit code: got %d", code)
	}
	if !strings.Contains(out, "Daemon stopped.") {
		t.Errorf("stop output: %q", out)
	}

	td.WaitClosed(5 * time.Second)
	if td.Lifecycle.State() != daemon.StateClosed {
		t.Errorf("State: got %s, want closed", td.Lifecycle.State())
	}
}

func TestDaemonNotRunning(t *testing.T) {
	t.Setenv(config.DaemonEnvVar, filepath.Join(t.TempDir(), "none.sock"))

	code, out, _ := runArgs(t, "daemon", "status")
	if code != 0 || !strings.HasPrefix(out, "Daemon is not running.\n") {
		t.Errorf("status: code=%d out=%q", code, out)
	}

	code, _, errOut := runArgs(t, "daemon", "exec", "--", "version")
	if code != 1 || !strings.Contains(errOut, "daemon is not running") {
		t.Errorf("exec: code=%d stderr=%q", code, errOut)
	}
}
