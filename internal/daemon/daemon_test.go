package daemon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"zowe.dev/go/zowe/internal/config"
)

type handlerFunc func(ctx context.Context)

func (f handlerFunc) Run(ctx context.Context) { f(ctx) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func idleFactory(conn net.Conn, ctl Controller, owner string) Handler {
	return handlerFunc(func(ctx context.Context) { conn.Close() })
}

// fakeListener fails Accept with err after being handed out
type fakeListener struct {
	err    error
	closed atomic.Bool
}

func (f *fakeListener) Accept() (net.Conn, error) { return nil, f.err }
func (f *fakeListener) Close() error {
	f.closed.Store(true)
	return nil
}
func (f *fakeListener) Addr() net.Addr { return &net.UnixAddr{Name: "fake", Net: "unix"} }

func withListen(t *testing.T, fn func(config.DaemonAddress) (net.Listener, func(), error)) {
	t.Helper()
	orig := listen
	listen = fn
	t.Cleanup(func() { listen = orig })
}

func testDecision(value string) ModeDecision {
	addr := config.DaemonAddress{Kind: config.KindUnixPath, Value: value}
	return ModeDecision{IsDaemon: true, Address: &addr, Owner: "tester"}
}

func TestNewRejectsOneShot(t *testing.T) {
	if _, err := New(ModeDecision{}, Options{NewHandler: idleFactory}); !errors.Is(err, ErrNotDaemon) {
		t.Errorf("expected ErrNotDaemon, got %v", err)
	}
	if _, err := New(testDecision("/tmp/x.sock"), Options{}); err == nil {
		t.Error("expected error without handler factory")
	}
}

func TestBindFailureIsTerminal(t *testing.T) {
	bindErr := errors.New("permission denied")
	withListen(t, func(config.DaemonAddress) (net.Listener, func(), error) {
		return nil, nil, bindErr
	})

	l, err := New(testDecision("/nowhere/d.sock"), Options{NewHandler: idleFactory, Logger: discardLogger(), Console: io.Discard})
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Run(context.Background()); !errors.Is(err, bindErr) {
		t.Fatalf("Run: expected bind error, got %v", err)
	}
	if l.State() != StateFailed {
		t.Errorf("State: got %s, want failed", l.State())
	}

	// No way out of FAILED
	if err := l.Bind(); err == nil {
		t.Error("Bind after failure should error")
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close after failure: %v", err)
	}
	if l.State() != StateFailed {
		t.Errorf("State after Close: got %s, want failed", l.State())
	}
}

func TestServeFailureReleasesAddress(t *testing.T) {
	acceptErr := errors.New("too many open files")
	fake := &fakeListener{err: acceptErr}
	var released atomic.Int32
	withListen(t, func(config.DaemonAddress) (net.Listener, func(), error) {
		return fake, func() { released.Add(1) }, nil
	})

	buf := NewLogBuffer(10)
	l, err := New(testDecision("/tmp/d.sock"), Options{
		NewHandler: idleFactory,
		Logger:     NewLogger(config.LoggingConfig{Level: "debug"}, buf, io.Discard),
		LogBuffer:  buf,
		Console:    io.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = l.Run(context.Background())
	if !errors.Is(err, acceptErr) {
		t.Fatalf("Run: expected accept error, got %v", err)
	}
	if l.State() != StateFailed {
		t.Errorf("State: got %s, want failed", l.State())
	}
	if !fake.closed.Load() {
		t.Error("listener should be closed after failure")
	}
	if released.Load() != 1 {
		t.Errorf("address released %d times, want 1", released.Load())
	}

	if errs := l.Logs(QueryOpts{Level: "ERROR"}); len(errs) == 0 {
		t.Error("failure should be logged at error level")
	}
	if l.Status().Metrics.RecentErrors[0].Type != "listener" {
		t.Error("failure should be recorded in metrics")
	}
}

func TestCloseBeforeBind(t *testing.T) {
	l, err := New(testDecision("/tmp/d.sock"), Options{NewHandler: idleFactory, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.State() != StateClosed {
		t.Errorf("State: got %s, want closed", l.State())
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done should be closed")
	}
	if err := l.Bind(); err == nil {
		t.Error("Bind after Close should error")
	}
}

func TestBindPrintsConfirmation(t *testing.T) {
	fake := &fakeListener{err: net.ErrClosed}
	withListen(t, func(config.DaemonAddress) (net.Listener, func(), error) {
		return fake, func() {}, nil
	})

	var console bytes.Buffer
	l, err := New(testDecision("/tmp/confirm.sock"), Options{NewHandler: idleFactory, Logger: discardLogger(), Console: &console})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Bind(); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := console.String(); got != "server bound /tmp/confirm.sock\n" {
		t.Errorf("console: got %q", got)
	}

	status := l.Status()
	if status.State != "bound" || status.Owner != "tester" || status.Address.Value != "/tmp/confirm.sock" {
		t.Errorf("Status: got %+v", status)
	}

	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{
		StateUnbound: "unbound",
		StateBound:   "bound",
		StateClosing: "closing",
		StateClosed:  "closed",
		StateFailed:  "failed",
	}
	for s, name := range want {
		if s.String() != name {
			t.Errorf("%d: got %s, want %s", int(s), s.String(), name)
		}
	}
	if State(42).String() == "" {
		t.Error("unknown state should still print")
	}
}

func waitState(t *testing.T, l *Lifecycle, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if l.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state: got %s, want %s", l.State(), want)
}
