package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"zowe.dev/go/zowe/internal/config"
)

// State is the listener lifecycle state
type State int

const (
	StateUnbound State = iota
	StateBound
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrAddressInUse is returned when another listener holds the address
	ErrAddressInUse = errors.New("daemon address already in use")
	// ErrNotDaemon is returned when a lifecycle is built from a one-shot decision
	ErrNotDaemon = errors.New("mode decision does not start a daemon")
)

// shutdownSignals route to Close. SIGKILL is absent because it cannot be
// caught; supervisors stop the daemon with SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// listen binds the platform listener; tests replace it
var listen = createIPCListener

// signalsInstalled runs once Run is observing shutdownSignals
var signalsInstalled = func() {}

// Handler serves one accepted connection until it finishes
type Handler interface {
	Run(ctx context.Context)
}

// HandlerFactory builds the handler for one accepted connection
type HandlerFactory func(conn net.Conn, ctl Controller, owner string) Handler

// Controller is the view of the listener given to connection handlers
type Controller interface {
	Shutdown() error
	Status() Status
	Logs(opts QueryOpts) []LogEntry
	Metrics() *Metrics
	AllowRequest(session, method string) error
	EndSession(session string)
}

// Status is reported to clients by the status method
type Status struct {
	State     string                 `json:"state"`
	Address   config.DaemonAddress   `json:"address"`
	Owner     string                 `json:"owner"`
	PID       int                    `json:"pid"`
	Uptime    string                 `json:"uptime"`
	StartTime time.Time              `json:"start_time"`
	Limiter   ConnectionLimiterStats `json:"limiter"`
	Requests  RequestLimitStats      `json:"requests"`
	Metrics   *MetricsSnapshot       `json:"metrics"`
}

// Options configures a Lifecycle
type Options struct {
	NewHandler HandlerFactory
	Logger     *slog.Logger
	LogBuffer  *LogBuffer
	Console    io.Writer // receives the bind confirmation
	Limiter    *ConnectionLimiterConfig
	Requests   *RequestLimitConfig
}

// Lifecycle owns the daemon listener from bind to close
type Lifecycle struct {
	mu       sync.Mutex
	state    State
	listener net.Listener
	release  func()
	started  time.Time

	addr       config.DaemonAddress
	owner      string
	newHandler HandlerFactory
	logger     *slog.Logger
	logBuffer  *LogBuffer
	console    io.Writer
	limiter    *ConnectionLimiter
	requests   *RequestLimiter
	metrics    *Metrics

	// ctx is handed to every session and canceled on close
	ctx    context.Context
	cancel context.CancelFunc

	// done is closed once a terminal state is reached and the address
	// has been released
	done     chan struct{}
	doneOnce sync.Once
}

// New creates an unbound lifecycle for a daemon decision
func New(decision ModeDecision, opts Options) (*Lifecycle, error) {
	if !decision.IsDaemon || decision.Address == nil {
		return nil, ErrNotDaemon
	}
	if opts.NewHandler == nil {
		return nil, errors.New("connection handler factory is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	logBuffer := opts.LogBuffer
	if logBuffer == nil {
		logBuffer = NewLogBuffer(LogBufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Lifecycle{
		state:      StateUnbound,
		addr:       *decision.Address,
		owner:      decision.Owner,
		newHandler: opts.NewHandler,
		logger:     logger,
		logBuffer:  logBuffer,
		console:    console,
		limiter:    NewConnectionLimiter(opts.Limiter),
		requests:   NewRequestLimiter(opts.Requests),
		metrics:    NewMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}, nil
}

// State returns the current lifecycle state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Address returns the address the lifecycle binds to
func (l *Lifecycle) Address() config.DaemonAddress {
	return l.addr
}

// Bind moves UNBOUND to BOUND. A bind error is logged and moves the
// lifecycle to FAILED; nothing is left bound.
func (l *Lifecycle) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateUnbound {
		return fmt.Errorf("bind: listener is %s", l.state)
	}

	listener, release, err := listen(l.addr)
	if err != nil {
		l.state = StateFailed
		l.cancel()
		l.finish()
		l.logger.Error("daemon server error", "address", l.addr.Value, "error", err)
		return fmt.Errorf("bind %s: %w", l.addr.Value, err)
	}

	l.listener = listener
	l.release = release
	l.started = time.Now()
	l.state = StateBound

	l.logger.Debug("daemon server bound", "address", l.addr.Value, "owner", l.owner)
	fmt.Fprintf(l.console, "server bound %s\n", l.addr.Value)
	return nil
}

// Run binds, installs signal handling and serves until the listener is
// closed by a signal, a Shutdown request or ctx. It returns the listener
// error when the accept loop fails.
func (l *Lifecycle) Run(ctx context.Context) error {
	if err := l.Bind(); err != nil {
		return err
	}

	// Signals are only observed once the address is held. Later signals
	// stay captured by this context until Run returns, so a repeated
	// interrupt never re-enters Close.
	sigCtx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()
	signalsInstalled()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- l.Serve()
	}()

	select {
	case <-sigCtx.Done():
		l.logger.Info("shutting down", "reason", context.Cause(sigCtx))
		closeErr := l.Close()
		err := <-serveErr
		<-l.done
		if err != nil {
			return err
		}
		return closeErr
	case err := <-serveErr:
		// Serve returns after Shutdown or on failure. A Shutdown may still
		// be releasing the address, so wait for it.
		if closeErr := l.Close(); err == nil {
			err = closeErr
		}
		<-l.done
		return err
	}
}

// Done is closed when the lifecycle has reached CLOSED or FAILED and the
// address has been released
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

func (l *Lifecycle) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

// Shutdown is the handler-facing name for Close
func (l *Lifecycle) Shutdown() error {
	return l.Close()
}

// Close releases the listener and its address. It is idempotent: calls
// after the first, including those made while closing is in progress,
// return nil without touching the listener.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	switch l.state {
	case StateUnbound:
		l.state = StateClosed
		l.mu.Unlock()
		l.cancel()
		l.finish()
		return nil
	case StateClosing, StateClosed:
		l.mu.Unlock()
		return nil
	case StateFailed:
		release := l.takeRelease()
		l.mu.Unlock()
		release()
		l.finish()
		return nil
	}

	l.state = StateClosing
	listener := l.listener
	release := l.takeRelease()
	l.mu.Unlock()

	l.cancel()

	var err error
	if cerr := listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = fmt.Errorf("close listener: %w", cerr)
	}
	release()

	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
	l.finish()

	l.logger.Debug("server closed", "address", l.addr.Value)
	return err
}

// takeRelease hands out the address cleanup at most once. Caller holds mu.
func (l *Lifecycle) takeRelease() func() {
	release := l.release
	l.release = nil
	if release == nil {
		return func() {}
	}
	return release
}

// fail moves BOUND to FAILED after an asynchronous listener error and
// releases the address. It returns nil when the error was caused by Close.
func (l *Lifecycle) fail(err error) error {
	l.mu.Lock()
	if l.state != StateBound {
		l.mu.Unlock()
		return nil
	}
	l.state = StateFailed
	listener := l.listener
	release := l.takeRelease()
	l.mu.Unlock()

	l.cancel()
	l.metrics.RecordError("listener", err.Error())
	l.logger.Error("daemon server error", "address", l.addr.Value, "error", err)

	listener.Close()
	release()
	l.finish()
	return fmt.Errorf("daemon listener: %w", err)
}

// Status reports the current lifecycle state and metrics
func (l *Lifecycle) Status() Status {
	l.mu.Lock()
	state := l.state
	started := l.started
	l.mu.Unlock()

	var uptime string
	if !started.IsZero() {
		uptime = time.Since(started).Round(time.Second).String()
	}

	return Status{
		State:     state.String(),
		Address:   l.addr,
		Owner:     l.owner,
		PID:       os.Getpid(),
		Uptime:    uptime,
		StartTime: started,
		Limiter:   l.limiter.Stats(),
		Requests:  l.requests.Stats(),
		Metrics:   l.metrics.Snapshot(),
	}
}

// Logs returns buffered log entries
func (l *Lifecycle) Logs(opts QueryOpts) []LogEntry {
	return l.logBuffer.Query(opts)
}

// Metrics returns the lifecycle's metrics collector
func (l *Lifecycle) Metrics() *Metrics {
	return l.metrics
}

// AllowRequest applies the request rate limits to one session request
func (l *Lifecycle) AllowRequest(session, method string) error {
	return l.requests.Allow(session, method)
}

// EndSession forgets the rate limit state of a finished session
func (l *Lifecycle) EndSession(session string) {
	l.requests.RemoveSession(session)
}
