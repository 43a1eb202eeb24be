// Package session serves one client connection of the daemon: it reads
// framed requests, checks that they come from the daemon owner, and runs
// commands through the command engine.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/protocol"
)

// Invocation is one command line executed on behalf of a client
type Invocation struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Engine runs an invocation to completion and returns its exit code
type Engine func(ctx context.Context, inv Invocation) int

// Options configures sessions built by Factory
type Options struct {
	Engine         Engine
	Logger         *slog.Logger
	RequestTimeout time.Duration // zero means no deadline
}

// Session serves requests on a single connection
type Session struct {
	id      string
	conn    net.Conn
	ctl     daemon.Controller
	owner   string
	engine  Engine
	framer  *protocol.Framer
	logger  *slog.Logger
	timeout time.Duration
}

// Factory returns the daemon handler factory for opts
func Factory(opts Options) daemon.HandlerFactory {
	return func(conn net.Conn, ctl daemon.Controller, owner string) daemon.Handler {
		return New(conn, ctl, owner, opts)
	}
}

// New creates a session for an accepted connection
func New(conn net.Conn, ctl daemon.Controller, owner string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	return &Session{
		id:      id,
		conn:    conn,
		ctl:     ctl,
		owner:   owner,
		engine:  opts.Engine,
		framer:  protocol.NewFramer(conn, conn),
		logger:  logger.With("session", id),
		timeout: opts.RequestTimeout,
	}
}

// Run serves requests until the client hangs up, a protocol error occurs,
// or ctx is canceled. The connection is always closed on return.
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()
	defer s.ctl.EndSession(s.id)

	// Unblock a pending read when the daemon shuts down
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.logger.Debug("session started")
	defer s.logger.Debug("session ended")

	if err := checkPeer(s.conn); err != nil {
		s.logger.Warn("peer rejected", "error", err)
		s.framer.WriteResponse(protocol.NewError("", protocol.ErrCodePermissionDenied, err.Error()))
		return
	}

	for {
		req, err := s.framer.ReadRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.logger.Debug("read request", "error", err)
			}
			return
		}

		resp, next := s.handle(ctx, req)
		if err := s.framer.WriteResponse(resp); err != nil {
			s.logger.Debug("write response", "error", err)
			return
		}

		switch next {
		case stopSession:
			return
		case shutdownDaemon:
			s.logger.Info("shutdown requested by client")
			if err := s.ctl.Shutdown(); err != nil {
				s.logger.Warn("shutdown", "error", err)
			}
			return
		}
	}
}

type nextStep int

const (
	keepServing nextStep = iota
	stopSession
	shutdownDaemon
)

func (s *Session) handle(ctx context.Context, req *protocol.Request) (*protocol.Response, nextStep) {
	start := time.Now()
	method := protocol.MetricName(req.Method)

	if ctx.Err() != nil {
		return protocol.NewError(req.ID, protocol.ErrCodeShuttingDown, "daemon is shutting down"), stopSession
	}

	if req.Version != "" && req.Version != protocol.ProtocolVersion {
		return protocol.NewError(req.ID, protocol.ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported protocol version %q", req.Version)), stopSession
	}

	if req.User != s.owner {
		s.logger.Warn("request from non-owner", "user", req.User, "method", req.Method)
		s.ctl.Metrics().RecordRequest(method, time.Since(start), errors.New("permission denied"))
		return protocol.NewError(req.ID, protocol.ErrCodePermissionDenied,
			fmt.Sprintf("daemon is owned by %s", s.owner)), stopSession
	}

	if err := s.ctl.AllowRequest(s.id, method); err != nil {
		s.logger.Warn("request rate limited", "method", req.Method, "error", err)
		s.ctl.Metrics().RecordRequest(method, time.Since(start), err)
		return protocol.NewError(req.ID, protocol.ErrCodeRateLimited, err.Error()), keepServing
	}

	result, next, err := s.dispatch(ctx, req)
	s.ctl.Metrics().RecordRequest(method, time.Since(start), err)
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			return protocol.NewError(req.ID, perr.Code, perr.Message), next
		}
		return protocol.NewError(req.ID, protocol.ErrCodeInternalError, err.Error()), next
	}

	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		return protocol.NewError(req.ID, protocol.ErrCodeInternalError, "failed to encode result"), next
	}
	return resp, next
}

func (s *Session) dispatch(ctx context.Context, req *protocol.Request) (interface{}, nextStep, error) {
	switch req.Method {
	case protocol.MethodPing:
		return map[string]bool{"pong": true}, keepServing, nil

	case protocol.MethodExec:
		var params protocol.ExecParams
		if err := req.ParseParams(&params); err != nil {
			return nil, keepServing, &protocol.Error{Code: protocol.ErrCodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
		return s.exec(ctx, params), keepServing, nil

	case protocol.MethodStatus:
		return s.ctl.Status(), keepServing, nil

	case protocol.MethodLogs:
		var params protocol.LogsParams
		if err := req.ParseParams(&params); err != nil {
			return nil, keepServing, &protocol.Error{Code: protocol.ErrCodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
		return s.ctl.Logs(daemon.QueryOpts{Level: params.Level, Limit: params.Limit}), keepServing, nil

	case protocol.MethodShutdown:
		return map[string]bool{"shutdown": true}, shutdownDaemon, nil

	default:
		return nil, keepServing, &protocol.Error{Code: protocol.ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (s *Session) exec(ctx context.Context, params protocol.ExecParams) *protocol.ExecResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	s.logger.Debug("exec", "args", params.Args)

	code := s.engine(ctx, Invocation{
		Args:   params.Args,
		Stdin:  bytes.NewReader(params.Stdin),
		Stdout: &stdout,
		Stderr: &stderr,
	})

	return &protocol.ExecResult{
		ExitCode: code,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
	}
}
