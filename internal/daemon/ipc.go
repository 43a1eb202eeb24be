package daemon

import (
	"fmt"
	"net"
	"runtime/debug"
)

// Serve runs the accept loop on a bound listener. Each connection is handed
// to its own goroutine; Serve never waits for a handler. It returns nil
// once Close has been called and the listener error otherwise.
func (l *Lifecycle) Serve() error {
	l.mu.Lock()
	state := l.state
	listener := l.listener
	l.mu.Unlock()

	if state != StateBound {
		return fmt.Errorf("serve: listener is %s", state)
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			return l.fail(err)
		}
		l.dispatch(conn)
	}
}

// dispatch starts one handler for conn. The limiter check is the only work
// done on the accept path.
func (l *Lifecycle) dispatch(conn net.Conn) {
	if err := l.limiter.Allow(); err != nil {
		l.metrics.ConnectionsRejected.Add(1)
		l.logger.Warn("connection rejected", "error", err)
		conn.Close()
		return
	}
	l.metrics.ConnectionsAccepted.Add(1)

	go func() {
		l.metrics.ActiveConnections.Add(1)
		defer func() {
			if r := recover(); r != nil {
				l.metrics.HandlerFailures.Add(1)
				l.metrics.RecordError("handler", fmt.Sprint(r))
				l.logger.Error("connection handler panic", "panic", r, "stack", string(debug.Stack()))
				conn.Close()
			}
			l.metrics.ActiveConnections.Add(-1)
			l.limiter.Release()
		}()

		handler := l.newHandler(conn, l, l.owner)
		handler.Run(l.ctx)
	}()
}
