package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"zowe.dev/go/zowe/internal/protocol"
)

// serveOnce answers a single request with respond
func serveOnce(t *testing.T, conn net.Conn, respond func(*protocol.Request) *protocol.Response) {
	t.Helper()
	go func() {
		defer conn.Close()
		framer := protocol.NewFramer(conn, conn)
		req, err := framer.ReadRequest()
		if err != nil {
			return
		}
		framer.WriteResponse(respond(req))
	}()
}

func TestCallSendsUserAndVersion(t *testing.T) {
	server, conn := net.Pipe()
	c := newClient(conn, "alice")
	defer c.Close()

	seen := make(chan *protocol.Request, 1)
	serveOnce(t, server, func(req *protocol.Request) *protocol.Response {
		seen <- req
		resp, _ := protocol.NewResult(req.ID, map[string]bool{"pong": true})
		return resp
	})

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	req := <-seen
	if req.User != "alice" || req.Version != protocol.ProtocolVersion || req.Method != protocol.MethodPing {
		t.Errorf("request: got %+v", req)
	}
	if req.ID == "" {
		t.Error("request ID should be set")
	}
}

func TestCallReturnsProtocolError(t *testing.T) {
	server, conn := net.Pipe()
	c := newClient(conn, "mallory")
	defer c.Close()

	serveOnce(t, server, func(req *protocol.Request) *protocol.Response {
		return protocol.NewError(req.ID, protocol.ErrCodePermissionDenied, "daemon is owned by alice")
	})

	_, err := c.Exec([]string{"whoami"}, nil)
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Code != protocol.ErrCodePermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCallRejectsMismatchedID(t *testing.T) {
	server, conn := net.Pipe()
	c := newClient(conn, "alice")
	defer c.Close()

	serveOnce(t, server, func(req *protocol.Request) *protocol.Response {
		resp, _ := protocol.NewResult("someone-else", nil)
		return resp
	})

	if err := c.Ping(); err == nil {
		t.Fatal("expected error for mismatched response id")
	}
}

func TestCallTimesOut(t *testing.T) {
	server, conn := net.Pipe()
	defer server.Close()
	c := newClient(conn, "alice")
	defer c.Close()
	c.SetTimeout(20 * time.Millisecond)

	// Read the request but never answer
	go protocol.NewFramer(server, server).ReadRequest()

	if err := c.Ping(); err == nil {
		t.Fatal("expected timeout error")
	}
}
