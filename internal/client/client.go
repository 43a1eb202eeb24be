package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"zowe.dev/go/zowe/internal/config"
	"zowe.dev/go/zowe/internal/daemon"
	"zowe.dev/go/zowe/internal/protocol"
)

const (
	dialTimeout    = 5 * time.Second
	defaultTimeout = 30 * time.Second
)

// Client is an IPC client for communicating with the daemon
type Client struct {
	conn    net.Conn
	framer  *protocol.Framer
	user    string
	mu      sync.Mutex
	timeout time.Duration
}

// ErrDaemonNotRunning is returned when the daemon is not running
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Connect creates a client connected to the daemon for the current user
func Connect() (*Client, error) {
	addr, err := config.ResolveAddress()
	if err != nil {
		return nil, fmt.Errorf("resolve address: %w", err)
	}
	user, err := config.CurrentUser()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return ConnectTo(addr, user)
}

// ConnectTo creates a client connected to a specific address, sending
// requests on behalf of user
func ConnectTo(addr config.DaemonAddress, user string) (*Client, error) {
	conn, err := dial(addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	return newClient(conn, user), nil
}

func newClient(conn net.Conn, user string) *Client {
	return &Client{
		conn:    conn,
		framer:  protocol.NewFramer(conn, conn),
		user:    user,
		timeout: defaultTimeout,
	}
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call makes an IPC call and returns the raw result. Daemon-side failures
// are returned as *protocol.Error.
func (c *Client) Call(method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := protocol.NewRequest(uuid.NewString(), method, c.user, params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	if c.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.timeout))
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := c.framer.WriteRequest(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	resp, err := c.framer.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}

// CallResult makes an IPC call and unmarshals the result
func (c *Client) CallResult(method string, params interface{}, result interface{}) error {
	raw, err := c.Call(method, params)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// Ping checks if the daemon is responsive
func (c *Client) Ping() error {
	_, err := c.Call(protocol.MethodPing, nil)
	return err
}

// Status gets the daemon status
func (c *Client) Status() (*daemon.Status, error) {
	var status daemon.Status
	if err := c.CallResult(protocol.MethodStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Exec runs a command line inside the daemon
func (c *Client) Exec(args []string, stdin []byte) (*protocol.ExecResult, error) {
	var result protocol.ExecResult
	params := protocol.ExecParams{Args: args, Stdin: stdin}
	if err := c.CallResult(protocol.MethodExec, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logs fetches buffered daemon log entries
func (c *Client) Logs(level string, limit int) ([]daemon.LogEntry, error) {
	var entries []daemon.LogEntry
	params := protocol.LogsParams{Level: level, Limit: limit}
	if err := c.CallResult(protocol.MethodLogs, params, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Shutdown asks the daemon to close its listener
func (c *Client) Shutdown() error {
	_, err := c.Call(protocol.MethodShutdown, nil)
	return err
}

// SetTimeout sets the request timeout; zero disables it
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// IsRunning checks if the daemon is running by attempting to connect
func IsRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	defer client.Close()

	return client.Ping() == nil
}

// RequireDaemon returns an error if the daemon is not running
func RequireDaemon() error {
	if !IsRunning() {
		return ErrDaemonNotRunning
	}
	return nil
}
