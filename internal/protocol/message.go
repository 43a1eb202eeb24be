package protocol

import (
	"encoding/json"
)

// ProtocolVersion is sent by clients so the daemon can reject mismatched peers
const ProtocolVersion = "1"

// Method names understood by a daemon session
const (
	MethodPing     = "ping"
	MethodExec     = "exec"
	MethodStatus   = "status"
	MethodLogs     = "logs"
	MethodShutdown = "shutdown"

	// MethodUnknown is the bucket for any other method name in counters
	// and rate limits
	MethodUnknown = "unknown"
)

// MetricName returns method when it is a known method and MethodUnknown
// otherwise, so client-chosen names never become map keys.
func MetricName(method string) string {
	switch method {
	case MethodPing, MethodExec, MethodStatus, MethodLogs, MethodShutdown:
		return method
	default:
		return MethodUnknown
	}
}

// Common error codes
const (
	ErrCodeInvalidRequest   = -32600
	ErrCodeMethodNotFound   = -32601
	ErrCodeInvalidParams    = -32602
	ErrCodeInternalError    = -32603
	ErrCodePermissionDenied = -32001
	ErrCodeShuttingDown     = -32002
	ErrCodeRateLimited      = -32003
)

// Request is a single call from a client to the daemon
type Request struct {
	ID      string          `json:"id"`
	Version string          `json:"version,omitempty"`
	Method  string          `json:"method"`
	User    string          `json:"user"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers the request with the same ID
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is a protocol-level failure
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ExecParams runs one command line through the daemon's command engine
type ExecParams struct {
	Args  []string `json:"args"`
	Stdin []byte   `json:"stdin,omitempty"`
}

// ExecResult carries the captured output of an exec call
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   []byte `json:"stdout,omitempty"`
	Stderr   []byte `json:"stderr,omitempty"`
}

// LogsParams filters the daemon log buffer
type LogsParams struct {
	Level string `json:"level,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// NewRequest builds a request with an encoded payload
func NewRequest(id, method, user string, params interface{}) (*Request, error) {
	req := &Request{
		ID:      id,
		Version: ProtocolVersion,
		Method:  method,
		User:    user,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = data
	}
	return req, nil
}

// ParseParams unmarshals the request params
func (r *Request) ParseParams(v interface{}) error {
	if len(r.Params) == 0 {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// NewResult builds a successful response
func NewResult(id string, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: data}, nil
}

// NewError builds a failed response
func NewError(id string, code int, message string) *Response {
	return &Response{
		ID:    id,
		Error: &Error{Code: code, Message: message},
	}
}
