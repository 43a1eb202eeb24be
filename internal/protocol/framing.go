package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Maximum message size (10 MB)
const MaxMessageSize = 10 * 1024 * 1024

// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize
var ErrMessageTooLarge = errors.New("message too large")

// Framer handles length-prefixed message framing
type Framer struct {
	reader io.Reader
	writer io.Writer
}

// NewFramer creates a new framer
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{
		reader: r,
		writer: w,
	}
}

// ReadRequest reads a length-prefixed request
func (f *Framer) ReadRequest() (*Request, error) {
	var req Request
	if err := f.readJSON(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ReadResponse reads a length-prefixed response
func (f *Framer) ReadResponse() (*Response, error) {
	var resp Response
	if err := f.readJSON(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WriteRequest writes a length-prefixed request
func (f *Framer) WriteRequest(req *Request) error {
	return f.writeJSON(req)
}

// WriteResponse writes a length-prefixed response
func (f *Framer) WriteResponse(resp *Response) error {
	return f.writeJSON(resp)
}

func (f *Framer) readJSON(v interface{}) error {
	body, err := f.ReadRaw()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

func (f *Framer) writeJSON(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return f.WriteRaw(body)
}

// ReadRaw reads raw bytes with length prefix. A clean EOF before the
// length prefix is returned unwrapped as io.EOF.
func (f *Framer) ReadRaw() ([]byte, error) {
	// Read 4-byte length prefix (big-endian)
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(f.reader, lengthBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	// Read body
	body := make([]byte, length)
	if _, err := io.ReadFull(f.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// WriteRaw writes raw bytes with length prefix
func (f *Framer) WriteRaw(data []byte) error {
	if len(data) > MaxMessageSize {
		return ErrMessageTooLarge
	}

	// Single write so concurrent writers on a shared conn never interleave
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	if _, err := f.writer.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}
