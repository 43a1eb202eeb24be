package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFramerRequestResponse(t *testing.T) {
	buf := &bytes.Buffer{}
	framer := NewFramer(buf, buf)

	req, err := NewRequest("1", MethodExec, "alice", ExecParams{Args: []string{"version"}})
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if err := framer.WriteRequest(req); err != nil {
		t.Fatalf("Failed to write request: %v", err)
	}

	resp, err := NewResult("1", ExecResult{ExitCode: 3, Stdout: []byte("out")})
	if err != nil {
		t.Fatalf("Failed to create response: %v", err)
	}
	if err := framer.WriteResponse(resp); err != nil {
		t.Fatalf("Failed to write response: %v", err)
	}

	reader := NewFramer(bytes.NewReader(buf.Bytes()), nil)

	gotReq, err := reader.ReadRequest()
	if err != nil {
		t.Fatalf("Failed to read request: %v", err)
	}
	if gotReq.Method != MethodExec || gotReq.User != "alice" || gotReq.Version != ProtocolVersion {
		t.Errorf("request mismatch: %+v", gotReq)
	}
	var params ExecParams
	if err := gotReq.ParseParams(&params); err != nil {
		t.Fatalf("ParseParams: %v", err)
	}
	if len(params.Args) != 1 || params.Args[0] != "version" {
		t.Errorf("Args: got %v", params.Args)
	}

	gotResp, err := reader.ReadResponse()
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if gotResp.Error != nil {
		t.Fatalf("unexpected error: %v", gotResp.Error)
	}

	// Stream is drained
	if _, err := reader.ReadRequest(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestFramerLargeMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	framer := NewFramer(buf, buf)

	// Large payload (but under limit)
	largeData := make([]byte, 1024*1024)
	for i := range largeData {
		largeData[i] = byte(i % 256)
	}

	resp, err := NewResult("big", ExecResult{Stdout: largeData})
	if err != nil {
		t.Fatalf("Failed to create response: %v", err)
	}
	if err := framer.WriteResponse(resp); err != nil {
		t.Fatalf("Failed to write large message: %v", err)
	}

	readResp, err := NewFramer(bytes.NewReader(buf.Bytes()), nil).ReadResponse()
	if err != nil {
		t.Fatalf("Failed to read large message: %v", err)
	}
	if readResp.ID != "big" {
		t.Errorf("Expected id big, got %s", readResp.ID)
	}
}

func TestFramerMessageTooLarge(t *testing.T) {
	buf := &bytes.Buffer{}

	// Manually write an oversized length prefix
	tooLargeLen := MaxMessageSize + 1
	lenBuf := make([]byte, 4)
	lenBuf[0] = byte(tooLargeLen >> 24)
	lenBuf[1] = byte(tooLargeLen >> 16)
	lenBuf[2] = byte(tooLargeLen >> 8)
	lenBuf[3] = byte(tooLargeLen)
	buf.Write(lenBuf)
	buf.Write(make([]byte, 100))

	framer := NewFramer(bytes.NewReader(buf.Bytes()), nil)
	_, err := framer.ReadRequest()
	if err != ErrMessageTooLarge {
		t.Errorf("Expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFramerTruncatedBody(t *testing.T) {
	// Length says 10, only 3 bytes follow
	data := []byte{0, 0, 0, 10, '{', '"', 'a'}
	_, err := NewFramer(bytes.NewReader(data), nil).ReadRequest()
	if err == nil || err == io.EOF {
		t.Errorf("Expected wrapped read error, got %v", err)
	}
}

func TestNewErrorPermissionDenied(t *testing.T) {
	resp := NewError("7", ErrCodePermissionDenied, "nope")
	if resp.ID != "7" || resp.Error == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Error.Code != ErrCodePermissionDenied || resp.Error.Error() != "nope" {
		t.Errorf("unexpected error: %+v", resp.Error)
	}
}
