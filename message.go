package sup

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Request carries exactly one Command from a client to the daemon.
// Its wire form is the command's single byte.
type Request struct {
	Cmd Command
}

// Encode returns the one-byte wire form of the request
func (r Request) Encode() []byte {
	return []byte{r.Cmd.Byte()}
}

// DecodeRequest decodes request bytes. It never fails; malformed input
// yields a request for CommandUnknown.
func DecodeRequest(b []byte) Request {
	return Request{Cmd: DecodeCommand(b)}
}

// Response is the daemon's answer to a Request.
//
// PID identifies the daemon or a supervised program. Zero means the response
// carries no process identifier, so a real PID of zero cannot be represented.
type Response struct {
	Message string
	PID     uint32
}

// NewResponse creates a Response with the given message and PID (0 for none)
func NewResponse(message string, pid uint32) Response {
	return Response{Message: message, PID: pid}
}

// ErrorResponse reports err to the client without a process identifier
func ErrorResponse(err error) Response {
	return Response{Message: "error: " + err.Error()}
}

// HasPID reports whether the response carries a process identifier
func (r Response) HasPID() bool {
	return r.PID != NonePID
}

// String formats the response the way supctl prints it
func (r Response) String() string {
	if !r.HasPID() {
		return r.Message
	}
	return r.Message + ", pid is " + strconv.FormatUint(uint64(r.PID), 10)
}

// Encode returns the wire form: a 4-byte big-endian PID field followed by
// the UTF-8 message bytes.
func (r Response) Encode() []byte {
	buf := make([]byte, PIDFieldSize+len(r.Message))
	binary.BigEndian.PutUint32(buf[:PIDFieldSize], r.PID)
	copy(buf[PIDFieldSize:], r.Message)
	return buf
}

// DecodeResponse parses the wire form produced by Response.Encode.
// Input shorter than the PID field or carrying invalid UTF-8 fails with ErrDecodeFailed.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) < PIDFieldSize {
		return Response{}, fmt.Errorf("%w: %d bytes is shorter than the pid field", ErrDecodeFailed, len(b))
	}

	msg := b[PIDFieldSize:]
	if !utf8.Valid(msg) {
		return Response{}, fmt.Errorf("%w: message is not valid utf-8", ErrDecodeFailed)
	}

	return Response{
		Message: string(msg),
		PID:     binary.BigEndian.Uint32(b[:PIDFieldSize]),
	}, nil
}
