package sup

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestResponseEncodeLayout(t *testing.T) {
	got := NewResponse("ok", 4242).Encode()
	want := []byte{0x00, 0x00, 0x10, 0x92, 'o', 'k'}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %v, want %v", got, want)
	}

	got = NewResponse("", NonePID).Encode()
	if !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("empty response = %v, want four zero bytes", got)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []Response{
		{Message: "", PID: NonePID},
		{Message: "started", PID: 1},
		{Message: "started", PID: 4242},
		{Message: "running", PID: 0x01020304},
		{Message: "max", PID: math.MaxUint32},
		{Message: "héllo wörld ✓", PID: 77},
		{Message: "no pid here"},
	}

	for _, want := range tests {
		got, err := DecodeResponse(want.Encode())
		if err != nil {
			t.Fatalf("DecodeResponse(%q, %d): %v", want.Message, want.PID, err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestResponseNonePID(t *testing.T) {
	resp, err := DecodeResponse([]byte{0, 0, 0, 0, 'x'})
	if err != nil {
		t.Fatal(err)
	}
	if resp.HasPID() {
		t.Errorf("zero pid field decoded as %d", resp.PID)
	}
	if resp.String() != "x" {
		t.Errorf("String() = %q, want %q", resp.String(), "x")
	}

	if got := NewResponse("started", 12).String(); got != "started, pid is 12" {
		t.Errorf("String() = %q", got)
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"one byte", []byte{1}},
		{"three bytes", []byte{0, 0, 1}},
		{"invalid utf-8", []byte{0, 0, 0, 1, 0xff, 0xfe}},
		{"truncated rune", []byte{0, 0, 0, 1, 'a', 0xe2, 0x82}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeResponse(tt.input)
			if !errors.Is(err, ErrDecodeFailed) {
				t.Errorf("DecodeResponse(%v) error = %v, want ErrDecodeFailed", tt.input, err)
			}
		})
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(ErrUnknownCommand)
	if resp.HasPID() {
		t.Errorf("error response carries pid %d", resp.PID)
	}
	if resp.Message != "error: sup: unknown command" {
		t.Errorf("Message = %q", resp.Message)
	}
}

// FuzzDecodeResponse checks that decoding never panics and that every
// accepted input re-encodes to itself
func FuzzDecodeResponse(f *testing.F) {
	f.Add(NewResponse("started", 4242).Encode())
	f.Add(NewResponse("", NonePID).Encode())
	f.Add([]byte{0, 0, 0})
	f.Add([]byte{0, 0, 0, 1, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, err := DecodeResponse(data)
		if err != nil {
			if !errors.Is(err, ErrDecodeFailed) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if !bytes.Equal(resp.Encode(), data) {
			t.Fatalf("re-encode of %v = %v", data, resp.Encode())
		}
	})
}

func BenchmarkResponseEncode(b *testing.B) {
	resp := NewResponse("program is running (uptime 3h2m1s)", 4242)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = resp.Encode()
	}
}

func BenchmarkResponseDecode(b *testing.B) {
	data := NewResponse("program is running (uptime 3h2m1s)", 4242).Encode()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeResponse(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCommandString(b *testing.B) {
	cmds := Commands()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = cmds[i%len(cmds)].String()
	}
}
