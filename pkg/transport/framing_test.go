package transport

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/leap-protocol/leap-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "small message",
			payload: []byte(`{"CommuniqueType":"ReadRequest"}`),
		},
		{
			name:    "large message",
			payload: []byte(`{"Body":"` + strings.Repeat("x", 100*1024) + `"}`),
		},
		{
			name:    "single byte",
			payload: []byte("x"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}

			// One CRLF-terminated line per frame.
			if !bytes.HasSuffix(buf.Bytes(), []byte("\r\n")) {
				t.Error("frame not CRLF terminated")
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameReaderMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	writer := NewFrameWriter(&buf)
	frames := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	for _, f := range frames {
		if err := writer.WriteFrame([]byte(f)); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	reader := NewFrameReader(&buf)
	for i, want := range frames {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if string(got) != want {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestFrameReaderBareLF(t *testing.T) {
	// Tolerate bare-LF framing and skip blank lines.
	reader := NewFrameReader(strings.NewReader("{\"a\":1}\n\r\n{\"b\":2}\r\n"))

	got, err := reader.ReadFrame()
	if err != nil || string(got) != `{"a":1}` {
		t.Fatalf("first frame = %q, %v", got, err)
	}
	got, err = reader.ReadFrame()
	if err != nil || string(got) != `{"b":2}` {
		t.Fatalf("second frame = %q, %v", got, err)
	}
}

func TestFrameWriterEmptyMessage(t *testing.T) {
	writer := NewFrameWriter(new(bytes.Buffer))
	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestFrameWriterRejectsEmbeddedDelimiter(t *testing.T) {
	writer := NewFrameWriter(new(bytes.Buffer))
	if err := writer.WriteFrame([]byte("line1\nline2")); err == nil {
		t.Error("expected error for embedded newline")
	}
}

func TestFrameReaderTooLarge(t *testing.T) {
	reader := NewFrameReader(strings.NewReader(strings.Repeat("x", 2048) + "\r\n"))
	reader.SetMaxMessageSize(1024)

	if _, err := reader.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFramerMaxMessageSizeBothDirections(t *testing.T) {
	var buf bytes.Buffer
	framer := NewFramer(&buf)
	framer.SetMaxMessageSize(64)

	big := []byte(strings.Repeat("x", 128))
	if err := framer.WriteFrame(big); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge from writer, got %v", err)
	}

	buf.WriteString(strings.Repeat("y", 128) + "\r\n")
	if _, err := framer.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge from reader, got %v", err)
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	reader := NewFrameReader(strings.NewReader(`{"unterminated":true}`))
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}

type captureLogger struct {
	events []log.Event
}

func (l *captureLogger) Log(e log.Event) { l.events = append(l.events, e) }

func TestFramerLogging(t *testing.T) {
	var buf bytes.Buffer
	capture := &captureLogger{}

	framer := NewFramer(&buf)
	framer.SetLogger(capture, "conn-1")

	payload := []byte(`{"CommuniqueType":"ReadRequest"}`)
	if err := framer.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	if len(capture.events) != 2 {
		t.Fatalf("events = %d, want 2", len(capture.events))
	}
	out, in := capture.events[0], capture.events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Error("event directions wrong")
	}
	if out.Frame == nil || out.Frame.Size != len(payload)+2 {
		t.Errorf("frame size = %+v, want %d", out.Frame, len(payload)+2)
	}
	if out.ConnectionID != "conn-1" {
		t.Errorf("connection id = %q, want conn-1", out.ConnectionID)
	}
}
