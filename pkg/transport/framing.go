package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/leap-protocol/leap-go/pkg/log"
)

// Framing constants.
const (
	// DefaultMaxMessageSize is the default maximum message size (1 MB).
	// Full device enumerations on large installations run to hundreds
	// of kilobytes.
	DefaultMaxMessageSize = 1 << 20

	// MaxLogFrameDataSize is the maximum frame data size to include in
	// log events (4 KB). Larger frames are truncated in the trace.
	MaxLogFrameDataSize = 4096
)

// frameDelimiter terminates every outbound frame. The bridge likewise
// terminates its frames with CRLF, though a bare LF is tolerated on
// receive.
var frameDelimiter = []byte("\r\n")

// Framing errors.
var (
	// ErrMessageTooLarge indicates the message exceeds the maximum size.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty indicates an empty message.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated indicates the stream ended mid-frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameWriter writes delimiter-terminated JSON frames to an underlying
// writer.
type FrameWriter struct {
	w              io.Writer
	maxMessageSize int
	mu             sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{
		w:              w,
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// SetLogger configures protocol capture for this writer.
// Pass nil to disable.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// SetMaxMessageSize updates the maximum message size.
func (fw *FrameWriter) SetMaxMessageSize(size int) {
	fw.maxMessageSize = size
}

// WriteFrame writes one message followed by the frame delimiter.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > fw.maxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxMessageSize)
	}
	if bytes.ContainsAny(data, "\r\n") {
		return fmt.Errorf("message contains frame delimiter bytes")
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	if _, err := fw.w.Write(frameDelimiter); err != nil {
		return fmt.Errorf("failed to write delimiter: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.connID, data, log.DirectionOut))
	}

	return nil
}

// FrameReader reads delimiter-terminated JSON frames from an
// underlying reader.
type FrameReader struct {
	r              *bufio.Reader
	maxMessageSize int

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:              bufio.NewReaderSize(r, 64*1024),
		maxMessageSize: DefaultMaxMessageSize,
	}
}

// SetLogger configures protocol capture for this reader.
// Pass nil to disable.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// SetMaxMessageSize updates the maximum message size.
func (fr *FrameReader) SetMaxMessageSize(size int) {
	fr.maxMessageSize = size
}

// ReadFrame reads one message up to and excluding the frame delimiter.
// Blank lines between messages are skipped.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		line, err := fr.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}

		if fr.logger != nil {
			fr.logger.Log(makeFrameEvent(fr.connID, line, log.DirectionIn))
		}
		return line, nil
	}
}

// readLine accumulates one LF-terminated line, enforcing the size cap
// without letting a hostile peer grow the buffer unboundedly.
func (fr *FrameReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := fr.r.ReadSlice('\n')
		if err == nil || errors.Is(err, bufio.ErrBufferFull) {
			line = append(line, chunk...)
			if len(line) > fr.maxMessageSize {
				return nil, fmt.Errorf("%w: frame exceeds %d", ErrMessageTooLarge, fr.maxMessageSize)
			}
			if err == nil {
				return bytes.TrimRight(line, "\r\n"), nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) > 0 || len(chunk) > 0 {
				return nil, ErrFrameTruncated
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
}

// Framer combines frame reading and writing over one stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a new framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures protocol capture for both directions.
// Pass nil to disable.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// SetMaxMessageSize updates the maximum message size for both the
// reader and the writer.
func (f *Framer) SetMaxMessageSize(size int) {
	f.FrameReader.SetMaxMessageSize(size)
	f.FrameWriter.SetMaxMessageSize(size)
}

// makeFrameEvent creates a log event for a frame.
func makeFrameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data) + len(frameDelimiter),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}
