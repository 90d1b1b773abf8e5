package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends protocol events to a trace file as a stream of
// CBOR records. One file may span several sessions; Reader callers
// sort that out by timestamp. Safe for concurrent use.
type FileLogger struct {
	mu   sync.Mutex
	sink io.WriteCloser
	enc  *cbor.Encoder
}

// NewFileLogger opens path for appending and returns a logger writing
// to it. The file is created with mode 0644 when missing.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{sink: f, enc: NewEncoder(f)}, nil
}

// Log appends one event. Encode failures are swallowed; capture must
// never take down the session it observes.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return
	}
	_ = l.enc.Encode(event)
}

// Close closes the underlying file. Further Log calls become no-ops.
// Close is idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
