package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Outputs accepted by NewLogger besides a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// Logger defines the interface for audit logging implementations.
type Logger interface {
	// Log records an audit entry. Implementations must be thread-safe.
	Log(entry Entry) error

	// Close releases any resources held by the logger.
	Close() error
}

// NoOpLogger is a Logger that discards all entries.
type NoOpLogger struct{}

// Log discards the entry. Always returns nil.
func (NoOpLogger) Log(Entry) error { return nil }

// Close is a no-op. Always returns nil.
func (NoOpLogger) Close() error { return nil }

// WriterLogger writes audit entries as JSON lines to an io.Writer.
type WriterLogger struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	encoder  *json.Encoder
	sequence int64
}

var _ Logger = (*WriterLogger)(nil)

// NewWriterLogger creates a logger over w. w is not closed by Close.
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{w: w, encoder: json.NewEncoder(w)}
}

// NewFileLogger creates a logger that appends to the file at path.
func NewFileLogger(path string) (*WriterLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open log file: %w", err)
	}
	l := NewWriterLogger(file)
	l.closer = file
	return l, nil
}

// NewLogger returns a logger for output: "stdout", "stderr" or a file path.
// An empty output means stderr.
func NewLogger(output string) (Logger, error) {
	switch output {
	case "", OutputStderr:
		return NewWriterLogger(os.Stderr), nil
	case OutputStdout:
		return NewWriterLogger(os.Stdout), nil
	default:
		return NewFileLogger(output)
	}
}

// Log writes entry as one JSON line. The entry's Sequence is set here.
func (l *WriterLogger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return fmt.Errorf("audit: logger is closed")
	}

	l.sequence++
	entry.Sequence = l.sequence
	if err := l.encoder.Encode(entry); err != nil {
		return fmt.Errorf("audit: failed to encode entry: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the logger owns one.
func (l *WriterLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return nil
	}
	l.w = nil
	if l.closer == nil {
		return nil
	}
	if f, ok := l.closer.(*os.File); ok {
		_ = f.Sync()
	}
	return l.closer.Close()
}
