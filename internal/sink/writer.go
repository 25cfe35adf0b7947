package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer streams messages to an io.Writer, optionally separated by a
// delimiter. Binary STANAG frames are self-delimiting and need none.
type Writer struct {
	name      string
	delimiter []byte

	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	closed bool
}

// WriterOption customises a Writer.
type WriterOption func(*Writer)

// WithDelimiter appends d after every message.
func WithDelimiter(d []byte) WriterOption {
	return func(w *Writer) { w.delimiter = append([]byte(nil), d...) }
}

// WithName overrides the sink label.
func WithName(name string) WriterOption {
	return func(w *Writer) {
		if name != "" {
			w.name = name
		}
	}
}

// NewWriter wraps w. Close does not close w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	s := &Writer{name: "writer", w: w}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewStdout writes to os.Stdout.
func NewStdout(opts ...WriterOption) *Writer {
	return NewWriter(os.Stdout, append([]WriterOption{WithName(KindStdout)}, opts...)...)
}

// NewFile truncates or creates path and writes to it. Close closes the file.
func NewFile(path string, opts ...WriterOption) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s := NewWriter(f, append([]WriterOption{WithName(KindFile)}, opts...)...)
	s.closer = f
	return s, nil
}

func (s *Writer) Name() string { return s.name }

// Send writes payload followed by the delimiter as one unit.
func (s *Writer) Send(ctx context.Context, _ string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.w.Write(payload); err != nil {
		return fmt.Errorf("%s write: %w", s.name, err)
	}
	if len(s.delimiter) > 0 {
		if _, err := s.w.Write(s.delimiter); err != nil {
			return fmt.Errorf("%s write: %w", s.name, err)
		}
	}
	return nil
}

func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
