package stanag

import (
	"bufio"
	"errors"
	"io"
)

// maxFrameSize bounds the scanner buffer. It is far above MaxPayload so
// non-conforming but well-formed frames still decode.
const maxFrameSize = 1 << 20

// SplitFrames is a bufio.SplitFunc that yields one complete wrapper frame
// per token. A tag mismatch is returned as a *ParseError: the stream is out
// of sync and the caller decides whether to resynchronise or give up.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	_, n, err := ParseFrame(data)
	if err == nil {
		return n, data[:n], nil
	}
	var pe *ParseError
	if errors.As(err, &pe) && pe.Incomplete() && !atEOF {
		return 0, nil, nil
	}
	return 0, nil, err
}

// Scanner reads consecutive frames from a byte stream.
type Scanner struct {
	s     *bufio.Scanner
	frame *Frame
	err   error
}

// NewScanner wraps r.
func NewScanner(r io.Reader) *Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, HeaderSize+MaxPayload+ChecksumSize), maxFrameSize)
	s.Split(SplitFrames)
	return &Scanner{s: s}
}

// Scan advances to the next frame. It returns false at end of input or on
// the first error.
func (s *Scanner) Scan() bool {
	if s.err != nil || !s.s.Scan() {
		return false
	}
	f, err := Parse(s.s.Bytes())
	if err != nil {
		s.err = err
		return false
	}
	// the bufio buffer is reused on the next Scan
	s.frame = f.Clone()
	return true
}

// Frame returns the frame read by the last successful Scan.
func (s *Scanner) Frame() *Frame { return s.frame }

// Err returns the first non-EOF error.
func (s *Scanner) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.s.Err()
}
