package stanag

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestScannerReadsConsecutiveFrames(t *testing.T) {
	var stream bytes.Buffer
	for i := range 3 {
		stream.Write(Encode(NewHeader(uint32(i), MsgTypeVehicleSpecific1, 9), []byte{byte(i), byte(i)}))
	}

	// one byte per Read forces the split func through every partial state
	s := NewScanner(iotest.OneByteReader(&stream))
	var got []*Frame
	for s.Scan() {
		got = append(got, s.Frame())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for i, f := range got {
		if f.Header.Instance != uint32(i) || !bytes.Equal(f.Payload, []byte{byte(i), byte(i)}) {
			t.Fatalf("frame %d = %+v", i, f)
		}
		if err := f.Verify(); err != nil {
			t.Fatalf("frame %d Verify: %v", i, err)
		}
	}
}

func TestScannerReportsDesync(t *testing.T) {
	stream := append(Encode(NewHeader(1, 1, 1), []byte("ok")), []byte("garbage-bytes-here")...)
	s := NewScanner(bytes.NewReader(stream))

	if !s.Scan() {
		t.Fatalf("expected first frame, err=%v", s.Err())
	}
	if s.Scan() {
		t.Fatalf("expected scan to stop on garbage")
	}
	if !errors.Is(s.Err(), ErrParse) {
		t.Fatalf("Err = %v, want ErrParse", s.Err())
	}
}

func TestScannerTruncatedTail(t *testing.T) {
	frame := Encode(NewHeader(1, 1, 1), []byte("payload"))
	s := NewScanner(bytes.NewReader(frame[:len(frame)-2]))
	if s.Scan() {
		t.Fatalf("expected no frame from truncated input")
	}
	var pe *ParseError
	if !errors.As(s.Err(), &pe) || pe.Field != "checksum" {
		t.Fatalf("Err = %v, want checksum ParseError", s.Err())
	}
}

func TestSplitFramesEmptyAtEOF(t *testing.T) {
	adv, tok, err := SplitFrames(nil, true)
	if adv != 0 || tok != nil || err != nil {
		t.Fatalf("SplitFrames(nil, true) = %d, %v, %v", adv, tok, err)
	}
	s := NewScanner(io.LimitReader(bytes.NewReader(nil), 0))
	if s.Scan() || s.Err() != nil {
		t.Fatalf("empty stream: scan=%v err=%v", s.Scan(), s.Err())
	}
}
