// Package stanag implements the STANAG 4586 Ed. 2.5 message wrapper: a
// fixed big-endian header, an opaque payload and a 32-bit additive checksum.
//
//	offset  size  field
//	0       10    IDD version tag, "2.5" + 7 NUL
//	10      4     message instance id
//	14      4     message type (>2000: vehicle specific)
//	18      4     payload length L
//	22      4     stream id
//	26      4     packet sequence, always 0xFFFFFFFF (-1)
//	30      L     payload
//	30+L    4     checksum of bytes [0, 30+L)
package stanag

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// IDDSize is the width of the version tag field.
	IDDSize = 10
	// HeaderSize is the number of bytes before the payload.
	HeaderSize = IDDSize + 5*4
	// ChecksumSize is the width of the trailing checksum field.
	ChecksumSize = 4

	// MaxPayload is the largest message data length the IDD allows. Parse
	// does not enforce it; outbound messages built here stay within it.
	MaxPayload = 538

	// MsgTypeVehicleSpecific1 is the first private, vehicle specific type.
	MsgTypeVehicleSpecific1 uint32 = 2001

	// PacketSeqUnused is the mandated value of the unused packet sequence
	// field, -1 in two's complement.
	PacketSeqUnused uint32 = 0xFFFFFFFF
)

// IDD25 is the version tag of Ed. 2.5. Its bytes sum to 149.
var IDD25 = [IDDSize]byte{'2', '.', '5'}

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("stanag: parse error")
	// ErrChecksumMismatch is returned by Frame.Verify.
	ErrChecksumMismatch = errors.New("stanag: checksum mismatch")
)

// ParseError describes which field could not be decoded and why.
type ParseError struct {
	Field  string // wrapper field being decoded
	Offset int    // byte offset of the field in the frame
	Need   int    // bytes the field needs
	Have   int    // bytes that were available at Offset
	Msg    string // set for content errors such as a tag mismatch
}

func (e *ParseError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("stanag: %s at offset %d: %s", e.Field, e.Offset, e.Msg)
	}
	return fmt.Sprintf("stanag: %s at offset %d: need %d bytes, have %d", e.Field, e.Offset, e.Need, e.Have)
}

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Incomplete reports whether more input could make the frame parse.
func (e *ParseError) Incomplete() bool { return e.Msg == "" && e.Have < e.Need }

// Header is the fixed-layout wrapper header.
type Header struct {
	IDD       [IDDSize]byte
	Instance  uint32
	Type      uint32
	Length    uint32
	StreamID  uint32
	PacketSeq uint32
}

// NewHeader returns an Ed. 2.5 header with the unused packet sequence set.
// Length is filled in by Encode.
func NewHeader(instance, msgType, streamID uint32) Header {
	return Header{
		IDD:       IDD25,
		Instance:  instance,
		Type:      msgType,
		StreamID:  streamID,
		PacketSeq: PacketSeqUnused,
	}
}

// Frame is a decoded wrapper. Frames returned by Parse borrow Payload from
// the input buffer; use Clone to keep one past the buffer's lifetime.
type Frame struct {
	Header   Header
	Payload  []byte
	Checksum uint32
}

// Checksum is the byte-wise unsigned sum of b truncated to 32 bits.
func Checksum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}

// Parse decodes the frame at the start of buf. Bytes after the checksum are
// ignored. The checksum is returned as read; see Frame.Verify.
func Parse(buf []byte) (*Frame, error) {
	f, _, err := ParseFrame(buf)
	return f, err
}

// ParseFrame is Parse that also reports how many bytes the frame occupied.
func ParseFrame(buf []byte) (*Frame, int, error) {
	r := reader{buf: buf}

	if err := r.tag("version tag", IDD25[:]); err != nil {
		return nil, 0, err
	}
	var f Frame
	copy(f.Header.IDD[:], buf[:IDDSize])

	fields := []struct {
		name string
		dst  *uint32
	}{
		{"instance id", &f.Header.Instance},
		{"message type", &f.Header.Type},
		{"payload length", &f.Header.Length},
		{"stream id", &f.Header.StreamID},
		{"packet sequence", &f.Header.PacketSeq},
	}
	for _, fld := range fields {
		v, err := r.u32(fld.name)
		if err != nil {
			return nil, 0, err
		}
		*fld.dst = v
	}

	payload, err := r.take("payload", int64(f.Header.Length))
	if err != nil {
		return nil, 0, err
	}
	f.Payload = payload

	if f.Checksum, err = r.u32("checksum"); err != nil {
		return nil, 0, err
	}
	return &f, r.off, nil
}

// Encode builds a complete frame from h and payload, setting the length
// field and appending the checksum. It is the inverse of Parse.
func Encode(h Header, payload []byte) []byte {
	h.Length = uint32(len(payload))
	out := make([]byte, 0, HeaderSize+len(payload)+ChecksumSize)
	out = appendHeader(out, h)
	out = append(out, payload...)
	return binary.BigEndian.AppendUint32(out, Checksum(out))
}

// Bytes re-encodes the frame exactly as parsed, keeping the stored checksum
// even if it is wrong.
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, HeaderSize+len(f.Payload)+ChecksumSize)
	out = appendHeader(out, f.Header)
	out = append(out, f.Payload...)
	return binary.BigEndian.AppendUint32(out, f.Checksum)
}

// ComputeChecksum sums the header and payload as they would be on the wire.
func (f *Frame) ComputeChecksum() uint32 {
	var hdr [HeaderSize]byte
	return Checksum(appendHeader(hdr[:0], f.Header)) + Checksum(f.Payload)
}

// Verify compares the stored checksum against a recomputation.
func (f *Frame) Verify() error {
	if got := f.ComputeChecksum(); got != f.Checksum {
		return fmt.Errorf("%w: frame carries %#08x, computed %#08x", ErrChecksumMismatch, f.Checksum, got)
	}
	return nil
}

// Clone returns a frame that owns its payload.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Payload = bytes.Clone(f.Payload)
	return &c
}

func appendHeader(b []byte, h Header) []byte {
	b = append(b, h.IDD[:]...)
	b = binary.BigEndian.AppendUint32(b, h.Instance)
	b = binary.BigEndian.AppendUint32(b, h.Type)
	b = binary.BigEndian.AppendUint32(b, h.Length)
	b = binary.BigEndian.AppendUint32(b, h.StreamID)
	return binary.BigEndian.AppendUint32(b, h.PacketSeq)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) take(field string, n int64) ([]byte, error) {
	if int64(r.remaining()) < n {
		return nil, &ParseError{Field: field, Offset: r.off, Need: clampInt(n), Have: r.remaining()}
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// tag requires an exact match. A short buffer that matches so far is
// reported as incomplete rather than as a mismatch.
func (r *reader) tag(field string, want []byte) error {
	have := r.buf[r.off:]
	n := min(len(have), len(want))
	if !bytes.Equal(have[:n], want[:n]) {
		return &ParseError{
			Field:  field,
			Offset: r.off,
			Need:   len(want),
			Have:   len(have),
			Msg:    fmt.Sprintf("want %q, have %q", want, have[:n]),
		}
	}
	_, err := r.take(field, int64(len(want)))
	return err
}

func clampInt(n int64) int {
	const maxInt = int64(^uint(0) >> 1)
	if n > maxInt {
		return int(maxInt)
	}
	return int(n)
}
