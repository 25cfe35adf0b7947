package stanag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/signalsfoundry/telemetry-generator/protocol"
)

// Name is the protocol identifier used by the registry and on the CLI.
const Name = "stanag"

// positionFixedSize is lat(8) + lon(8) + hae(4) + id length(2).
const positionFixedSize = 22

// MaxAgentIDLen keeps a position payload within MaxPayload.
const MaxAgentIDLen = MaxPayload - positionFixedSize

// ErrAgentIDTooLong is returned when an agent ID does not fit the payload.
var ErrAgentIDTooLong = errors.New("stanag: agent id too long")

// ValidateAgentID reports whether id fits a position payload.
func ValidateAgentID(id string) error {
	if len(id) > MaxAgentIDLen {
		return fmt.Errorf("%w: %d bytes, max %d", ErrAgentIDTooLong, len(id), MaxAgentIDLen)
	}
	return nil
}

// Position is an outbound vehicle specific position report carried in a
// type MsgTypeVehicleSpecific1 wrapper. Its payload is big-endian:
//
//	lat f64 | lon f64 | hae f32 | id length u16 | id bytes
type Position struct {
	Lat     float64
	Lon     float64
	HAE     float32
	AgentID string

	Instance uint32
	StreamID uint32
}

// WithAgentID returns a copy of p carrying id.
func (p Position) WithAgentID(id string) protocol.Message {
	p.AgentID = id
	return p
}

// Payload encodes the message data without the wrapper.
func (p Position) Payload() ([]byte, error) {
	if err := ValidateAgentID(p.AgentID); err != nil {
		return nil, err
	}
	b := make([]byte, 0, positionFixedSize+len(p.AgentID))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(p.Lat))
	b = binary.BigEndian.AppendUint64(b, math.Float64bits(p.Lon))
	b = binary.BigEndian.AppendUint32(b, math.Float32bits(p.HAE))
	b = binary.BigEndian.AppendUint16(b, uint16(len(p.AgentID)))
	return append(b, p.AgentID...), nil
}

// Bytes encodes the complete wrapper frame.
func (p Position) Bytes() ([]byte, error) {
	payload, err := p.Payload()
	if err != nil {
		return nil, err
	}
	return Encode(NewHeader(p.Instance, MsgTypeVehicleSpecific1, p.StreamID), payload), nil
}

// DecodePosition is the inverse of Position.Payload. Instance and StreamID
// live in the wrapper header and are left zero.
func DecodePosition(payload []byte) (Position, error) {
	r := reader{buf: payload}
	lat, err := r.take("latitude", 8)
	if err != nil {
		return Position{}, err
	}
	lon, err := r.take("longitude", 8)
	if err != nil {
		return Position{}, err
	}
	hae, err := r.u32("hae")
	if err != nil {
		return Position{}, err
	}
	idLen, err := r.take("agent id length", 2)
	if err != nil {
		return Position{}, err
	}
	id, err := r.take("agent id", int64(binary.BigEndian.Uint16(idLen)))
	if err != nil {
		return Position{}, err
	}
	return Position{
		Lat:     math.Float64frombits(binary.BigEndian.Uint64(lat)),
		Lon:     math.Float64frombits(binary.BigEndian.Uint64(lon)),
		HAE:     math.Float32frombits(hae),
		AgentID: string(id),
	}, nil
}

// PositionFromFrame decodes f as a position report, copying header ids.
func PositionFromFrame(f *Frame) (Position, error) {
	if f.Header.Type != MsgTypeVehicleSpecific1 {
		return Position{}, fmt.Errorf("stanag: message type %d is not a position report", f.Header.Type)
	}
	p, err := DecodePosition(f.Payload)
	if err != nil {
		return Position{}, err
	}
	p.Instance = f.Header.Instance
	p.StreamID = f.Header.StreamID
	return p, nil
}

// PositionProtocol implements protocol.Protocol for outbound position
// reports. Every built message gets the next instance id.
type PositionProtocol struct {
	streamID uint32
	instance atomic.Uint32
}

// NewPositionProtocol builds a protocol emitting on streamID.
func NewPositionProtocol(streamID uint32) *PositionProtocol {
	return &PositionProtocol{streamID: streamID}
}

// Name implements protocol.Protocol.
func (p *PositionProtocol) Name() string { return Name }

// ValidateAgentID implements protocol.IDValidator.
func (p *PositionProtocol) ValidateAgentID(id string) error { return ValidateAgentID(id) }

// FromCoordinates implements protocol.Protocol.
func (p *PositionProtocol) FromCoordinates(lat, lon float64, altHAE float32) protocol.Message {
	return Position{
		Lat:      lat,
		Lon:      lon,
		HAE:      altHAE,
		Instance: p.instance.Add(1) - 1,
		StreamID: p.streamID,
	}
}
