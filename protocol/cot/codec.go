package cot

import (
	"time"

	"github.com/signalsfoundry/telemetry-generator/protocol"
	"github.com/signalsfoundry/telemetry-generator/timectrl"
)

// Name is the protocol identifier used by the registry and on the CLI.
const Name = "cot"

// DefaultStaleAfter is how long a generated event stays valid.
const DefaultStaleAfter = 2 * time.Minute

// timeLayout is the CoT timestamp format (UTC, millisecond precision).
const timeLayout = "2006-01-02T15:04:05.000Z"

// Codec is the CoT implementation of protocol.Protocol.
type Codec struct {
	clock      timectrl.SimClock
	staleAfter time.Duration
	eventType  string
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock stamps time/start/stale from clock on every built event.
// Without a clock those attributes are left empty.
func WithClock(clock timectrl.SimClock) Option {
	return func(c *Codec) { c.clock = clock }
}

// WithStaleAfter sets the stale offset applied when a clock is configured.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithEventType overrides the default a-f-G-U-C event type.
func WithEventType(t string) Option {
	return func(c *Codec) {
		if t != "" {
			c.eventType = t
		}
	}
}

// NewCodec constructs a CoT codec.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		staleAfter: DefaultStaleAfter,
		eventType:  TypeFriendlyGroundUnit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements protocol.Protocol.
func (c *Codec) Name() string { return Name }

// FromCoordinates implements protocol.Protocol.
func (c *Codec) FromCoordinates(lat, lon float64, altHAE float32) protocol.Message {
	e := FromCoordinates(lat, lon, altHAE)
	e.Type = c.eventType
	if c.clock != nil {
		now := c.clock.Now().UTC()
		e.Time = now.Format(timeLayout)
		e.Start = e.Time
		e.Stale = now.Add(c.staleAfter).Format(timeLayout)
	}
	return e
}
