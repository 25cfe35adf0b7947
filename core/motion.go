package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/protocol"
)

// DefaultTimeDelta is used when a step does not say how much time elapsed.
const DefaultTimeDelta = 1000 * time.Millisecond

// DefaultMaxTurnDeg bounds the random heading change per RandomWalk step.
const DefaultMaxTurnDeg = 5.0

// TimeDelta is the simulated time elapsed since the previous message, with
// millisecond resolution. The zero value means "unspecified" and behaves as
// DefaultTimeDelta; an explicit zero built by Milliseconds or
// TimeDeltaFromDuration stays zero.
type TimeDelta struct {
	msec uint32
	set  bool
}

// Milliseconds builds a TimeDelta from a millisecond count.
func Milliseconds(ms uint32) TimeDelta {
	return TimeDelta{msec: ms, set: true}
}

// TimeDeltaFromDuration truncates d to whole milliseconds. Negative
// durations count as zero.
func TimeDeltaFromDuration(d time.Duration) TimeDelta {
	if d <= 0 {
		return Milliseconds(0)
	}
	ms := d.Milliseconds()
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	return Milliseconds(uint32(ms))
}

// Milliseconds returns the effective delta in milliseconds.
func (t TimeDelta) Milliseconds() uint32 {
	if !t.set {
		return uint32(DefaultTimeDelta / time.Millisecond)
	}
	return t.msec
}

// Seconds returns the effective delta in seconds.
func (t TimeDelta) Seconds() float64 {
	return float64(t.Milliseconds()) / 1000.0
}

// Duration returns the effective delta as a time.Duration.
func (t TimeDelta) Duration() time.Duration {
	return time.Duration(t.Milliseconds()) * time.Millisecond
}

// Stream produces one telemetry message per simulation step.
//
// Implementations are not safe for concurrent use; the caller owns the
// stream exclusively for the duration of each Next call.
type Stream interface {
	Next(dt TimeDelta) protocol.Message
}

// RandomWalk is a deliberately simple vehicle motion model: at every step it
// picks a random speed, nudges its heading by a few degrees and moves in a
// straight line, bouncing off the edges of its bounding box.
type RandomWalk struct {
	box         BoundingBox
	maxVelocity float64 // m/s
	maxTurn     float64 // degrees per step, symmetric
	proto       protocol.Protocol
	rng         *rand.Rand
	log         logging.Logger

	pos     Coordinate
	heading Heading
	bounces uint64
}

// RandomWalkOption customises a RandomWalk.
type RandomWalkOption func(*RandomWalk)

// WithWalkLogger attaches a logger that receives per-step debug output.
func WithWalkLogger(l logging.Logger) RandomWalkOption {
	return func(w *RandomWalk) {
		if l != nil {
			w.log = l
		}
	}
}

// WithMaxTurn overrides the ±DefaultMaxTurnDeg heading change per step.
func WithMaxTurn(deg float64) RandomWalkOption {
	return func(w *RandomWalk) {
		if deg >= 0 {
			w.maxTurn = deg
		}
	}
}

// NewRandomWalk starts a walk at the midpoint of box with a uniformly random
// heading drawn from rng. A nil rng is replaced by a clock-seeded PCG, which
// makes the sequence non-reproducible.
func NewRandomWalk(box BoundingBox, maxVelocityMPS float64, proto protocol.Protocol, rng *rand.Rand, opts ...RandomWalkOption) *RandomWalk {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	w := &RandomWalk{
		box:         box,
		maxVelocity: maxVelocityMPS,
		maxTurn:     DefaultMaxTurnDeg,
		proto:       proto,
		rng:         rng,
		log:         logging.Noop(),
		pos:         box.Midpoint(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.heading = normalizeHeading(rng.Float64() * 360.0)
	return w
}

// Position returns the last reported position.
func (w *RandomWalk) Position() Coordinate { return w.pos }

// Heading returns the current heading.
func (w *RandomWalk) Heading() Heading { return w.heading }

// Bounces counts the steps that hit the bounding box.
func (w *RandomWalk) Bounces() uint64 { return w.bounces }

// Next advances the walk by dt and returns the new position as a message.
func (w *RandomWalk) Next(dt TimeDelta) protocol.Message {
	ctx := context.Background()

	speed := w.rng.Float64() * w.maxVelocity
	turn := (w.rng.Float64()*2 - 1) * w.maxTurn
	w.heading.Rotate(turn)
	w.log.Debug(ctx, "heading after turn",
		logging.Float64("turn_deg", turn),
		logging.Float64("heading_deg", w.heading.Degrees()),
	)

	dist := speed * dt.Seconds()
	rad := w.heading.Radians()
	deltaX := dist * math.Cos(rad)
	deltaY := dist * math.Sin(rad)

	// Scale at the agent's own latitude, not the box midpoint.
	deltaLat := deltaY / metersPerDegreeLatitude(w.pos.Lat)
	deltaLon := deltaX / metersPerDegreeLongitude(w.pos.Lat)
	w.log.Debug(ctx, "step offsets",
		logging.Float64("delta_lat", deltaLat),
		logging.Float64("delta_lat_m", deltaY),
		logging.Float64("delta_lon", deltaLon),
		logging.Float64("delta_lon_m", deltaX),
	)

	lat, lon, oob := w.clamp(w.pos.Lat+deltaLat, w.pos.Lon+deltaLon)
	if oob {
		w.heading.Rotate(180)
		w.bounces++
	}
	w.pos = Coordinate{Lat: lat, Lon: lon}
	return w.proto.FromCoordinates(lat, lon, 0)
}

// clamp pins each axis independently to the violated edge. The caller flips
// the heading once no matter how many axes were clamped.
func (w *RandomWalk) clamp(lat, lon float64) (float64, float64, bool) {
	ctx := context.Background()
	oob := false

	switch {
	case lat > w.box.UpperLeft.Lat:
		w.log.Debug(ctx, "latitude out of bounds", logging.Float64("lat", lat), logging.Float64("edge", w.box.UpperLeft.Lat))
		lat, oob = w.box.UpperLeft.Lat, true
	case lat < w.box.LowerRight.Lat:
		w.log.Debug(ctx, "latitude out of bounds", logging.Float64("lat", lat), logging.Float64("edge", w.box.LowerRight.Lat))
		lat, oob = w.box.LowerRight.Lat, true
	}

	switch {
	case lon < w.box.UpperLeft.Lon:
		w.log.Debug(ctx, "longitude out of bounds", logging.Float64("lon", lon), logging.Float64("edge", w.box.UpperLeft.Lon))
		lon, oob = w.box.UpperLeft.Lon, true
	case lon > w.box.LowerRight.Lon:
		w.log.Debug(ctx, "longitude out of bounds", logging.Float64("lon", lon), logging.Float64("edge", w.box.LowerRight.Lon))
		lon, oob = w.box.LowerRight.Lon, true
	}

	return lat, lon, oob
}

// Stationary reports the same position on every step.
type Stationary struct {
	pos    Coordinate
	altHAE float32
	proto  protocol.Protocol
}

// NewStationary builds a stream parked at pos.
func NewStationary(pos Coordinate, altHAE float32, proto protocol.Protocol) *Stationary {
	return &Stationary{pos: pos, altHAE: altHAE, proto: proto}
}

// Position returns the parked position.
func (s *Stationary) Position() Coordinate { return s.pos }

// Next ignores dt.
func (s *Stationary) Next(TimeDelta) protocol.Message {
	return s.proto.FromCoordinates(s.pos.Lat, s.pos.Lon, s.altHAE)
}

// OrbitalTrack follows the sub-satellite point of a TLE-described orbit.
// go-satellite works in kilometres; altitude is reported in metres.
type OrbitalTrack struct {
	sat   satellite.Satellite
	proto protocol.Protocol

	simTime time.Time
	pos     Coordinate
	altM    float64
}

// NewOrbitalTrack parses the two TLE lines and starts propagation at epoch.
func NewOrbitalTrack(line1, line2 string, epoch time.Time, proto protocol.Protocol) (*OrbitalTrack, error) {
	// go-satellite exits the process on malformed numeric fields, so reject
	// anything that is not shaped like a TLE before handing it over.
	if err := checkTLE(line1, line2); err != nil {
		return nil, err
	}
	o := &OrbitalTrack{
		sat:     satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		proto:   proto,
		simTime: epoch.UTC(),
	}
	pos, alt, err := o.propagate(o.simTime)
	if err != nil {
		return nil, err
	}
	o.pos, o.altM = pos, alt
	return o, nil
}

// SimTime is the propagation time of the last reported position.
func (o *OrbitalTrack) SimTime() time.Time { return o.simTime }

// Position returns the last reported sub-satellite point.
func (o *OrbitalTrack) Position() Coordinate { return o.pos }

// Next advances the propagation clock by dt. If propagation fails the last
// good position is repeated.
func (o *OrbitalTrack) Next(dt TimeDelta) protocol.Message {
	o.simTime = o.simTime.Add(dt.Duration())
	if pos, alt, err := o.propagate(o.simTime); err == nil {
		o.pos, o.altM = pos, alt
	}
	return o.proto.FromCoordinates(o.pos.Lat, o.pos.Lon, float32(o.altM))
}

func (o *OrbitalTrack) propagate(t time.Time) (Coordinate, float64, error) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	altKm, _, ll := satellite.ECIToLLA(posECI, gmst)

	lat := ll.Latitude * RadiansToDegrees
	lon := math.Mod(ll.Longitude*RadiansToDegrees, 360)
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	c, err := NewCoordinate(lat, lon)
	if err != nil {
		return Coordinate{}, 0, fmt.Errorf("propagate %s: %w", t.Format(time.RFC3339), err)
	}
	return c, altKm * 1000.0, nil
}

func checkTLE(line1, line2 string) error {
	const tleLineLen = 69
	if len(line1) < tleLineLen || !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("TLE line 1 malformed: %q", line1)
	}
	if len(line2) < tleLineLen || !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("TLE line 2 malformed: %q", line2)
	}
	return nil
}

func metersPerDegreeLatitude(lat float64) float64 {
	m, err := MetersPerDegreeLatitude(lat)
	if err != nil {
		// positions are clamped into a validated box before they get here
		panic(err)
	}
	return m
}

func metersPerDegreeLongitude(lat float64) float64 {
	m, err := MetersPerDegreeLongitude(lat)
	if err != nil {
		panic(err)
	}
	return m
}
