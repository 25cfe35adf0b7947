package core

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/signalsfoundry/telemetry-generator/protocol"
	"github.com/signalsfoundry/telemetry-generator/protocol/cot"
)

// capturingProtocol records every position it is asked to encode.
type capturingProtocol struct {
	positions []capturedPosition
}

type capturedPosition struct {
	lat, lon float64
	alt      float32
	agentID  string
}

func (c *capturingProtocol) Name() string { return "capture" }

func (c *capturingProtocol) FromCoordinates(lat, lon float64, alt float32) protocol.Message {
	p := capturedPosition{lat: lat, lon: lon, alt: alt}
	c.positions = append(c.positions, p)
	return p
}

func (p capturedPosition) WithAgentID(id string) protocol.Message {
	p.agentID = id
	return p
}

func (p capturedPosition) Bytes() ([]byte, error) { return []byte(p.agentID), nil }

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func testBox(t *testing.T) BoundingBox {
	t.Helper()
	box, err := NewBoundingBox(Coordinate{Lat: 39.0, Lon: -110.0}, Coordinate{Lat: 38.0, Lon: -109.5})
	if err != nil {
		t.Fatalf("NewBoundingBox: %v", err)
	}
	return box
}

func TestTimeDelta(t *testing.T) {
	var zero TimeDelta
	if zero.Milliseconds() != 1000 || zero.Seconds() != 1 {
		t.Fatalf("zero TimeDelta = %dms / %vs, want 1000ms / 1s", zero.Milliseconds(), zero.Seconds())
	}
	if got := TimeDeltaFromDuration(60 * time.Second).Seconds(); got != 60 {
		t.Fatalf("TimeDeltaFromDuration(60s).Seconds() = %v, want 60", got)
	}
	if got := TimeDeltaFromDuration(1500*time.Microsecond + 250*time.Millisecond).Milliseconds(); got != 251 {
		t.Fatalf("TimeDeltaFromDuration truncation = %d, want 251", got)
	}
	if got := Milliseconds(250).Duration(); got != 250*time.Millisecond {
		t.Fatalf("Milliseconds(250).Duration() = %v", got)
	}
	if got := TimeDeltaFromDuration(-time.Second).Milliseconds(); got != 0 {
		t.Fatalf("negative duration should count as zero, got %d", got)
	}
	if got := Milliseconds(0).Seconds(); got != 0 {
		t.Fatalf("Milliseconds(0).Seconds() = %v, want 0", got)
	}
	if got := TimeDeltaFromDuration(0).Duration(); got != 0 {
		t.Fatalf("TimeDeltaFromDuration(0).Duration() = %v, want 0", got)
	}
}

func TestRandomWalkZeroDeltaDoesNotMove(t *testing.T) {
	box := testBox(t)
	w := NewRandomWalk(box, 100, &capturingProtocol{}, seeded(11))
	for i := range 50 {
		w.Next(Milliseconds(0))
		if w.Position() != box.Midpoint() {
			t.Fatalf("step %d: zero delta moved the walk to %+v", i, w.Position())
		}
	}
	w.Next(TimeDelta{})
	if w.Position() == box.Midpoint() {
		t.Fatalf("unspecified delta should step the default second")
	}
}

func TestRandomWalkStartsAtMidpoint(t *testing.T) {
	box := testBox(t)
	w := NewRandomWalk(box, 100, &capturingProtocol{}, seeded(1))
	if w.Position() != box.Midpoint() {
		t.Fatalf("start = %+v, want midpoint %+v", w.Position(), box.Midpoint())
	}
	if h := w.Heading(); h < 0 || h >= 360 {
		t.Fatalf("initial heading %v outside [0,360)", h)
	}
}

func TestRandomWalkStaysInsideBox(t *testing.T) {
	box := testBox(t)
	proto := &capturingProtocol{}
	// fast agent and long steps so most steps hit an edge
	w := NewRandomWalk(box, 100, proto, seeded(42))

	for i := range 1000 {
		w.Next(TimeDeltaFromDuration(60 * time.Second))
		pos := w.Position()
		if !box.Contains(pos) {
			t.Fatalf("step %d: position %+v escaped box %+v", i, pos, box)
		}
		got := proto.positions[len(proto.positions)-1]
		if got.lat != pos.Lat || got.lon != pos.Lon || got.alt != 0 {
			t.Fatalf("step %d: message carries %+v, state is %+v", i, got, pos)
		}
	}
	if w.Bounces() == 0 {
		t.Fatalf("expected at least one bounce in 1000 one-minute steps at 100 m/s")
	}
}

func TestRandomWalkCornerClampsBothAxes(t *testing.T) {
	// a tiny box: any real step overshoots both axes
	box, err := NewBoundingBox(Coordinate{Lat: 38.00001, Lon: -110.0}, Coordinate{Lat: 38.0, Lon: -109.99999})
	if err != nil {
		t.Fatalf("NewBoundingBox: %v", err)
	}
	w := NewRandomWalk(box, 1000, &capturingProtocol{}, seeded(7), WithMaxTurn(0))

	for i := range 200 {
		before := w.Heading()
		bouncesBefore := w.Bounces()
		w.Next(TimeDeltaFromDuration(time.Hour))
		if !box.Contains(w.Position()) {
			t.Fatalf("step %d: %+v outside corner box", i, w.Position())
		}
		if w.Bounces() > bouncesBefore+1 {
			t.Fatalf("step %d: bounced %d times in one step", i, w.Bounces()-bouncesBefore)
		}
		if w.Bounces() == bouncesBefore+1 {
			want := normalizeHeading(before.Degrees() + 180)
			if w.Heading() != want {
				t.Fatalf("step %d: heading %v after bounce from %v, want %v", i, w.Heading(), before, want)
			}
		}
	}
}

func TestRandomWalkIsReproducible(t *testing.T) {
	box := testBox(t)
	a := NewRandomWalk(box, 50, &capturingProtocol{}, seeded(99))
	b := NewRandomWalk(box, 50, &capturingProtocol{}, seeded(99))
	for i := range 100 {
		a.Next(TimeDelta{})
		b.Next(TimeDelta{})
		if a.Position() != b.Position() || a.Heading() != b.Heading() {
			t.Fatalf("step %d: walks diverged: %+v/%v vs %+v/%v", i, a.Position(), a.Heading(), b.Position(), b.Heading())
		}
	}
}

func TestRandomWalkTurnIsBounded(t *testing.T) {
	// huge box and zero speed: heading changes only by the random turn
	box, err := NewBoundingBox(Coordinate{Lat: 60, Lon: -170}, Coordinate{Lat: 10, Lon: -10})
	if err != nil {
		t.Fatalf("NewBoundingBox: %v", err)
	}
	w := NewRandomWalk(box, 0, &capturingProtocol{}, seeded(3))
	for i := range 500 {
		before := w.Heading().Degrees()
		w.Next(TimeDelta{})
		diff := w.Heading().Degrees() - before
		if diff > 180 {
			diff -= 360
		} else if diff < -180 {
			diff += 360
		}
		if diff < -DefaultMaxTurnDeg || diff > DefaultMaxTurnDeg {
			t.Fatalf("step %d: heading moved %v degrees", i, diff)
		}
	}
	if w.Position() != box.Midpoint() {
		t.Fatalf("zero-speed walk moved to %+v", w.Position())
	}
}

func TestRandomWalkWithCotMessages(t *testing.T) {
	box := testBox(t)
	w := NewRandomWalk(box, 30, cot.NewCodec(), seeded(5))

	msg := w.Next(Milliseconds(500)).WithAgentID("walker-1")
	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	e, err := cot.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Point.Lat != w.Position().Lat || e.Point.Lon != w.Position().Lon {
		t.Fatalf("cot point %+v, walk at %+v", e.Point, w.Position())
	}
	if e.UID != "walker-1" || e.Detail.Contact.Callsign != "walker-1" {
		t.Fatalf("identity = %q/%q", e.UID, e.Detail.Contact.Callsign)
	}
}

func TestStationaryRepeatsPosition(t *testing.T) {
	proto := &capturingProtocol{}
	s := NewStationary(Coordinate{Lat: 1, Lon: 2}, 30, proto)
	s.Next(TimeDelta{})
	s.Next(Milliseconds(10))
	if len(proto.positions) != 2 {
		t.Fatalf("messages = %d, want 2", len(proto.positions))
	}
	for _, p := range proto.positions {
		if p.lat != 1 || p.lon != 2 || p.alt != 30 {
			t.Fatalf("stationary reported %+v", p)
		}
	}
}

// We don't assert exact orbital values (those belong to go-satellite);
// we just check the ground track is valid and moves.
func TestOrbitalTrackMovesOverTime(t *testing.T) {
	tle1 := "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	tle2 := "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
	epoch := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

	proto := &capturingProtocol{}
	o, err := NewOrbitalTrack(tle1, tle2, epoch, proto)
	if err != nil {
		t.Fatalf("NewOrbitalTrack: %v", err)
	}
	first := o.Position()
	o.Next(TimeDeltaFromDuration(5 * time.Minute))
	second := o.Position()

	if first == second {
		t.Fatalf("expected ground track to move, got %+v twice", first)
	}
	if err := ValidateCoordinate(second.Lat, second.Lon); err != nil {
		t.Fatalf("ground track produced invalid coordinate: %v", err)
	}
	// ISS inclination bounds the sub-satellite latitude
	if second.Lat > 52 || second.Lat < -52 {
		t.Fatalf("latitude %v beyond orbit inclination", second.Lat)
	}
	if got := o.SimTime(); !got.Equal(epoch.Add(5 * time.Minute)) {
		t.Fatalf("SimTime = %v", got)
	}
	if alt := proto.positions[0].alt; alt < 300_000 || alt > 500_000 {
		t.Fatalf("altitude %v m outside the ISS band", alt)
	}
}

func TestOrbitalTrackRejectsMalformedTLE(t *testing.T) {
	if _, err := NewOrbitalTrack("1 bogus", "2 bogus", time.Now(), &capturingProtocol{}); err == nil {
		t.Fatalf("expected malformed TLE error")
	}
}
