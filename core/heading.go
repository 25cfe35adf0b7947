package core

import "math"

const (
	// DegreesToRadians converts degrees to radians.
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees.
	RadiansToDegrees = 180.0 / math.Pi
)

// Heading is a direction of travel in degrees clockwise from true north,
// kept in [0, 360).
type Heading float64

// Rotate turns the heading clockwise by deg (negative turns counter-clockwise)
// and wraps the result back into [0, 360).
func (h *Heading) Rotate(deg float64) {
	*h = normalizeHeading(float64(*h) + deg)
}

// Radians returns the heading in radians.
func (h Heading) Radians() float64 {
	return float64(h) * DegreesToRadians
}

// Degrees returns the heading as a plain float.
func (h Heading) Degrees() float64 {
	return float64(h)
}

func normalizeHeading(deg float64) Heading {
	d := math.Mod(deg, 360.0)
	if d < 0 {
		d += 360.0
	}
	// -1e-15 + 360 rounds to exactly 360
	if d >= 360.0 {
		d = 0
	}
	return Heading(d)
}
