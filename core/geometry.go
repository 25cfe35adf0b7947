package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned whenever a latitude or longitude falls
// outside its WGS-84 range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// ErrInvertedBox is returned by CheckOrientation when the upper-left corner
// is not north-west of the lower-right one.
var ErrInvertedBox = errors.New("bounding box corners inverted")

// Coordinate is a WGS-84 point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// NewCoordinate validates lat/lon and returns the corresponding Coordinate.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if err := ValidateCoordinate(lat, lon); err != nil {
		return Coordinate{}, err
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// ValidateCoordinate checks lat ∈ [-90,90] and lon ∈ [-180,180].
func ValidateCoordinate(lat, lon float64) error {
	if err := validateLatitude(lat); err != nil {
		return err
	}
	return validateLongitude(lon)
}

func validateLatitude(lat float64) error {
	// written as a negated range check so NaN is rejected too
	if !(lat >= -90 && lat <= 90) {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, lat)
	}
	return nil
}

func validateLongitude(lon float64) error {
	if !(lon >= -180 && lon <= 180) {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lon)
	}
	return nil
}

// BoundingBox is a rectangle of valid positions given by its upper-left
// (north-west) and lower-right (south-east) corners.
type BoundingBox struct {
	UpperLeft  Coordinate
	LowerRight Coordinate
}

// NewBoundingBox validates both corners independently.
func NewBoundingBox(upperLeft, lowerRight Coordinate) (BoundingBox, error) {
	if err := ValidateCoordinate(upperLeft.Lat, upperLeft.Lon); err != nil {
		return BoundingBox{}, fmt.Errorf("upper-left corner: %w", err)
	}
	if err := ValidateCoordinate(lowerRight.Lat, lowerRight.Lon); err != nil {
		return BoundingBox{}, fmt.Errorf("lower-right corner: %w", err)
	}
	return BoundingBox{UpperLeft: upperLeft, LowerRight: lowerRight}, nil
}

// CheckOrientation reports ErrInvertedBox unless UpperLeft is north-west of
// LowerRight. Degenerate boxes (a line or a point) are accepted.
func (b BoundingBox) CheckOrientation() error {
	if b.UpperLeft.Lat < b.LowerRight.Lat || b.UpperLeft.Lon > b.LowerRight.Lon {
		return fmt.Errorf("%w: upper-left %+v is not north-west of lower-right %+v", ErrInvertedBox, b.UpperLeft, b.LowerRight)
	}
	return nil
}

// Midpoint is the component-wise mean of the corners. It is not a geodesic
// midpoint; callers use it only as a local reference latitude.
func (b BoundingBox) Midpoint() Coordinate {
	return Coordinate{
		Lat: (b.UpperLeft.Lat + b.LowerRight.Lat) / 2,
		Lon: (b.UpperLeft.Lon + b.LowerRight.Lon) / 2,
	}
}

// Contains reports whether c lies inside the box, edges included.
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat <= b.UpperLeft.Lat && c.Lat >= b.LowerRight.Lat &&
		c.Lon >= b.UpperLeft.Lon && c.Lon <= b.LowerRight.Lon
}

// ApproxDimensionsMeters returns the absolute (width, height) of the box in
// metres, using the midpoint latitude as the single reference latitude.
//
// This is a local flat-earth approximation. Boxes spanning a wide latitude
// range get a width that is sampled only at the midpoint.
func (b BoundingBox) ApproxDimensionsMeters() (width, height float64, err error) {
	mid := b.Midpoint()
	latDeg := b.LowerRight.Lat - b.UpperLeft.Lat
	lonDeg := b.LowerRight.Lon - b.UpperLeft.Lon

	perLon, err := MetersPerDegreeLongitude(mid.Lat)
	if err != nil {
		return 0, 0, err
	}
	perLat, err := MetersPerDegreeLatitude(mid.Lat)
	if err != nil {
		return 0, 0, err
	}
	return math.Abs(perLon * lonDeg), math.Abs(perLat * latDeg), nil
}

// MetersPerDegreeLatitude returns the length in metres of one degree of
// latitude (N-S) at the given latitude.
func MetersPerDegreeLatitude(lat float64) (float64, error) {
	if err := validateLatitude(lat); err != nil {
		return 0, err
	}
	phi := lat * DegreesToRadians
	return 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi), nil
}

// MetersPerDegreeLongitude returns the length in metres of one degree of
// longitude (E-W) along the circle of latitude lat.
func MetersPerDegreeLongitude(lat float64) (float64, error) {
	if err := validateLatitude(lat); err != nil {
		return 0, err
	}
	phi := lat * DegreesToRadians
	return 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi), nil
}
