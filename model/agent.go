package model

import (
	"fmt"
	"strings"
	"time"
)

// MotionSource indicates how an agent's position is produced.
type MotionSource int

const (
	MotionSourceUnknown    MotionSource = iota
	MotionSourceRandomWalk              // bounded random walk inside a box
	MotionSourceStationary              // fixed position
	MotionSourceOrbital                 // TLE-based ground track
)

var motionSourceNames = map[MotionSource]string{
	MotionSourceUnknown:    "unknown",
	MotionSourceRandomWalk: "random-walk",
	MotionSourceStationary: "stationary",
	MotionSourceOrbital:    "orbital",
}

func (m MotionSource) String() string {
	if s, ok := motionSourceNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MotionSource(%d)", int(m))
}

// ParseMotionSource is the inverse of String.
func ParseMotionSource(s string) (MotionSource, error) {
	for k, v := range motionSourceNames {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return MotionSourceUnknown, fmt.Errorf("unknown motion source %q", s)
}

// MarshalText renders the source by name in JSON snapshots.
func (m MotionSource) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Position is a geodetic fix in degrees, with height above ellipsoid in metres.
type Position struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	AltHAE float32 `json:"hae"`
}

// AgentDefinition describes one simulated emitter and its latest state.
type AgentDefinition struct {
	ID           string       `json:"id"`
	Protocol     string       `json:"protocol"`
	MotionSource MotionSource `json:"motion_source"`

	Position     Position  `json:"position"`
	MessagesSent uint64    `json:"messages_sent"`
	LastUpdate   time.Time `json:"last_update"` // simulation time
}
