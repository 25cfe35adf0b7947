package generator

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol"
)

// orbitalSpacing separates consecutive orbital agents along the same track.
const orbitalSpacing = 90 * time.Second

// FleetSpec describes a homogeneous fleet.
type FleetSpec struct {
	Count  int
	Prefix string // empty assigns UUIDs
	Source model.MotionSource

	Box         core.BoundingBox
	MaxVelocity float64 // m/s, random walk only

	TLE1, TLE2 string
	Epoch      time.Time // orbital propagation start
}

// Populate adds spec.Count agents to g. Every agent draws its own PCG
// source from rng so a fixed seed reproduces the whole fleet.
func Populate(g *Generator, spec FleetSpec, rng *rand.Rand) error {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	for i := range spec.Count {
		id, err := agentID(spec.Prefix, i, rng)
		if err != nil {
			return err
		}
		build, err := streamFactory(g, spec, i, id, rng)
		if err != nil {
			return err
		}
		if err := g.AddAgent(id, spec.Source, build); err != nil {
			return err
		}
	}
	return nil
}

func streamFactory(g *Generator, spec FleetSpec, i int, id string, rng *rand.Rand) (StreamFactory, error) {
	switch spec.Source {
	case model.MotionSourceRandomWalk:
		agentRng := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
		walkLog := logging.ForAgent(g.log, id)
		return func(p protocol.Protocol) (core.Stream, error) {
			return core.NewRandomWalk(spec.Box, spec.MaxVelocity, p, agentRng, core.WithWalkLogger(walkLog)), nil
		}, nil
	case model.MotionSourceStationary:
		pos := randomPoint(spec.Box, rng)
		return func(p protocol.Protocol) (core.Stream, error) {
			return core.NewStationary(pos, 0, p), nil
		}, nil
	case model.MotionSourceOrbital:
		epoch := spec.Epoch.Add(time.Duration(i) * orbitalSpacing)
		return func(p protocol.Protocol) (core.Stream, error) {
			return core.NewOrbitalTrack(spec.TLE1, spec.TLE2, epoch, p)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported motion source %v", spec.Source)
	}
}

func agentID(prefix string, i int, rng *rand.Rand) (string, error) {
	if prefix != "" {
		return fmt.Sprintf("%s-%03d", prefix, i+1), nil
	}
	id, err := uuid.NewRandomFromReader(rngReader{rng})
	if err != nil {
		return "", fmt.Errorf("agent id: %w", err)
	}
	return id.String(), nil
}

func randomPoint(box core.BoundingBox, rng *rand.Rand) core.Coordinate {
	return core.Coordinate{
		Lat: box.LowerRight.Lat + rng.Float64()*(box.UpperLeft.Lat-box.LowerRight.Lat),
		Lon: box.UpperLeft.Lon + rng.Float64()*(box.LowerRight.Lon-box.UpperLeft.Lon),
	}
}

// rngReader feeds uuid generation from a seeded source.
type rngReader struct{ rng *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := r.rng.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}
