package generator

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol"
)

// Scenario is a mixed fleet loaded from JSON. Fields an agent leaves out
// fall back to the FleetSpec passed to Apply.
type Scenario struct {
	Agents []ScenarioAgent
}

// ScenarioAgent describes one agent of a scenario.
type ScenarioAgent struct {
	ID          string
	Source      model.MotionSource
	Box         *core.BoundingBox
	MaxVelocity *float64
	Position    *model.Position
	TLE1, TLE2  string
}

// internal JSON shapes; unexported so the file format can evolve.
type scenarioJSON struct {
	Agents []agentJSON `json:"agents"`
}

type agentJSON struct {
	ID          string          `json:"id"`
	Motion      string          `json:"motion"` // random-walk | stationary | orbital
	BBox        *[4]float64     `json:"bbox"`   // ulLat, ulLon, lrLat, lrLon
	MaxVelocity *float64        `json:"max_velocity"`
	Position    *model.Position `json:"position"`
	TLE         []string        `json:"tle"`
}

// LoadScenarioFile opens path and decodes it with LoadScenario.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// LoadScenario reads a JSON scenario from r. It fails on JSON or structural
// errors; duplicate IDs are left to the registry to reject.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	if len(payload.Agents) == 0 {
		return nil, fmt.Errorf("LoadScenario: no agents")
	}

	s := &Scenario{Agents: make([]ScenarioAgent, 0, len(payload.Agents))}
	for i, js := range payload.Agents {
		if js.ID == "" {
			return nil, fmt.Errorf("LoadScenario: agent %d has an empty id", i)
		}
		source, err := model.ParseMotionSource(js.Motion)
		if err != nil || source == model.MotionSourceUnknown {
			return nil, fmt.Errorf("LoadScenario: agent %s: unknown motion %q", js.ID, js.Motion)
		}
		a := ScenarioAgent{
			ID:          js.ID,
			Source:      source,
			MaxVelocity: js.MaxVelocity,
			Position:    js.Position,
		}
		if js.BBox != nil {
			box, err := core.NewBoundingBox(
				core.Coordinate{Lat: js.BBox[0], Lon: js.BBox[1]},
				core.Coordinate{Lat: js.BBox[2], Lon: js.BBox[3]},
			)
			if err == nil {
				err = box.CheckOrientation()
			}
			if err != nil {
				return nil, fmt.Errorf("LoadScenario: agent %s: %w", js.ID, err)
			}
			a.Box = &box
		}
		if js.Position != nil {
			if err := core.ValidateCoordinate(js.Position.Lat, js.Position.Lon); err != nil {
				return nil, fmt.Errorf("LoadScenario: agent %s: %w", js.ID, err)
			}
		}
		switch source {
		case model.MotionSourceOrbital:
			if len(js.TLE) != 2 {
				return nil, fmt.Errorf("LoadScenario: agent %s: orbital motion needs two TLE lines", js.ID)
			}
			a.TLE1, a.TLE2 = js.TLE[0], js.TLE[1]
		case model.MotionSourceStationary:
			if js.Position == nil && js.BBox == nil {
				return nil, fmt.Errorf("LoadScenario: agent %s: stationary motion needs a position or bbox", js.ID)
			}
		}
		s.Agents = append(s.Agents, a)
	}
	return s, nil
}

// Apply adds every scenario agent to g. defaults supplies the box, speed,
// TLE and epoch for agents that leave them out.
func (s *Scenario) Apply(g *Generator, defaults FleetSpec, rng *rand.Rand) error {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	for _, a := range s.Agents {
		spec := defaults
		spec.Source = a.Source
		if a.Box != nil {
			spec.Box = *a.Box
		}
		if a.MaxVelocity != nil {
			spec.MaxVelocity = *a.MaxVelocity
		}
		if a.TLE1 != "" {
			spec.TLE1, spec.TLE2 = a.TLE1, a.TLE2
		}

		var build StreamFactory
		if a.Source == model.MotionSourceStationary && a.Position != nil {
			pos := *a.Position
			build = func(p protocol.Protocol) (core.Stream, error) {
				return core.NewStationary(core.Coordinate{Lat: pos.Lat, Lon: pos.Lon}, pos.AltHAE, p), nil
			}
		} else {
			var err error
			if build, err = streamFactory(g, spec, 0, a.ID, rng); err != nil {
				return fmt.Errorf("agent %s: %w", a.ID, err)
			}
		}
		if err := g.AddAgent(a.ID, a.Source, build); err != nil {
			return err
		}
	}
	return nil
}
