package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol/cot"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
)

const mixedScenario = `{
  "agents": [
    {"id": "walker", "motion": "random-walk", "bbox": [40, -111, 39.5, -110.5], "max_velocity": 5},
    {"id": "tower", "motion": "stationary", "position": {"lat": 38.6, "lon": -109.6, "hae": 1400}},
    {"id": "iss", "motion": "orbital", "tle": [
      "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
      "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
    ]}
  ]
}`

func TestLoadScenarioAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(mixedScenario), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := LoadScenarioFile(path)
	if err != nil {
		t.Fatalf("LoadScenarioFile: %v", err)
	}
	if len(s.Agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(s.Agents))
	}

	out := &memorySink{}
	g := New(cot.NewCodec(), out)
	defaults := FleetSpec{Box: testBox(t), MaxVelocity: 30, Epoch: time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)}
	if err := s.Apply(g, defaults, seeded(1)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for range 3 {
		if err := g.Tick(context.Background(), time.Now(), time.Minute); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}

	store := g.KnowledgeBase()
	walker, _ := store.GetAgent("walker")
	walkerBox, _ := core.NewBoundingBox(core.Coordinate{Lat: 40, Lon: -111}, core.Coordinate{Lat: 39.5, Lon: -110.5})
	if walker.MotionSource != model.MotionSourceRandomWalk || !walkerBox.Contains(core.Coordinate{Lat: walker.Position.Lat, Lon: walker.Position.Lon}) {
		t.Fatalf("walker = %+v, want inside its own box", walker)
	}
	tower, _ := store.GetAgent("tower")
	if tower.Position != (model.Position{Lat: 38.6, Lon: -109.6, AltHAE: 1400}) || tower.MessagesSent != 3 {
		t.Fatalf("tower = %+v", tower)
	}
	iss, _ := store.GetAgent("iss")
	if iss.MotionSource != model.MotionSourceOrbital || iss.Position.AltHAE < 300_000 {
		t.Fatalf("iss = %+v", iss)
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"not json", `agents:`, "decode failed"},
		{"unknown field", `{"agents": [{"id": "a", "motion": "stationary", "position": {"lat": 1, "lon": 1}, "colour": "red"}]}`, "decode failed"},
		{"empty", `{"agents": []}`, "no agents"},
		{"missing id", `{"agents": [{"motion": "random-walk"}]}`, "empty id"},
		{"bad motion", `{"agents": [{"id": "a", "motion": "hover"}]}`, "unknown motion"},
		{"bad bbox", `{"agents": [{"id": "a", "motion": "random-walk", "bbox": [95, 0, 0, 1]}]}`, "invalid coordinate"},
		{"inverted bbox", `{"agents": [{"id": "a", "motion": "random-walk", "bbox": [38, -109.5, 39, -110]}]}`, "corners inverted"},
		{"bad position", `{"agents": [{"id": "a", "motion": "stationary", "position": {"lat": 0, "lon": 200}}]}`, "invalid coordinate"},
		{"orbital without tle", `{"agents": [{"id": "a", "motion": "orbital"}]}`, "two TLE lines"},
		{"stationary nowhere", `{"agents": [{"id": "a", "motion": "stationary"}]}`, "position or bbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(strings.NewReader(tt.json))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("LoadScenario error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestScenarioRejectsIDsTooLongForStanag(t *testing.T) {
	long := strings.Repeat("s", stanag.MaxAgentIDLen+1)
	s, err := LoadScenario(strings.NewReader(`{"agents": [{"id": "` + long + `", "motion": "stationary", "position": {"lat": 1, "lon": 1}}]}`))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	g := New(stanag.NewPositionProtocol(1), &memorySink{})
	if err := s.Apply(g, FleetSpec{Box: testBox(t)}, seeded(2)); !errors.Is(err, stanag.ErrAgentIDTooLong) {
		t.Fatalf("Apply error = %v, want ErrAgentIDTooLong", err)
	}
	if g.Agents() != 0 {
		t.Fatalf("Agents = %d, want 0", g.Agents())
	}
}
