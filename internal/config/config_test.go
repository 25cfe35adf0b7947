package config

import (
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/internal/sink"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	box, err := cfg.BoundingBox()
	if err != nil {
		t.Fatalf("BoundingBox: %v", err)
	}
	if box.Midpoint() != (core.Coordinate{Lat: 38.5, Lon: -109.75}) {
		t.Fatalf("default box midpoint = %+v", box.Midpoint())
	}
}

func TestFromEnvOverlaysDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"TELEMGEN_PROTOCOL":     "stanag",
		"TELEMGEN_AGENTS":       "12",
		"TELEMGEN_TICK":         "250ms",
		"TELEMGEN_ACCELERATED":  "true",
		"TELEMGEN_SEED":         "42",
		"TELEMGEN_SINK":         "udp,nats=nats://broker:4222",
		"TELEMGEN_TARGET":       "127.0.0.1:6000",
		"TELEMGEN_STREAM_ID":    "7",
		"TELEMGEN_MAX_VELOCITY": "12.5",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Protocol != "stanag" || cfg.Agents != 12 || cfg.Tick != 250*time.Millisecond ||
		!cfg.Accelerated || cfg.Seed != 42 || cfg.StreamID != 7 || cfg.MaxVelocity != 12.5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	// untouched settings keep their defaults
	if cfg.BBox != Default().BBox || cfg.AgentPrefix != "agent" {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	specs, err := cfg.SinkSpecs()
	if err != nil {
		t.Fatalf("SinkSpecs: %v", err)
	}
	want := []sink.Spec{{Kind: "udp", Target: "127.0.0.1:6000"}, {Kind: "nats", Target: "nats://broker:4222"}}
	if len(specs) != 2 || specs[0] != want[0] || specs[1] != want[1] {
		t.Fatalf("specs = %+v, want %+v", specs, want)
	}
}

func TestFromEnvReportsBadValues(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{
		"TELEMGEN_AGENTS": "many",
		"TELEMGEN_TICK":   "soon",
	}))
	if err == nil {
		t.Fatalf("expected parse errors")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"TELEMGEN_AGENTS": "5", "TELEMGEN_PROTOCOL": "stanag"}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	fs := flag.NewFlagSet("telemgen", flag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"-agents", "3", "-bbox", "10,20,5,25"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Agents != 3 || cfg.Protocol != "stanag" || cfg.BBox != "10,20,5,25" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown protocol", func(c *Config) { c.Protocol = "mavlink" }, ErrUnknownProtocol},
		{"zero agents", func(c *Config) { c.Agents = 0 }, ErrInvalidAgents},
		{"negative velocity", func(c *Config) { c.MaxVelocity = -1 }, ErrInvalidVelocity},
		{"zero tick", func(c *Config) { c.Tick = 0 }, ErrInvalidTick},
		{"sub-millisecond tick", func(c *Config) { c.Tick = 1500 * time.Microsecond }, ErrInvalidTick},
		{"bad bbox", func(c *Config) { c.BBox = "1,2,3" }, ErrInvalidBBox},
		{"unknown sink", func(c *Config) { c.Sinks = "kafka" }, ErrUnknownSink},
		{"unknown motion", func(c *Config) { c.Motion = "teleport" }, ErrInvalidMotion},
		{"orbital without tle", func(c *Config) { c.Motion = "orbital" }, ErrInvalidMotion},
		{"stanag prefix too long", func(c *Config) {
			c.Protocol = "stanag"
			c.AgentPrefix = strings.Repeat("p", 600)
		}, ErrInvalidAgentID},
		{"stanag suffix overflows", func(c *Config) {
			c.Protocol = "stanag"
			c.AgentPrefix = strings.Repeat("p", stanag.MaxAgentIDLen-4)
			c.Agents = 1000
		}, ErrInvalidAgentID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAgentPrefixLengthOnlyMattersForStanag(t *testing.T) {
	cfg := Default()
	cfg.AgentPrefix = strings.Repeat("p", 600)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("cot with a long prefix: Validate() = %v", err)
	}
	cfg.Protocol = "stanag"
	cfg.AgentPrefix = strings.Repeat("p", stanag.MaxAgentIDLen-4)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("stanag prefix at the limit: Validate() = %v", err)
	}
	cfg.AgentPrefix = ""
	cfg.Agents = 5000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("stanag with UUID ids: Validate() = %v", err)
	}
}

func TestScenarioRelaxesOrbitalTLE(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"TELEMGEN_MOTION":   "orbital",
		"TELEMGEN_SCENARIO": "fleet.json",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Scenario != "fleet.json" {
		t.Fatalf("Scenario = %q", cfg.Scenario)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil when a scenario supplies the fleet", err)
	}
}

func TestUnknownSinkKeepsKindError(t *testing.T) {
	cfg := Default()
	cfg.Sinks = "kafka"
	_, err := cfg.SinkSpecs()
	if !errors.Is(err, ErrUnknownSink) || !errors.Is(err, sink.ErrUnknownKind) {
		t.Fatalf("SinkSpecs error = %v, want both ErrUnknownSink and sink.ErrUnknownKind", err)
	}
}

func TestParseBBox(t *testing.T) {
	box, err := ParseBBox(" 39, -110 ,38,-109.5")
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}
	if box.UpperLeft != (core.Coordinate{Lat: 39, Lon: -110}) || box.LowerRight != (core.Coordinate{Lat: 38, Lon: -109.5}) {
		t.Fatalf("box = %+v", box)
	}

	for _, bad := range []string{
		"",
		"39,-110,38",
		"39,-110,38,east",
		"95,-110,38,-109.5", // latitude out of range
		"38,-110,39,-109.5", // upper-left south of lower-right
		"39,-109.5,38,-110", // upper-left east of lower-right
	} {
		if _, err := ParseBBox(bad); !errors.Is(err, ErrInvalidBBox) {
			t.Fatalf("ParseBBox(%q) error = %v, want ErrInvalidBBox", bad, err)
		}
	}
	if _, err := ParseBBox("95,0,0,1"); !errors.Is(err, core.ErrInvalidCoordinate) {
		t.Fatalf("range error should keep ErrInvalidCoordinate, got %v", err)
	}
	if _, err := ParseBBox("38,-110,39,-109.5"); !errors.Is(err, core.ErrInvertedBox) {
		t.Fatalf("orientation error should keep ErrInvertedBox, got %v", err)
	}
}

func TestMotionSource(t *testing.T) {
	cfg := Default()
	cfg.Motion = "stationary"
	m, err := cfg.MotionSource()
	if err != nil || m != model.MotionSourceStationary {
		t.Fatalf("MotionSource = %v, %v", m, err)
	}
	cfg.Motion = "unknown"
	if _, err := cfg.MotionSource(); !errors.Is(err, ErrInvalidMotion) {
		t.Fatalf("unknown motion error = %v", err)
	}
}
