// Package config assembles generator settings from defaults, TELEMGEN_*
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/internal/sink"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol/cot"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
)

var (
	ErrInvalidBBox     = errors.New("invalid bounding box")
	ErrInvalidAgents   = errors.New("invalid agent count")
	ErrInvalidVelocity = errors.New("invalid max velocity")
	ErrInvalidTick     = errors.New("invalid tick")
	ErrUnknownSink     = errors.New("unknown sink")
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrInvalidMotion   = errors.New("invalid motion source")
	ErrInvalidAgentID  = errors.New("invalid agent id")
)

// Protocols lists the wire formats the generator can emit.
var Protocols = []string{cot.Name, stanag.Name}

// Config holds every generator setting.
type Config struct {
	Protocol    string
	Motion      string
	Agents      int
	AgentPrefix string // empty means random UUID-based IDs

	BBox        string // "ulLat,ulLon,lrLat,lrLon"
	MaxVelocity float64
	TLE1        string
	TLE2        string
	Scenario    string // JSON fleet file; replaces the homogeneous fleet

	Tick        time.Duration
	Duration    time.Duration // 0 runs until interrupted
	Accelerated bool
	Seed        uint64 // 0 seeds from the clock
	Rate        float64

	Sinks    string
	Target   string
	Subject  string
	StreamID uint

	StaleAfter  time.Duration
	MetricsAddr string // empty disables the HTTP server
}

// Default returns the built-in settings: one CoT agent walking a box in
// eastern Utah, printed to stdout once per second.
func Default() Config {
	return Config{
		Protocol:    cot.Name,
		Motion:      model.MotionSourceRandomWalk.String(),
		Agents:      1,
		AgentPrefix: "agent",
		BBox:        "39,-110,38,-109.5",
		MaxVelocity: 30,
		Tick:        time.Second,
		Sinks:       sink.KindStdout,
		Subject:     sink.DefaultSubject,
		StaleAfter:  cot.DefaultStaleAfter,
		MetricsAddr: ":9090",
	}
}

// FromEnv overlays TELEMGEN_* variables read through getenv onto Default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	parse := func(key string, fn func(string) error) {
		if v := getenv(key); v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}

	str("TELEMGEN_PROTOCOL", &cfg.Protocol)
	str("TELEMGEN_MOTION", &cfg.Motion)
	str("TELEMGEN_AGENT_PREFIX", &cfg.AgentPrefix)
	str("TELEMGEN_BBOX", &cfg.BBox)
	str("TELEMGEN_TLE1", &cfg.TLE1)
	str("TELEMGEN_TLE2", &cfg.TLE2)
	str("TELEMGEN_SCENARIO", &cfg.Scenario)
	str("TELEMGEN_SINK", &cfg.Sinks)
	str("TELEMGEN_TARGET", &cfg.Target)
	str("TELEMGEN_SUBJECT", &cfg.Subject)
	str("TELEMGEN_METRICS_ADDR", &cfg.MetricsAddr)

	parse("TELEMGEN_AGENTS", func(v string) (err error) { cfg.Agents, err = strconv.Atoi(v); return })
	parse("TELEMGEN_MAX_VELOCITY", func(v string) (err error) { cfg.MaxVelocity, err = strconv.ParseFloat(v, 64); return })
	parse("TELEMGEN_TICK", func(v string) (err error) { cfg.Tick, err = time.ParseDuration(v); return })
	parse("TELEMGEN_DURATION", func(v string) (err error) { cfg.Duration, err = time.ParseDuration(v); return })
	parse("TELEMGEN_ACCELERATED", func(v string) (err error) { cfg.Accelerated, err = strconv.ParseBool(v); return })
	parse("TELEMGEN_SEED", func(v string) (err error) { cfg.Seed, err = strconv.ParseUint(v, 10, 64); return })
	parse("TELEMGEN_RATE", func(v string) (err error) { cfg.Rate, err = strconv.ParseFloat(v, 64); return })
	parse("TELEMGEN_COT_STALE", func(v string) (err error) { cfg.StaleAfter, err = time.ParseDuration(v); return })
	parse("TELEMGEN_STREAM_ID", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		cfg.StreamID = uint(n)
		return err
	})

	return cfg, errors.Join(errs...)
}

// BindFlags registers one flag per setting on fs, using the current values
// as defaults so flags override the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Protocol, "protocol", c.Protocol, "wire format: "+strings.Join(Protocols, "|"))
	fs.StringVar(&c.Motion, "motion", c.Motion, "motion source: random-walk|stationary|orbital")
	fs.IntVar(&c.Agents, "agents", c.Agents, "number of simulated agents")
	fs.StringVar(&c.AgentPrefix, "agent-prefix", c.AgentPrefix, "agent ID prefix; empty assigns random UUIDs")
	fs.StringVar(&c.BBox, "bbox", c.BBox, `bounding box "ulLat,ulLon,lrLat,lrLon" in degrees`)
	fs.Float64Var(&c.MaxVelocity, "max-velocity", c.MaxVelocity, "maximum agent speed in m/s")
	fs.StringVar(&c.TLE1, "tle1", c.TLE1, "TLE line 1 for orbital agents")
	fs.StringVar(&c.TLE2, "tle2", c.TLE2, "TLE line 2 for orbital agents")
	fs.StringVar(&c.Scenario, "scenario", c.Scenario, "JSON scenario file describing a mixed fleet")
	fs.DurationVar(&c.Tick, "tick", c.Tick, "simulated time between messages")
	fs.DurationVar(&c.Duration, "duration", c.Duration, "total simulated duration (0 runs until interrupted)")
	fs.BoolVar(&c.Accelerated, "accelerated", c.Accelerated, "advance simulated time as fast as possible")
	fs.Uint64Var(&c.Seed, "seed", c.Seed, "random seed (0 seeds from the clock)")
	fs.Float64Var(&c.Rate, "rate", c.Rate, "cap on emitted messages per wall-clock second (0 is unlimited)")
	fs.StringVar(&c.Sinks, "sink", c.Sinks, "comma-separated sinks: "+strings.Join(sink.Kinds(), "|")+", each optionally kind=target")
	fs.StringVar(&c.Target, "target", c.Target, "default target for sinks given without one")
	fs.StringVar(&c.Subject, "subject", c.Subject, "NATS subject / Redis key prefix")
	fs.UintVar(&c.StreamID, "stream-id", c.StreamID, "STANAG stream ID")
	fs.DurationVar(&c.StaleAfter, "cot-stale", c.StaleAfter, "CoT stale offset")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP address for /metrics and /agents (empty disables)")
}

// Validate checks every setting and returns the first problem found.
func (c Config) Validate() error {
	if !slices.Contains(Protocols, c.Protocol) {
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, c.Protocol)
	}
	motion, err := c.MotionSource()
	if err != nil {
		return err
	}
	if c.Agents < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidAgents, c.Agents)
	}
	if err := c.validateAgentIDs(); err != nil {
		return err
	}
	if _, err := c.BoundingBox(); err != nil {
		return err
	}
	if c.MaxVelocity < 0 || math.IsNaN(c.MaxVelocity) || math.IsInf(c.MaxVelocity, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidVelocity, c.MaxVelocity)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTick, c.Tick)
	}
	if c.Tick%time.Millisecond != 0 {
		return fmt.Errorf("%w: %v is not a whole number of milliseconds", ErrInvalidTick, c.Tick)
	}
	if c.Duration < 0 {
		return fmt.Errorf("invalid duration: %v", c.Duration)
	}
	if c.Rate < 0 {
		return fmt.Errorf("invalid rate: %v", c.Rate)
	}
	if c.StreamID > math.MaxUint32 {
		return fmt.Errorf("invalid stream id: %d", c.StreamID)
	}
	if motion == model.MotionSourceOrbital && c.Scenario == "" && (c.TLE1 == "" || c.TLE2 == "") {
		return fmt.Errorf("%w: orbital agents need -tle1 and -tle2", ErrInvalidMotion)
	}
	if _, err := c.SinkSpecs(); err != nil {
		return err
	}
	return nil
}

// validateAgentIDs checks the longest generated ID against the protocol.
// Scenario IDs are checked when the agents are added.
func (c Config) validateAgentIDs() error {
	if c.Protocol != stanag.Name || c.AgentPrefix == "" {
		return nil
	}
	longest := fmt.Sprintf("%s-%03d", c.AgentPrefix, c.Agents)
	if err := stanag.ValidateAgentID(longest); err != nil {
		return fmt.Errorf("%w: prefix %.40q: %w", ErrInvalidAgentID, c.AgentPrefix, err)
	}
	return nil
}

// MotionSource parses Motion.
func (c Config) MotionSource() (model.MotionSource, error) {
	m, err := model.ParseMotionSource(c.Motion)
	if err != nil || m == model.MotionSourceUnknown {
		return model.MotionSourceUnknown, fmt.Errorf("%w: %q", ErrInvalidMotion, c.Motion)
	}
	return m, nil
}

// BoundingBox parses BBox.
func (c Config) BoundingBox() (core.BoundingBox, error) {
	return ParseBBox(c.BBox)
}

// SinkSpecs parses Sinks against Target.
func (c Config) SinkSpecs() ([]sink.Spec, error) {
	specs, err := sink.ParseSpecs(c.Sinks, c.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownSink, err)
	}
	return specs, nil
}

// ParseBBox parses "ulLat,ulLon,lrLat,lrLon". The upper-left corner must be
// north-west of (or level with) the lower-right one.
func ParseBBox(s string) (core.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.BoundingBox{}, fmt.Errorf("%w: want 4 comma-separated values, got %q", ErrInvalidBBox, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.BoundingBox{}, fmt.Errorf("%w: %q: %w", ErrInvalidBBox, p, err)
		}
		v[i] = f
	}
	box, err := core.NewBoundingBox(
		core.Coordinate{Lat: v[0], Lon: v[1]},
		core.Coordinate{Lat: v[2], Lon: v[3]},
	)
	if err != nil {
		return core.BoundingBox{}, fmt.Errorf("%w: %w", ErrInvalidBBox, err)
	}
	if err := box.CheckOrientation(); err != nil {
		return core.BoundingBox{}, fmt.Errorf("%w: %w", ErrInvalidBBox, err)
	}
	return box, nil
}
