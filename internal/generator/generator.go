// Package generator drives a fleet of simulated agents: on every simulation
// tick each agent's motion stream produces a message, the message is tagged
// with the agent ID, serialized and handed to the configured sink.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/telemetry-generator/core"
	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/internal/observability"
	"github.com/signalsfoundry/telemetry-generator/internal/sink"
	"github.com/signalsfoundry/telemetry-generator/kb"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol"
	"github.com/signalsfoundry/telemetry-generator/timectrl"
)

// StreamFactory builds an agent's motion stream on top of the protocol the
// generator hands it.
type StreamFactory func(proto protocol.Protocol) (core.Stream, error)

type agent struct {
	id      string
	log     logging.Logger
	stream  core.Stream
	tap     *tapProtocol
	bounces uint64
}

// Generator owns a fleet of agents and steps them in lockstep.
type Generator struct {
	proto   protocol.Protocol
	sink    sink.Sink
	kb      *kb.KnowledgeBase
	metrics *observability.GeneratorCollector
	limiter *rate.Limiter
	log     logging.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	agents  []*agent
	sendErr error
}

// Option customises a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// WithKnowledgeBase records every emitted position in store.
func WithKnowledgeBase(store *kb.KnowledgeBase) Option {
	return func(g *Generator) { g.kb = store }
}

// WithMetrics records generator metrics in c.
func WithMetrics(c *observability.GeneratorCollector) Option {
	return func(g *Generator) { g.metrics = c }
}

// WithRateLimit caps emission at perSecond messages per wall-clock second.
// Zero or negative leaves emission unpaced.
func WithRateLimit(perSecond float64) Option {
	return func(g *Generator) {
		if perSecond > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithTracer overrides the tracer used for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Generator) {
		if t != nil {
			g.tracer = t
		}
	}
}

// New builds a generator emitting proto messages into out.
func New(proto protocol.Protocol, out sink.Sink, opts ...Option) *Generator {
	g := &Generator{
		proto: proto,
		sink:  out,
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.kb == nil {
		g.kb = kb.NewKnowledgeBase()
	}
	if g.tracer == nil {
		g.tracer = observability.Tracer()
	}
	return g
}

// KnowledgeBase returns the agent registry the generator writes to.
func (g *Generator) KnowledgeBase() *kb.KnowledgeBase { return g.kb }

// AddAgent registers a new agent whose stream is built by build.
func (g *Generator) AddAgent(id string, source model.MotionSource, build StreamFactory) error {
	if err := protocol.ValidateAgentID(g.proto, id); err != nil {
		return fmt.Errorf("agent %.40q: %w", id, err)
	}
	tap := &tapProtocol{inner: g.proto}
	stream, err := build(tap)
	if err != nil {
		return fmt.Errorf("agent %s: %w", id, err)
	}
	if err := g.kb.AddAgent(model.AgentDefinition{
		ID:           id,
		Protocol:     g.proto.Name(),
		MotionSource: source,
	}); err != nil {
		return err
	}

	g.mu.Lock()
	g.agents = append(g.agents, &agent{
		id:     id,
		log:    logging.ForAgent(g.log, id),
		stream: stream,
		tap:    tap,
	})
	n := len(g.agents)
	g.mu.Unlock()

	g.metrics.SetActiveAgents(n)
	return nil
}

// Agents returns the number of agents.
func (g *Generator) Agents() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.agents)
}

// Tick steps every agent once by dt and emits the resulting messages.
// Sink failures are logged and counted; only context cancellation aborts
// the tick.
func (g *Generator) Tick(ctx context.Context, simTime time.Time, dt time.Duration) error {
	g.mu.Lock()
	agents := append([]*agent(nil), g.agents...)
	g.mu.Unlock()

	ctx, span := g.tracer.Start(ctx, "generator.tick", trace.WithAttributes(
		attribute.String("sim_time", simTime.Format(time.RFC3339Nano)),
		attribute.Int("agents", len(agents)),
		attribute.String("protocol", g.proto.Name()),
	))
	defer span.End()

	start := time.Now()
	defer func() { g.metrics.ObserveTick(time.Since(start)) }()

	delta := core.TimeDeltaFromDuration(dt)
	for _, a := range agents {
		if err := g.emit(ctx, a, simTime, delta); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

func (g *Generator) emit(ctx context.Context, a *agent, simTime time.Time, dt core.TimeDelta) error {
	msg := a.stream.Next(dt).WithAgentID(a.id)
	payload := protocol.MustBytes(msg)
	g.metrics.IncMessages(g.proto.Name())

	if b, ok := a.stream.(interface{ Bounces() uint64 }); ok {
		total := b.Bounces()
		if total > a.bounces {
			g.metrics.AddBounces(total - a.bounces)
			a.log.Debug(ctx, "bounced off bounding box", logging.Uint64("bounces", total))
		}
		a.bounces = total
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := g.sink.Send(ctx, a.id, payload)
	if _, fanout := g.sink.(*sink.Fanout); !fanout {
		// a fanout reports per-member sends itself
		g.metrics.ObserveSend(g.sink.Name(), len(payload), err)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		g.mu.Lock()
		g.sendErr = err
		g.mu.Unlock()
		a.log.Warn(ctx, "sink send failed", logging.String("sink", g.sink.Name()), logging.Err(err))
	}

	if err := g.kb.UpdateAgentPosition(a.id, a.tap.last, simTime); err != nil {
		a.log.Warn(ctx, "registry update failed", logging.Err(err))
	}
	return nil
}

// LastSendError returns the most recent sink failure, if any.
func (g *Generator) LastSendError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendErr
}

// Run attaches the generator to tc and runs it for duration of simulated
// time (0 runs until ctx is cancelled).
func (g *Generator) Run(ctx context.Context, tc *timectrl.TimeController, duration time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		errOnce sync.Once
		runErr  error
	)
	tc.AddListener(func(simTime time.Time, dt time.Duration) {
		if ctx.Err() != nil {
			return
		}
		if err := g.Tick(ctx, simTime, dt); err != nil {
			errOnce.Do(func() { runErr = err })
			cancel()
		}
	})

	g.log.Info(ctx, "generator started",
		logging.Int("agents", g.Agents()),
		logging.String("protocol", g.proto.Name()),
		logging.String("sink", g.sink.Name()),
		logging.String("mode", tc.Mode.String()),
		logging.String("tick", tc.Tick.String()),
	)
	<-tc.Start(ctx, duration)
	g.log.Info(ctx, "generator stopped", logging.Uint64("ticks", tc.Ticks()))

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// tapProtocol remembers the last position each agent's stream produced so
// the registry can be updated without decoding the message.
type tapProtocol struct {
	inner protocol.Protocol
	last  model.Position
}

func (t *tapProtocol) Name() string { return t.inner.Name() }

func (t *tapProtocol) FromCoordinates(lat, lon float64, altHAE float32) protocol.Message {
	t.last = model.Position{Lat: lat, Lon: lon, AltHAE: altHAE}
	return t.inner.FromCoordinates(lat, lon, altHAE)
}
