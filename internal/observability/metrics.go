package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GeneratorCollector bundles the Prometheus metrics of the fleet runner and
// its sinks.
type GeneratorCollector struct {
	gatherer prometheus.Gatherer

	MessagesGenerated *prometheus.CounterVec
	BytesEmitted      *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	BoundaryBounces   prometheus.Counter
	ActiveAgents      prometheus.Gauge
	TickDuration      prometheus.Histogram
}

// NewGeneratorCollector registers generator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewGeneratorCollector(reg prometheus.Registerer) (*GeneratorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemgen_messages_generated_total",
		Help: "Telemetry messages built, labeled by protocol.",
	}, []string{"protocol"})
	messages, err := registerCounterVec(reg, messages, "telemgen_messages_generated_total")
	if err != nil {
		return nil, err
	}

	emitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemgen_bytes_emitted_total",
		Help: "Serialized message bytes accepted by each sink.",
	}, []string{"sink"})
	emitted, err = registerCounterVec(reg, emitted, "telemgen_bytes_emitted_total")
	if err != nil {
		return nil, err
	}

	sinkErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemgen_sink_errors_total",
		Help: "Failed sink sends, labeled by sink.",
	}, []string{"sink"})
	sinkErrors, err = registerCounterVec(reg, sinkErrors, "telemgen_sink_errors_total")
	if err != nil {
		return nil, err
	}

	bounces, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemgen_boundary_bounces_total",
		Help: "Random-walk steps that hit the bounding box and reversed heading.",
	}), "telemgen_boundary_bounces_total")
	if err != nil {
		return nil, err
	}

	agents, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "telemgen_active_agents",
		Help: "Agents currently driven by the generator.",
	}), "telemgen_active_agents")
	if err != nil {
		return nil, err
	}

	tick, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemgen_tick_duration_seconds",
		Help:    "Wall-clock time spent stepping every agent for one simulation tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "telemgen_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &GeneratorCollector{
		gatherer:          gatherer,
		MessagesGenerated: messages,
		BytesEmitted:      emitted,
		SinkErrors:        sinkErrors,
		BoundaryBounces:   bounces,
		ActiveAgents:      agents,
		TickDuration:      tick,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *GeneratorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GeneratorCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// IncMessages counts one built message of the given protocol.
func (c *GeneratorCollector) IncMessages(protocol string) {
	if c == nil || c.MessagesGenerated == nil {
		return
	}
	c.MessagesGenerated.WithLabelValues(protocol).Inc()
}

// ObserveSend records the outcome of one sink send.
func (c *GeneratorCollector) ObserveSend(sink string, n int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		if c.SinkErrors != nil {
			c.SinkErrors.WithLabelValues(sink).Inc()
		}
		return
	}
	if c.BytesEmitted != nil {
		c.BytesEmitted.WithLabelValues(sink).Add(float64(n))
	}
}

// AddBounces adds n boundary bounces.
func (c *GeneratorCollector) AddBounces(n uint64) {
	if c == nil || c.BoundaryBounces == nil || n == 0 {
		return
	}
	c.BoundaryBounces.Add(float64(n))
}

// SetActiveAgents updates the active agent gauge.
func (c *GeneratorCollector) SetActiveAgents(n int) {
	if c == nil || c.ActiveAgents == nil {
		return
	}
	c.ActiveAgents.Set(float64(n))
}

// ObserveTick records how long one tick took.
func (c *GeneratorCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
