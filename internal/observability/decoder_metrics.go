package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame decode outcomes used as the "result" label.
const (
	DecodeOK               = "ok"
	DecodeChecksumMismatch = "checksum_mismatch"
	DecodeParseError       = "parse_error"
)

// DecoderCollector exposes STANAG stream decoder metrics.
type DecoderCollector struct {
	gatherer prometheus.Gatherer

	FramesDecoded *prometheus.CounterVec
	PayloadBytes  prometheus.Histogram
}

// NewDecoderCollector registers decoder metrics against the provided registerer.
func NewDecoderCollector(reg prometheus.Registerer) (*DecoderCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stanag_frames_decoded_total",
		Help: "STANAG frames read from the input stream, labeled by decode result.",
	}, []string{"result"})
	frames, err := registerCounterVec(reg, frames, "stanag_frames_decoded_total")
	if err != nil {
		return nil, err
	}

	payload := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stanag_frame_payload_bytes",
		Help:    "Payload length of decoded STANAG frames.",
		Buckets: []float64{0, 16, 32, 64, 128, 256, 538, 1024, 4096},
	})
	payload, err = registerHistogram(reg, payload, "stanag_frame_payload_bytes")
	if err != nil {
		return nil, err
	}

	return &DecoderCollector{
		gatherer:      gatherer,
		FramesDecoded: frames,
		PayloadBytes:  payload,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *DecoderCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DecoderCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveFrame records one decoded frame and its verification result.
func (c *DecoderCollector) ObserveFrame(payloadLen int, checksumOK bool) {
	if c == nil {
		return
	}
	result := DecodeOK
	if !checksumOK {
		result = DecodeChecksumMismatch
	}
	if c.FramesDecoded != nil {
		c.FramesDecoded.WithLabelValues(result).Inc()
	}
	if c.PayloadBytes != nil {
		c.PayloadBytes.Observe(float64(payloadLen))
	}
}

// IncParseErrors counts a stream that stopped on a malformed frame.
func (c *DecoderCollector) IncParseErrors() {
	if c == nil || c.FramesDecoded == nil {
		return
	}
	c.FramesDecoded.WithLabelValues(DecodeParseError).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
