// Package sink delivers serialized telemetry messages to their destination.
//
// Every sink accepts one message per Send call; how messages are framed on
// the wire (datagram, stream delimiter, pub/sub message) is the sink's job.
package sink

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownKind is returned for sink kinds Open does not know.
var ErrUnknownKind = errors.New("unknown sink kind")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("sink closed")

// Sink receives serialized messages. Implementations are safe for
// concurrent use.
type Sink interface {
	// Name is the label used in logs and metrics.
	Name() string
	Send(ctx context.Context, agentID string, payload []byte) error
	Close() error
}

// Sink kinds accepted by Open.
const (
	KindStdout    = "stdout"
	KindFile      = "file"
	KindUDP       = "udp"
	KindNATS      = "nats"
	KindRedis     = "redis"
	KindWebSocket = "websocket"
)

// Kinds lists every sink kind in a stable order.
func Kinds() []string {
	return []string{KindStdout, KindFile, KindUDP, KindNATS, KindRedis, KindWebSocket}
}

// Spec names one sink and where it delivers to.
type Spec struct {
	Kind   string
	Target string
}

func (s Spec) String() string {
	if s.Target == "" {
		return s.Kind
	}
	return s.Kind + "=" + s.Target
}

// ParseSpecs parses a comma-separated list of "kind" or "kind=target"
// entries. Entries without a target use defaultTarget.
func ParseSpecs(list, defaultTarget string) ([]Spec, error) {
	var specs []Spec
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		kind, target, hasTarget := strings.Cut(raw, "=")
		kind = strings.ToLower(strings.TrimSpace(kind))
		if !slices.Contains(Kinds(), kind) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
		if !hasTarget {
			target = defaultTarget
		}
		specs = append(specs, Spec{Kind: kind, Target: strings.TrimSpace(target)})
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty sink list", ErrUnknownKind)
	}
	return specs, nil
}

// Options tune sinks built by Open.
type Options struct {
	// Delimiter is appended after each message on stream sinks.
	Delimiter []byte
	// Subject prefixes NATS subjects and Redis channels/keys.
	Subject string
}

// Open builds the sink described by spec.
func Open(ctx context.Context, spec Spec, opts Options) (Sink, error) {
	switch spec.Kind {
	case KindStdout:
		return NewStdout(WithDelimiter(opts.Delimiter)), nil
	case KindFile:
		if spec.Target == "" {
			return nil, errors.New("file sink needs a target path")
		}
		return NewFile(spec.Target, WithDelimiter(opts.Delimiter))
	case KindUDP:
		target := spec.Target
		if target == "" {
			target = DefaultUDPTarget
		}
		return DialUDP(ctx, target)
	case KindNATS:
		return DialNATS(spec.Target, opts.Subject)
	case KindRedis:
		return DialRedis(ctx, spec.Target, opts.Subject)
	case KindWebSocket:
		if spec.Target == "" {
			return nil, errors.New("websocket sink needs a ws:// or wss:// target")
		}
		return DialWebSocket(ctx, spec.Target)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

// OpenAll opens every spec, closing the already-open sinks on failure.
func OpenAll(ctx context.Context, specs []Spec, opts Options) ([]Sink, error) {
	sinks := make([]Sink, 0, len(specs))
	for _, spec := range specs {
		s, err := Open(ctx, spec, opts)
		if err != nil {
			for _, opened := range sinks {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open %s sink: %w", spec, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
