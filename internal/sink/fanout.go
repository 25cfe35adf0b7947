package sink

import (
	"context"
	"errors"
)

// SendObserver is told about every per-sink send. The generator collector's
// ObserveSend satisfies it.
type SendObserver func(sink string, n int, err error)

// Fanout delivers each message to every member sink.
type Fanout struct {
	sinks    []Sink
	observer SendObserver
}

// NewFanout combines sinks. observer may be nil.
func NewFanout(observer SendObserver, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, observer: observer}
}

func (f *Fanout) Name() string { return "fanout" }

// Sinks returns the member sinks.
func (f *Fanout) Sinks() []Sink { return f.sinks }

// Send tries every sink even when an earlier one fails and joins the errors.
func (f *Fanout) Send(ctx context.Context, agentID string, payload []byte) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Send(ctx, agentID, payload)
		if f.observer != nil {
			f.observer(s.Name(), len(payload), err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
