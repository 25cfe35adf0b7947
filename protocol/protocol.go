// Package protocol defines the contract every telemetry wire format satisfies.
//
// A Protocol builds Messages from a position; a Message can be tagged with an
// agent identifier and serialized to its canonical wire bytes. Motion models
// and the fleet runner only ever talk to these interfaces.
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProtocol is returned by Lookup for names nothing registered.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Message is a protocol-neutral telemetry message under construction.
type Message interface {
	// WithAgentID returns a copy of the message with id attached to every
	// identity-carrying field of the format. The receiver is left untouched.
	WithAgentID(id string) Message

	// Bytes serializes the message to the format's wire representation.
	Bytes() ([]byte, error)
}

// Protocol constructs messages of one wire format.
type Protocol interface {
	// Name is the short identifier used on the command line, e.g. "cot".
	Name() string

	// FromCoordinates builds a message carrying exactly the given position;
	// every other field keeps the format's default.
	FromCoordinates(lat, lon float64, altHAE float32) Message
}

// MustBytes serializes m and panics if the serializer rejects it. A message
// built through a Protocol is always serializable, so a failure here means
// the message was corrupted by the caller.
func MustBytes(m Message) []byte {
	b, err := m.Bytes()
	if err != nil {
		panic(fmt.Sprintf("protocol: serialize %T: %v", m, err))
	}
	return b
}

// IDValidator is implemented by protocols that restrict agent identifiers.
type IDValidator interface {
	ValidateAgentID(id string) error
}

// ValidateAgentID reports whether p can carry id. Protocols that do not
// implement IDValidator accept any identifier.
func ValidateAgentID(p Protocol, id string) error {
	if v, ok := p.(IDValidator); ok {
		return v.ValidateAgentID(id)
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Protocol)
)

// Register makes p available through Lookup. Registering a second protocol
// under the same name replaces the first.
func Register(p Protocol) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

// Lookup returns the protocol registered under name.
func Lookup(name string) (Protocol, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, name)
	}
	return p, nil
}

// Names lists registered protocol names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
