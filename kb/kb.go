// Package kb keeps the live view of every agent the generator is driving.
// The fleet runner writes to it after each emitted message; the /agents
// endpoint and tests read consistent snapshots from it.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/telemetry-generator/model"
)

var (
	ErrAgentExists   = errors.New("agent already exists")
	ErrAgentNotFound = errors.New("agent not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventAgentAdded EventType = iota
	EventAgentUpdated
	EventAgentRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAgentAdded:
		return "added"
	case EventAgentUpdated:
		return "updated"
	case EventAgentRemoved:
		return "removed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is emitted to subscribers when an agent changes.
type Event struct {
	Type  EventType
	Agent model.AgentDefinition
}

// KnowledgeBase is an in-memory, thread-safe store of agents.
type KnowledgeBase struct {
	mu sync.RWMutex

	agents map[string]*model.AgentDefinition

	nextSub int
	subs    map[int]func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		agents: make(map[string]*model.AgentDefinition),
		subs:   make(map[int]func(Event)),
	}
}

// AddAgent registers a new agent. IDs must be unique and non-empty.
func (kb *KnowledgeBase) AddAgent(a model.AgentDefinition) error {
	if a.ID == "" {
		return errors.New("agent ID is required")
	}
	kb.mu.Lock()
	if _, exists := kb.agents[a.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAgentExists, a.ID)
	}
	stored := a
	kb.agents[a.ID] = &stored
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventAgentAdded, Agent: a})
	return nil
}

// RemoveAgent drops an agent from the KB.
func (kb *KnowledgeBase) RemoveAgent(id string) error {
	kb.mu.Lock()
	a, ok := kb.agents[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAgentNotFound, id)
	}
	delete(kb.agents, id)
	event := Event{Type: EventAgentRemoved, Agent: *a}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetAgent returns a copy of the agent with the given ID.
func (kb *KnowledgeBase) GetAgent(id string) (model.AgentDefinition, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	a, ok := kb.agents[id]
	if !ok {
		return model.AgentDefinition{}, false
	}
	return *a, true
}

// ListAgents returns a snapshot of all agents ordered by ID.
func (kb *KnowledgeBase) ListAgents() []model.AgentDefinition {
	kb.mu.RLock()
	res := make([]model.AgentDefinition, 0, len(kb.agents))
	for _, a := range kb.agents {
		res = append(res, *a)
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len reports the number of registered agents.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.agents)
}

// UpdateAgentPosition records a freshly emitted position, bumps the agent's
// message count and notifies subscribers.
func (kb *KnowledgeBase) UpdateAgentPosition(id string, pos model.Position, simTime time.Time) error {
	kb.mu.Lock()
	a, ok := kb.agents[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAgentNotFound, id)
	}
	a.Position = pos
	a.LastUpdate = simTime
	a.MessagesSent++
	event := Event{
		Type:  EventAgentUpdated,
		Agent: *a, // copy for safety
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. Callbacks run synchronously
// on the writer's goroutine. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.nextSub
	kb.nextSub++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	if len(kb.subs) == 0 {
		return nil
	}
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, kb.subs[id])
	}
	return out
}

func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
