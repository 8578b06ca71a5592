// Package strategy is the pluggable-message-type registry: each yearly
// message type (BIRTHDAY, ANNIVERSARY, ...) implements Strategy, and the
// scheduler and worker operate only against the registry, never against a
// concrete type by name.
package strategy

import (
	"fmt"

	"github.com/greetday/greetday/internal/models"
)

// Strategy is everything the scheduler and worker need to know about one
// yearly message type, without knowing which one.
type Strategy interface {
	// MessageType is the registry key and the value stored in
	// MessageLog.MessageType / the idempotency key.
	MessageType() string
	// EventDate extracts the trigger date for user from the user record,
	// or ok=false if the user has no occurrence of this type configured
	// (e.g. AnniversaryDate is nil).
	EventDate(user *models.User) (date models.EventDate, ok bool)
	// ComposeMessage renders the greeting body for user.
	ComposeMessage(user *models.User) (subject, body string)
}

// ErrUnknownMessageType is returned by Registry.Get for an unregistered key.
type ErrUnknownMessageType struct {
	MessageType string
}

func (e *ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("strategy: unknown message type %q", e.MessageType)
}

// Registry holds the set of active strategies, keyed by MessageType.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds s to the registry, keyed by s.MessageType(). Registering
// the same message type twice overwrites the prior entry; callers wire the
// full set once at startup.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.MessageType()] = s
}

// Get returns the strategy for messageType, or ErrUnknownMessageType.
func (r *Registry) Get(messageType string) (Strategy, error) {
	s, ok := r.strategies[messageType]
	if !ok {
		return nil, &ErrUnknownMessageType{MessageType: messageType}
	}
	return s, nil
}

// All returns every registered strategy, in no particular order. The daily
// precomputer iterates this to cover every message type for every user.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}
