// Package modregistry provides Observer pattern interfaces for
// event-driven communication. Observers attach to the in-process event
// publisher to receive registry domain events without the core knowing
// about any particular delivery transport.
package modregistry

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer defines the interface for objects that want to be notified of
// registry events. Observers should handle events quickly to avoid
// blocking other observers.
type Observer interface {
	// OnEvent is called when an event occurs that the observer is
	// interested in. The context can be used for cancellation and
	// timeouts.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// ObserverInfo provides information about a registered observer.
type ObserverInfo struct {
	// ID is the unique identifier of the observer
	ID string `json:"id"`

	// EventTypes are the event types this observer is subscribed to.
	// Empty slice means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt indicates when the observer was registered
	RegisteredAt time.Time `json:"registeredAt"`
}

// FunctionalObserver provides a simple way to create observers using
// functions, without defining full structs.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates a new observer that uses the provided
// function to handle events.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements the Observer interface by calling the handler function.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements the Observer interface by returning the observer ID.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// ObserverEventPublisher is an in-process EventPublisher that fans events
// out to registered observers. Observer errors are logged, never
// propagated: event delivery is fire-and-forget for the registry core,
// and consumers must tolerate at-least-once delivery.
type ObserverEventPublisher struct {
	mu        sync.RWMutex
	observers map[string]*observerRegistration
	clock     Clock
	logger    Logger
}

// NewObserverEventPublisher creates an empty publisher. A nil logger
// falls back to NoopLogger.
func NewObserverEventPublisher(clock Clock, logger Logger) *ObserverEventPublisher {
	if logger == nil {
		logger = NoopLogger{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ObserverEventPublisher{
		observers: make(map[string]*observerRegistration),
		clock:     clock,
		logger:    logger,
	}
}

// RegisterObserver adds an observer to receive notifications. Observers
// can optionally filter events by type; an empty eventTypes list receives
// all events. Registering an observer id twice replaces the earlier
// registration.
func (p *ObserverEventPublisher) RegisterObserver(observer Observer, eventTypes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	filter := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		filter[t] = true
	}
	p.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   filter,
		registeredAt: p.clock.Now(),
	}
}

// UnregisterObserver removes an observer. Unregistering an unknown
// observer is a no-op.
func (p *ObserverEventPublisher) UnregisterObserver(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.observers, observer.ObserverID())
}

// GetObservers returns information about currently registered observers.
func (p *ObserverEventPublisher) GetObservers() []ObserverInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]ObserverInfo, 0, len(p.observers))
	for id, reg := range p.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		infos = append(infos, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	return infos
}

// Publish implements EventPublisher by delivering the event to every
// observer whose filter matches its type.
func (p *ObserverEventPublisher) Publish(ctx context.Context, event cloudevents.Event) error {
	p.mu.RLock()
	registrations := make([]*observerRegistration, 0, len(p.observers))
	for _, reg := range p.observers {
		registrations = append(registrations, reg)
	}
	p.mu.RUnlock()

	for _, reg := range registrations {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		if err := reg.observer.OnEvent(ctx, event); err != nil {
			p.logger.Error("Observer failed to handle event",
				"observer", reg.observer.ObserverID(), "eventType", event.Type(), "error", err)
		}
	}
	return nil
}
