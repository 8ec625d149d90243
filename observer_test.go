package modregistry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingObserver collects the events it receives.
type recordingObserver struct {
	id     string
	mu     sync.Mutex
	events []cloudevents.Event
	err    error
}

func (o *recordingObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *recordingObserver) ObserverID() string { return o.id }

func (o *recordingObserver) received() []cloudevents.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]cloudevents.Event, len(o.events))
	copy(out, o.events)
	return out
}

func publisherTime() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestPublishFansOutToAllObservers(t *testing.T) {
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())

	first := &recordingObserver{id: "audit"}
	second := &recordingObserver{id: "notify"}
	publisher.RegisterObserver(first)
	publisher.RegisterObserver(second)

	event := NewRegistryEvent(EventTypeModuleRegistered, publisherTime(), nil)
	require.NoError(t, publisher.Publish(context.Background(), event))

	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
}

func TestPublishFiltersByEventType(t *testing.T) {
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())

	installs := &recordingObserver{id: "installs-only"}
	publisher.RegisterObserver(installs, EventTypeModuleInstallationRequested, EventTypeModuleInstallationCompleted)

	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, NewRegistryEvent(EventTypeModuleRegistered, publisherTime(), nil)))
	require.NoError(t, publisher.Publish(ctx, NewRegistryEvent(EventTypeModuleInstallationRequested, publisherTime(), nil)))

	received := installs.received()
	require.Len(t, received, 1)
	assert.Equal(t, EventTypeModuleInstallationRequested, received[0].Type())
}

func TestPublishSwallowsObserverErrors(t *testing.T) {
	logger := NewTestLogger()
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, logger)

	failing := &recordingObserver{id: "flaky", err: errors.New("webhook timeout")}
	healthy := &recordingObserver{id: "healthy"}
	publisher.RegisterObserver(failing)
	publisher.RegisterObserver(healthy)

	event := NewRegistryEvent(EventTypeModuleArchived, publisherTime(), nil)
	require.NoError(t, publisher.Publish(context.Background(), event))

	// The failing observer does not stop delivery to the rest.
	assert.Len(t, healthy.received(), 1)
}

func TestUnregisterObserver(t *testing.T) {
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())

	observer := &recordingObserver{id: "audit"}
	publisher.RegisterObserver(observer)
	require.Len(t, publisher.GetObservers(), 1)

	publisher.UnregisterObserver(observer)
	assert.Empty(t, publisher.GetObservers())

	require.NoError(t, publisher.Publish(context.Background(), NewRegistryEvent(EventTypeModuleRegistered, publisherTime(), nil)))
	assert.Empty(t, observer.received())
}

func TestRegisterObserverReplacesEarlierRegistration(t *testing.T) {
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())

	observer := &recordingObserver{id: "audit"}
	publisher.RegisterObserver(observer, EventTypeModuleRegistered)
	publisher.RegisterObserver(observer, EventTypeModuleArchived)

	infos := publisher.GetObservers()
	require.Len(t, infos, 1)
	assert.Equal(t, []string{EventTypeModuleArchived}, infos[0].EventTypes)
}

func TestFunctionalObserver(t *testing.T) {
	var got cloudevents.Event
	observer := NewFunctionalObserver("fn", func(_ context.Context, event cloudevents.Event) error {
		got = event
		return nil
	})
	assert.Equal(t, "fn", observer.ObserverID())

	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())
	publisher.RegisterObserver(observer)

	event := NewRegistryEvent(EventTypeModuleDeprecated, publisherTime(), nil)
	require.NoError(t, publisher.Publish(context.Background(), event))
	assert.Equal(t, EventTypeModuleDeprecated, got.Type())
}

func TestObserverPublisherBackingRegistryService(t *testing.T) {
	store := NewMemoryStore()
	publisher := NewObserverEventPublisher(FixedClock{Instant: publisherTime()}, NewTestLogger())
	audit := &recordingObserver{id: "audit"}
	publisher.RegisterObserver(audit)

	service := NewRegistryService(
		store,
		store.TenantModules(),
		store.Jobs(),
		store,
		StaticSubscriptions{},
		publisher,
		WithClock(FixedClock{Instant: publisherTime()}),
		WithIDGenerator(&SequentialIDGenerator{Prefix: "n"}),
	)

	_, err := service.RegisterModule(context.Background(), RegisterModuleInput{
		Name:        "membership",
		DisplayName: "Membership",
		Version:     MustParseVersion("1.0.0"),
	})
	require.NoError(t, err)

	received := audit.received()
	require.Len(t, received, 1)
	assert.Equal(t, EventTypeModuleRegistered, received[0].Type())
}
