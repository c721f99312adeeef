package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedSubscriberReceivesMatchingEvents(t *testing.T) {
	bus := New()

	received := make(chan Event, 1)
	bus.Subscribe(TypeCaseStarted, func(event Event) { received <- event })

	bus.Publish(Event{Type: TypeCaseFinished, Case: "ignored"})
	bus.Publish(Event{Type: TypeCaseStarted, Case: "Group.test_method"})

	select {
	case event := <-received:
		assert.Equal(t, TypeCaseStarted, event.Type)
		assert.Equal(t, "Group.test_method", event.Case)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("typed subscriber never received the event")
	}
}

func TestWildcardSubscriberReceivesEverything(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	var types []string
	done := make(chan struct{}, 2)
	bus.SubscribeAll(func(event Event) {
		mu.Lock()
		types = append(types, event.Type)
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(Event{Type: TypeCommandExecuted})
	bus.Publish(Event{Type: TypeTeardownHook})

	for range 2 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("wildcard subscriber did not receive both events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{TypeCommandExecuted, TypeTeardownHook}, types)
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, format)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	logger := &captureLogger{}
	bus := New(WithBufferSize(1), WithLogger(logger))

	block := make(chan struct{})
	bus.Subscribe(TypeCaseStarted, func(Event) { <-block })

	// Saturate the handler and its one-slot buffer, then overflow.
	for range 5 {
		bus.Publish(Event{Type: TypeCaseStarted})
	}
	close(block)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.NotEmpty(t, logger.lines)
}

func TestSubscribeIgnoresInvalidArguments(t *testing.T) {
	bus := New()
	bus.Subscribe("", func(Event) {})
	bus.Subscribe(TypeCaseStarted, nil)
	bus.SubscribeAll(nil)

	// No subscribers were registered, so publishing must not panic.
	bus.Publish(Event{Type: TypeCaseStarted})
}
