package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishRunsAllHandlersAndReturnsFirstError(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()

	errFirst := errors.New("first")
	var order []string
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		order = append(order, "a")
		return errFirst
	})
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		order = append(order, "b")
		return errors.New("second")
	})

	err := dispatcher.Publish(context.Background(), Event{Type: EventTicketCreated})
	if !errors.Is(err, errFirst) {
		t.Fatalf("expected the first handler error, got %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("every handler must run, got %v", order)
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	called := false
	dispatcher.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	if err := dispatcher.Publish(context.Background(), Event{Type: EventTicketStatusChanged}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if called {
		t.Fatal("handler for another type must not run")
	}
}
