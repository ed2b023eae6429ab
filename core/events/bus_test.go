package events

import (
	"testing"

	"remitlend/core/types"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(types.NewEvent("pool.deposit"))
	select {
	case evt := <-ch:
		if evt.EventType() != "pool.deposit" {
			t.Fatalf("unexpected event %q", evt.EventType())
		}
	default:
		t.Fatalf("expected event to be delivered")
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(types.NewEvent("a"))
	bus.Emit(types.NewEvent("b"))
	if bus.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", bus.Dropped())
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(0)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
}
