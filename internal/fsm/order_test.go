package fsm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/looplab/fsm"
)

func TestOrderStateMachine_ValidTransitions(t *testing.T) {
	tests := []struct {
		name         string
		currentState string
		event        string
		wantState    string
	}{
		{
			name:         "pending payment to processing via pay",
			currentState: OrderStatePendingPayment,
			event:        OrderEventPay,
			wantState:    OrderStateProcessing,
		},
		{
			name:         "processing to ready via mark_ready",
			currentState: OrderStateProcessing,
			event:        OrderEventMarkReady,
			wantState:    OrderStateReadyForPickup,
		},
		{
			name:         "ready to completed via complete",
			currentState: OrderStateReadyForPickup,
			event:        OrderEventComplete,
			wantState:    OrderStateCompleted,
		},
		{
			name:         "completed to delivered via deliver",
			currentState: OrderStateCompleted,
			event:        OrderEventDeliver,
			wantState:    OrderStateDelivered,
		},
		{
			name:         "processing skips ahead to delivered",
			currentState: OrderStateProcessing,
			event:        OrderEventDeliver,
			wantState:    OrderStateDelivered,
		},
		{
			name:         "processing skips ahead to completed",
			currentState: OrderStateProcessing,
			event:        OrderEventComplete,
			wantState:    OrderStateCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osm := NewOrderStateMachine()
			ctx := context.Background()

			newState, err := osm.Transition(ctx, tt.currentState, tt.event)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if newState != tt.wantState {
				t.Errorf("got state %q, want %q", newState, tt.wantState)
			}
		})
	}
}

func TestOrderStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name         string
		currentState string
		event        string
	}{
		{
			name:         "pending payment cannot be marked ready",
			currentState: OrderStatePendingPayment,
			event:        OrderEventMarkReady,
		},
		{
			name:         "pending payment cannot be delivered",
			currentState: OrderStatePendingPayment,
			event:        OrderEventDeliver,
		},
		{
			name:         "processing cannot pay again",
			currentState: OrderStateProcessing,
			event:        OrderEventPay,
		},
		{
			name:         "completed cannot go back to ready",
			currentState: OrderStateCompleted,
			event:        OrderEventMarkReady,
		},
		{
			name:         "ready cannot be marked ready again",
			currentState: OrderStateReadyForPickup,
			event:        OrderEventMarkReady,
		},
		{
			name:         "delivered is terminal - cannot complete",
			currentState: OrderStateDelivered,
			event:        OrderEventComplete,
		},
		{
			name:         "delivered is terminal - cannot deliver again",
			currentState: OrderStateDelivered,
			event:        OrderEventDeliver,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			osm := NewOrderStateMachine()
			ctx := context.Background()

			_, err := osm.Transition(ctx, tt.currentState, tt.event)
			if err == nil {
				t.Errorf("expected error for invalid transition %s + %s", tt.currentState, tt.event)
			}

			var invalidErr fsm.InvalidEventError
			if !errors.As(err, &invalidErr) {
				t.Errorf("expected InvalidEventError, got %T: %v", err, err)
			}
		})
	}
}

func TestOrderStateMachine_CanTransition(t *testing.T) {
	osm := NewOrderStateMachine()

	tests := []struct {
		currentState string
		event        string
		want         bool
	}{
		{OrderStatePendingPayment, OrderEventPay, true},
		{OrderStatePendingPayment, OrderEventMarkReady, false},
		{OrderStatePendingPayment, OrderEventComplete, false},
		{OrderStateProcessing, OrderEventMarkReady, true},
		{OrderStateProcessing, OrderEventComplete, true},
		{OrderStateProcessing, OrderEventDeliver, true},
		{OrderStateReadyForPickup, OrderEventMarkReady, false},
		{OrderStateReadyForPickup, OrderEventComplete, true},
		{OrderStateCompleted, OrderEventComplete, false},
		{OrderStateCompleted, OrderEventDeliver, true},
		{OrderStateDelivered, OrderEventDeliver, false},
		{OrderStateDelivered, OrderEventPay, false},
	}

	for _, tt := range tests {
		name := tt.currentState + "_" + tt.event
		t.Run(name, func(t *testing.T) {
			got := osm.CanTransition(tt.currentState, tt.event)
			if got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.currentState, tt.event, got, tt.want)
			}
		})
	}
}

func TestOrderStateMachine_AvailableEvents(t *testing.T) {
	osm := NewOrderStateMachine()

	tests := []struct {
		currentState string
		wantEvents   []string
	}{
		{OrderStatePendingPayment, []string{OrderEventPay}},
		{OrderStateProcessing, []string{OrderEventMarkReady, OrderEventComplete, OrderEventDeliver}},
		{OrderStateReadyForPickup, []string{OrderEventComplete, OrderEventDeliver}},
		{OrderStateCompleted, []string{OrderEventDeliver}},
		{OrderStateDelivered, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.currentState, func(t *testing.T) {
			got := osm.AvailableEvents(tt.currentState)

			if len(got) != len(tt.wantEvents) {
				t.Errorf("got %d events, want %d", len(got), len(tt.wantEvents))
				return
			}

			gotSet := make(map[string]bool)
			for _, e := range got {
				gotSet[e] = true
			}

			for _, want := range tt.wantEvents {
				if !gotSet[want] {
					t.Errorf("missing expected event %q in %v", want, got)
				}
			}
		})
	}
}

func TestEventFor(t *testing.T) {
	osm := NewOrderStateMachine()
	ctx := context.Background()

	for _, target := range []string{OrderStateProcessing, OrderStateReadyForPickup, OrderStateCompleted, OrderStateDelivered} {
		event := EventFor(target)
		if event == "" {
			t.Fatalf("no event leads to %s", target)
		}
		from := OrderStateProcessing
		if target == OrderStateProcessing {
			from = OrderStatePendingPayment
		}
		got, err := osm.Transition(ctx, from, event)
		if err != nil {
			t.Fatalf("Transition(%s, %s): %v", from, event, err)
		}
		if got != target {
			t.Errorf("EventFor(%s) = %s leads to %s", target, event, got)
		}
	}

	if EventFor(OrderStatePendingPayment) != "" {
		t.Error("nothing leads back to pending payment")
	}
}

func TestOrderStateMachine_ConcurrentAccess(t *testing.T) {
	osm := NewOrderStateMachine()
	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			osm.CanTransition(OrderStatePendingPayment, OrderEventPay)
			osm.CanTransition(OrderStateProcessing, OrderEventDeliver)
			osm.AvailableEvents(OrderStateReadyForPickup)

			_, _ = osm.Transition(ctx, OrderStatePendingPayment, OrderEventPay)
			_, _ = osm.Transition(ctx, OrderStateReadyForPickup, OrderEventComplete)
		}()
	}

	wg.Wait()
}

func TestOrderStateMachine_UnknownEvent(t *testing.T) {
	osm := NewOrderStateMachine()
	ctx := context.Background()

	_, err := osm.Transition(ctx, OrderStatePendingPayment, "cancel")
	if err == nil {
		t.Error("expected error for unknown event")
	}

	var unknownErr fsm.UnknownEventError
	if !errors.As(err, &unknownErr) {
		t.Errorf("expected UnknownEventError, got %T: %v", err, err)
	}
}
