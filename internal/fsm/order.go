package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// OrderStateMachine validates lifecycle moves. It holds no order state of its
// own: callers pass the current status in on every call.
type OrderStateMachine struct {
	fsm *fsm.FSM
	mu  sync.Mutex
}

// NewOrderStateMachine builds the forward-only print order lifecycle.
// Operators may skip ahead (e.g. processing straight to delivered) but never
// move back to a state already passed.
func NewOrderStateMachine() *OrderStateMachine {
	osm := &OrderStateMachine{}
	osm.fsm = fsm.NewFSM(
		OrderStatePendingPayment,
		fsm.Events{
			{Name: OrderEventPay, Src: []string{OrderStatePendingPayment}, Dst: OrderStateProcessing},
			{Name: OrderEventMarkReady, Src: []string{OrderStateProcessing}, Dst: OrderStateReadyForPickup},
			{Name: OrderEventComplete, Src: []string{OrderStateProcessing, OrderStateReadyForPickup}, Dst: OrderStateCompleted},
			{Name: OrderEventDeliver, Src: []string{OrderStateProcessing, OrderStateReadyForPickup, OrderStateCompleted}, Dst: OrderStateDelivered},
		},
		fsm.Callbacks{},
	)
	return osm
}

func (osm *OrderStateMachine) CanTransition(currentState, event string) bool {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentState)
	return osm.fsm.Can(event)
}

func (osm *OrderStateMachine) Transition(ctx context.Context, currentState, event string) (string, error) {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentState)
	if err := osm.fsm.Event(ctx, event); err != nil {
		return "", err
	}
	return osm.fsm.Current(), nil
}

func (osm *OrderStateMachine) AvailableEvents(currentState string) []string {
	osm.mu.Lock()
	defer osm.mu.Unlock()
	osm.fsm.SetState(currentState)
	return osm.fsm.AvailableTransitions()
}

// EventFor returns the event whose destination is targetState, or "" if no
// event leads there.
func EventFor(targetState string) string {
	switch targetState {
	case OrderStateProcessing:
		return OrderEventPay
	case OrderStateReadyForPickup:
		return OrderEventMarkReady
	case OrderStateCompleted:
		return OrderEventComplete
	case OrderStateDelivered:
		return OrderEventDeliver
	default:
		return ""
	}
}
