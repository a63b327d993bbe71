package fsm

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// ChannelStateMachine tracks the lifecycle of one change-stream subscription:
// connecting until the transport confirms, live while deliveries flow, stale
// after a drop until the transport resumes, closed after unsubscribe.
type ChannelStateMachine struct {
	fsm     *fsm.FSM
	mu      sync.Mutex
	onEnter map[string]func()
}

func NewChannelStateMachine() *ChannelStateMachine {
	cs := &ChannelStateMachine{
		onEnter: make(map[string]func()),
	}
	cs.fsm = fsm.NewFSM(
		ChannelStateConnecting,
		fsm.Events{
			{Name: ChannelEventEstablished, Src: []string{ChannelStateConnecting}, Dst: ChannelStateLive},
			{Name: ChannelEventDropped, Src: []string{ChannelStateConnecting, ChannelStateLive}, Dst: ChannelStateStale},
			{Name: ChannelEventResumed, Src: []string{ChannelStateStale}, Dst: ChannelStateLive},
			{Name: ChannelEventClose, Src: []string{ChannelStateConnecting, ChannelStateLive, ChannelStateStale}, Dst: ChannelStateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				// Called with cs.mu held by Event.
				if fn, ok := cs.onEnter[e.Dst]; ok {
					fn()
				}
			},
		},
	)
	return cs
}

func (cs *ChannelStateMachine) Current() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.fsm.Current()
}

func (cs *ChannelStateMachine) Event(ctx context.Context, event string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.fsm.Event(ctx, event)
}

func (cs *ChannelStateMachine) Can(event string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.fsm.Can(event)
}

// OnEnter registers fn to run when the machine enters state. fn must not
// call back into the machine.
func (cs *ChannelStateMachine) OnEnter(state string, fn func()) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.onEnter[state] = fn
}
