package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
)

func TestChannelStateMachine_Lifecycle(t *testing.T) {
	cs := NewChannelStateMachine()
	ctx := context.Background()

	if cs.Current() != ChannelStateConnecting {
		t.Fatalf("initial state = %s, want %s", cs.Current(), ChannelStateConnecting)
	}

	steps := []struct {
		event string
		want  string
	}{
		{ChannelEventEstablished, ChannelStateLive},
		{ChannelEventDropped, ChannelStateStale},
		{ChannelEventResumed, ChannelStateLive},
		{ChannelEventDropped, ChannelStateStale},
		{ChannelEventClose, ChannelStateClosed},
	}
	for _, s := range steps {
		if err := cs.Event(ctx, s.event); err != nil {
			t.Fatalf("Event(%s): %v", s.event, err)
		}
		if cs.Current() != s.want {
			t.Errorf("after %s state = %s, want %s", s.event, cs.Current(), s.want)
		}
	}
}

func TestChannelStateMachine_InvalidEvents(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
		event string
	}{
		{"resume while connecting", nil, ChannelEventResumed},
		{"establish twice", []string{ChannelEventEstablished}, ChannelEventEstablished},
		{"resume while live", []string{ChannelEventEstablished}, ChannelEventResumed},
		{"drop after close", []string{ChannelEventClose}, ChannelEventDropped},
		{"close twice", []string{ChannelEventClose}, ChannelEventClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := NewChannelStateMachine()
			ctx := context.Background()
			for _, e := range tt.setup {
				if err := cs.Event(ctx, e); err != nil {
					t.Fatalf("setup %s: %v", e, err)
				}
			}
			if cs.Can(tt.event) {
				t.Errorf("Can(%s) = true in %s", tt.event, cs.Current())
			}
			err := cs.Event(ctx, tt.event)
			var invalidErr fsm.InvalidEventError
			if !errors.As(err, &invalidErr) {
				t.Errorf("expected InvalidEventError, got %T: %v", err, err)
			}
		})
	}
}

func TestChannelStateMachine_OnEnter(t *testing.T) {
	cs := NewChannelStateMachine()
	ctx := context.Background()

	var stale, live int
	cs.OnEnter(ChannelStateStale, func() { stale++ })
	cs.OnEnter(ChannelStateLive, func() { live++ })

	for _, e := range []string{ChannelEventEstablished, ChannelEventDropped, ChannelEventResumed} {
		if err := cs.Event(ctx, e); err != nil {
			t.Fatalf("Event(%s): %v", e, err)
		}
	}

	if stale != 1 {
		t.Errorf("stale callbacks = %d, want 1", stale)
	}
	if live != 2 {
		t.Errorf("live callbacks = %d, want 2", live)
	}
}
