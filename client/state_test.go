package client

import (
	"testing"
	"time"
)

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{Closed, "Closed"},
		{RendezvousPending, "RendezvousPending"},
		{LoginPending, "LoginPending"},
		{Idle, "Idle"},
		{QueryPending, "QueryPending"},
		{Closing, "Closing"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNewStateManager(t *testing.T) {
	sm := NewStateManager()

	if sm == nil {
		t.Fatal("NewStateManager returned nil")
	}

	if sm.GetState() != Closed {
		t.Errorf("expected initial state Closed, got %s", sm.GetState())
	}
}

func TestLegalStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     ConnectionState
		to       ConnectionState
		shouldOK bool
	}{
		{"Closed to RendezvousPending", Closed, RendezvousPending, true},
		{"RendezvousPending to LoginPending", RendezvousPending, LoginPending, true},
		{"LoginPending to Idle", LoginPending, Idle, true},
		{"Idle to QueryPending", Idle, QueryPending, true},
		{"QueryPending to Idle", QueryPending, Idle, true},
		{"Idle to Closing", Idle, Closing, true},
		{"QueryPending to Closing", QueryPending, Closing, true},
		{"Closing to Closed", Closing, Closed, true},
		// Illegal transitions
		{"Closed to Idle", Closed, Idle, false},
		{"Closed to QueryPending", Closed, QueryPending, false},
		{"Idle to LoginPending", Idle, LoginPending, false},
		{"RendezvousPending to QueryPending", RendezvousPending, QueryPending, false},
	}

	path := map[ConnectionState][]ConnectionState{
		RendezvousPending: {RendezvousPending},
		LoginPending:      {RendezvousPending, LoginPending},
		Idle:              {RendezvousPending, LoginPending, Idle},
		QueryPending:      {RendezvousPending, LoginPending, Idle, QueryPending},
		Closing:           {RendezvousPending, LoginPending, Idle, Closing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateManager()
			for _, step := range path[tt.from] {
				sm.TransitionTo(step, nil, nil)
			}

			err := sm.TransitionTo(tt.to, nil, nil)

			if tt.shouldOK && err != nil {
				t.Errorf("expected legal transition, got error: %v", err)
			}
			if !tt.shouldOK && err == nil {
				t.Errorf("expected illegal transition error, got none")
			}
		})
	}
}

func TestSocketErrorCollapsesToClosed(t *testing.T) {
	sm := NewStateManager()
	sm.TransitionTo(RendezvousPending, nil, nil)
	sm.TransitionTo(LoginPending, nil, nil)
	sm.TransitionTo(Idle, nil, nil)
	sm.TransitionTo(QueryPending, nil, nil)

	if err := sm.TransitionTo(Closed, errTest, nil); err != nil {
		t.Fatalf("expected socket error to force Closed, got %v", err)
	}
	if sm.GetState() != Closed {
		t.Errorf("expected Closed, got %s", sm.GetState())
	}
}

var errTest = &ConnectionError{Kind: TransportKind, Message: "socket reset"}

func TestStateChangeHandlers(t *testing.T) {
	sm := NewStateManager()

	var capturedTransitions []StateTransition

	sm.OnStateChange(func(transition StateTransition) {
		capturedTransitions = append(capturedTransitions, transition)
	})

	err := sm.TransitionTo(RendezvousPending, nil, map[string]interface{}{
		"reason": "test",
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	if len(capturedTransitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(capturedTransitions))
	}

	trans := capturedTransitions[0]
	if trans.From != Closed {
		t.Errorf("expected From=Closed, got %s", trans.From)
	}
	if trans.To != RendezvousPending {
		t.Errorf("expected To=RendezvousPending, got %s", trans.To)
	}
	if reason, ok := trans.Metadata["reason"].(string); !ok || reason != "test" {
		t.Errorf("expected metadata reason='test', got %v", trans.Metadata["reason"])
	}
}

func TestMultipleHandlers(t *testing.T) {
	sm := NewStateManager()

	count1 := 0
	count2 := 0

	sm.OnStateChange(func(transition StateTransition) { count1++ })
	sm.OnStateChange(func(transition StateTransition) { count2++ })

	sm.TransitionTo(RendezvousPending, nil, nil)

	if count1 != 1 {
		t.Errorf("expected handler 1 called once, got %d", count1)
	}
	if count2 != 1 {
		t.Errorf("expected handler 2 called once, got %d", count2)
	}
}

func TestTransitionDuration(t *testing.T) {
	sm := NewStateManager()

	var duration time.Duration
	sm.OnStateChange(func(transition StateTransition) {
		duration = transition.Duration
	})

	time.Sleep(10 * time.Millisecond)
	sm.TransitionTo(RendezvousPending, nil, nil)

	if duration < 10*time.Millisecond {
		t.Errorf("expected duration >= 10ms, got %v", duration)
	}
}

func TestIsBusy(t *testing.T) {
	sm := NewStateManager()
	if sm.IsBusy() {
		t.Error("Closed should not be busy")
	}
	sm.TransitionTo(RendezvousPending, nil, nil)
	if !sm.IsBusy() {
		t.Error("RendezvousPending should be busy")
	}
	sm.TransitionTo(LoginPending, nil, nil)
	sm.TransitionTo(Idle, nil, nil)
	if sm.IsBusy() {
		t.Error("Idle should not be busy")
	}
	sm.TransitionTo(QueryPending, nil, nil)
	if !sm.IsBusy() {
		t.Error("QueryPending should be busy")
	}
}

func TestTransitionWithError(t *testing.T) {
	sm := NewStateManager()
	sm.TransitionTo(RendezvousPending, nil, nil)
	sm.TransitionTo(LoginPending, nil, nil)
	sm.TransitionTo(Idle, nil, nil)

	var capturedError error
	sm.OnStateChange(func(transition StateTransition) {
		capturedError = transition.Error
	})

	testErr := &ConnectionError{Kind: TransportKind, Message: "test error"}
	sm.TransitionTo(Closed, testErr, nil)

	if capturedError == nil {
		t.Fatal("expected error in transition, got nil")
	}
	if capturedError.Error() != testErr.Error() {
		t.Errorf("expected error %v, got %v", testErr, capturedError)
	}
}
