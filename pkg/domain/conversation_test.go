package domain

import "testing"

func TestConversationTransitionTable(t *testing.T) {
	// Resting states only ever enter understanding.
	for _, s := range []ConversationState{StateIdle, StateWaitingForSlot} {
		if !s.CanTransition(StateUnderstanding) {
			t.Errorf("%s cannot enter understanding", s)
		}
	}

	// executing_action never jumps straight back to idle; response generation
	// is mandatory on the success path.
	if StateExecutingAction.CanTransition(StateIdle) {
		t.Errorf("executing_action -> idle should be illegal")
	}
	if !StateExecutingAction.CanTransition(StateGeneratingResponse) {
		t.Errorf("executing_action -> generating_response should be legal")
	}

	// error is recoverable both ways.
	if !StateError.CanTransition(StateIdle) || !StateError.CanTransition(StateUnderstanding) {
		t.Errorf("error state is not recoverable: %v", StateError.AllowedTransitions())
	}

	// No state may transition to itself.
	for state := range map[ConversationState]bool{
		StateIdle: true, StateUnderstanding: true, StateWaitingForSlot: true,
		StateValidatingSlot: true, StateCollecting: true, StateExecutingAction: true,
		StateGeneratingResponse: true, StateError: true,
	} {
		if state.CanTransition(state) {
			t.Errorf("%s has a self-edge", state)
		}
	}
}

func TestConversationStateValid(t *testing.T) {
	if !StateCollecting.Valid() {
		t.Errorf("collecting reported invalid")
	}
	if ConversationState("daydreaming").Valid() {
		t.Errorf("unknown state reported valid")
	}
}

func TestClassificationParse(t *testing.T) {
	c, err := ParseClassification("interruption", map[string]any{"flow": "book_flight"})
	if err != nil {
		t.Fatalf("ParseClassification() error: %v", err)
	}
	in, ok := c.(Interruption)
	if !ok || in.FlowName != "book_flight" {
		t.Errorf("parsed = %#v", c)
	}

	c, err = ParseClassification("confirmation", map[string]any{"affirmed": true, "clear": true})
	if err != nil {
		t.Fatalf("ParseClassification() error: %v", err)
	}
	conf, ok := c.(Confirmation)
	if !ok || !conf.Affirmed || !conf.Clear {
		t.Errorf("parsed = %#v", c)
	}

	if _, err := ParseClassification("small_talk", nil); err == nil {
		t.Errorf("unknown tag accepted")
	}
}
