package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DecodeMode controls how strictly DecodeState treats incomplete records.
type DecodeMode int

const (
	// Strict fails with MalformedStateError when any persisted field is absent.
	Strict DecodeMode = iota

	// AllowPartial merges missing optional sections with freshly-constructed
	// defaults. This is a deliberate compatibility escape hatch for
	// eventual-consistency reads from the checkpoint store; identity fields
	// (version, thread_id, conversation_state) are still required.
	AllowPartial
)

// requiredFields must be present in every persisted record regardless of mode.
var requiredFields = []string{"version", "thread_id", "conversation_state"}

// optionalFields are defaulted under AllowPartial and required under Strict.
var optionalFields = []string{"turn_count", "flow_stack", "flow_slots", "trace", "metadata"}

// EncodeState serializes a DialogueState to its flat, versioned JSON layout.
func EncodeState(s *DialogueState) ([]byte, error) {
	if s.Version == 0 {
		s.Version = StateVersion
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dialogue state: %w", err)
	}
	return data, nil
}

// DecodeState deserializes a persisted record, validating field presence
// according to mode.
func DecodeState(data []byte, mode DecodeMode) (*DialogueState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode dialogue state: %w", err)
	}

	var missing []string
	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if mode == Strict {
		for _, f := range optionalFields {
			if _, ok := raw[f]; !ok {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MalformedStateError{Missing: missing}
	}

	var state DialogueState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode dialogue state: %w", err)
	}
	if !state.Conversation.Valid() {
		return nil, fmt.Errorf("unknown conversation state %q", state.Conversation)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("unsupported state version %d (max %d)", state.Version, StateVersion)
	}

	// Fill defaulted sections so callers never see nil maps.
	if state.FlowStack == nil {
		state.FlowStack = []FlowContext{}
	}
	if state.FlowSlots == nil {
		state.FlowSlots = map[string]map[string]any{}
	}
	if state.Trace == nil {
		state.Trace = []TraceEntry{}
	}
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}
	return &state, nil
}

// CloneState deep-copies a state through the codec. Used by in-memory stores
// to prevent external mutation of their internal snapshots.
func CloneState(s *DialogueState) (*DialogueState, error) {
	data, err := EncodeState(s)
	if err != nil {
		return nil, err
	}
	return DecodeState(data, AllowPartial)
}
