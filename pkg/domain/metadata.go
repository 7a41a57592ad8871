package domain

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Metadata keys. Every consumer goes through the typed accessors below; ad hoc
// key manipulation outside this file is a bug.
const (
	metaCompletedFlows = "completed_flows"
	metaRetryCount     = "retry_count"
	metaDigressions    = "digression_depth"
	metaNormalization  = "normalization_flags"
	metaPendingAction  = "pending_action"
)

// ArchivedFlow is the bounded record kept in metadata for each popped flow.
type ArchivedFlow struct {
	FlowID      string         `json:"flow_id" mapstructure:"flow_id"`
	FlowName    string         `json:"flow_name" mapstructure:"flow_name"`
	Result      FlowState      `json:"result" mapstructure:"result"`
	Outputs     map[string]any `json:"outputs,omitempty" mapstructure:"outputs"`
	CompletedAt string         `json:"completed_at" mapstructure:"completed_at"`
}

// PendingAction is the checkpointed record of a suspended action invocation.
// It is written before the engine enters executing_action and consumed by
// Resume, which matches the token the host hands back.
type PendingAction struct {
	Token  string         `json:"token" mapstructure:"token"`
	Name   string         `json:"name" mapstructure:"name"`
	StepID string         `json:"step_id" mapstructure:"step_id"`
	Inputs map[string]any `json:"inputs,omitempty" mapstructure:"inputs"`
}

func (s *DialogueState) meta() map[string]any {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return s.Metadata
}

// CompletedFlows decodes the bounded archive of popped flows. Values survive
// JSON round-trips as []any of map[string]any, hence the mapstructure decode.
func (s *DialogueState) CompletedFlows() []ArchivedFlow {
	raw, ok := s.meta()[metaCompletedFlows]
	if !ok {
		return nil
	}
	var flows []ArchivedFlow
	if err := mapstructure.Decode(raw, &flows); err != nil {
		return nil
	}
	return flows
}

// AppendCompletedFlow archives a popped flow. The Pruner trims the archive to
// its configured bound at the end of the turn.
func (s *DialogueState) AppendCompletedFlow(f ArchivedFlow) {
	s.meta()[metaCompletedFlows] = append(s.CompletedFlows(), f)
}

// TruncateCompletedFlows keeps the most recent max archive entries.
func (s *DialogueState) TruncateCompletedFlows(max int) {
	flows := s.CompletedFlows()
	if len(flows) > max {
		s.meta()[metaCompletedFlows] = flows[len(flows)-max:]
	}
}

// RetryCounter returns the current retry count for the named operation.
func (s *DialogueState) RetryCounter(op string) int {
	return s.metaInt(metaRetryCount + ":" + op)
}

// BumpRetryCounter increments and returns the retry count for op.
func (s *DialogueState) BumpRetryCounter(op string) int {
	n := s.RetryCounter(op) + 1
	s.meta()[metaRetryCount+":"+op] = n
	return n
}

// ResetRetryCounter clears the retry count for op.
func (s *DialogueState) ResetRetryCounter(op string) {
	delete(s.meta(), metaRetryCount+":"+op)
}

// DigressionDepth returns how many digressions were answered inline while the
// given flow instance has been active.
func (s *DialogueState) DigressionDepth(flowID string) int {
	return s.metaInt(metaDigressions + ":" + flowID)
}

// BumpDigressionDepth increments and returns the digression depth for a flow.
func (s *DialogueState) BumpDigressionDepth(flowID string) int {
	n := s.DigressionDepth(flowID) + 1
	s.meta()[metaDigressions+":"+flowID] = n
	return n
}

// ResetDigressionDepth clears the digression counter for a flow. Called when
// the flow is popped.
func (s *DialogueState) ResetDigressionDepth(flowID string) {
	delete(s.meta(), metaDigressions+":"+flowID)
}

// FlagRawSlot records that a slot value failed normalization and was kept raw.
func (s *DialogueState) FlagRawSlot(flowID, slot, reason string) {
	key := metaNormalization + ":" + flowID
	var flags map[string]any
	if raw, ok := s.meta()[key]; ok {
		_ = mapstructure.Decode(raw, &flags)
	}
	if flags == nil {
		flags = map[string]any{}
	}
	flags[slot] = reason
	s.meta()[key] = flags
}

// RawSlotFlag returns the normalization-failure reason recorded for a slot.
func (s *DialogueState) RawSlotFlag(flowID, slot string) (string, bool) {
	raw, ok := s.meta()[metaNormalization+":"+flowID]
	if !ok {
		return "", false
	}
	var flags map[string]string
	if err := mapstructure.Decode(raw, &flags); err != nil {
		return "", false
	}
	reason, ok := flags[slot]
	return reason, ok
}

// DropFlowScopedMeta removes per-flow metadata entries (digression depth and
// normalization flags) for flows not present in live, so flow-scoped counters
// cannot outlive their flow. The Pruner calls this in its orphan pass.
func (s *DialogueState) DropFlowScopedMeta(live map[string]bool) {
	for key := range s.meta() {
		var flowID string
		switch {
		case strings.HasPrefix(key, metaDigressions+":"):
			flowID = key[len(metaDigressions)+1:]
		case strings.HasPrefix(key, metaNormalization+":"):
			flowID = key[len(metaNormalization)+1:]
		default:
			continue
		}
		if !live[flowID] {
			delete(s.Metadata, key)
		}
	}
}

// SetPendingAction checkpoints a suspended action invocation.
func (s *DialogueState) SetPendingAction(p PendingAction) {
	s.meta()[metaPendingAction] = map[string]any{
		"token":   p.Token,
		"name":    p.Name,
		"step_id": p.StepID,
		"inputs":  p.Inputs,
	}
}

// TakePendingAction returns and clears the checkpointed action invocation.
func (s *DialogueState) TakePendingAction() (PendingAction, bool) {
	raw, ok := s.meta()[metaPendingAction]
	if !ok {
		return PendingAction{}, false
	}
	var p PendingAction
	if err := mapstructure.Decode(raw, &p); err != nil {
		return PendingAction{}, false
	}
	delete(s.meta(), metaPendingAction)
	return p, true
}

// PeekPendingAction returns the checkpointed invocation without clearing it.
func (s *DialogueState) PeekPendingAction() (PendingAction, bool) {
	raw, ok := s.meta()[metaPendingAction]
	if !ok {
		return PendingAction{}, false
	}
	var p PendingAction
	if err := mapstructure.Decode(raw, &p); err != nil {
		return PendingAction{}, false
	}
	return p, true
}

// metaInt reads an integer metadata value, tolerating the numeric widenings a
// JSON round-trip introduces.
func (s *DialogueState) metaInt(key string) int {
	switch v := s.meta()[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		if v == nil {
			return 0
		}
		var n int
		if err := mapstructure.WeakDecode(fmt.Sprintf("%v", v), &n); err != nil {
			return 0
		}
		return n
	}
}
