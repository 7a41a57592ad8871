package domain

import "fmt"

// Classification is the closed set of per-message interpretations produced by
// the Understanding collaborator. It is a sealed sum type: the unexported
// marker method keeps the variant set fixed so DigressionResolver can switch
// over it exhaustively instead of dispatching on tag strings.
type Classification interface {
	Tag() string
	classification()
}

// SlotValue: the message is a plain answer supplying one or more slot values.
type SlotValue struct{}

// Correction: the user is changing a slot that was already filled.
type Correction struct {
	Slot string
}

// Modification: the user wants to adjust an earlier choice mid-flow.
type Modification struct {
	Slot string
}

// Interruption: the user is starting a different flow, nesting or replacing
// the current one.
type Interruption struct {
	FlowName string
}

// Digression: a side question that departs from the expected input without
// abandoning the active flow.
type Digression struct {
	Topic string
}

// Clarification: the user is asking what is expected of them.
type Clarification struct {
	Topic string
}

// Cancellation: the user wants to abandon the active flow.
type Cancellation struct{}

// Confirmation: a yes/no answer to a pending confirm step. Clear is false
// when the classifier could not decide which way the answer went.
type Confirmation struct {
	Affirmed bool
	Clear    bool
}

// Continuation: the user wants to carry on ("ok", "go ahead") with no new data.
type Continuation struct{}

func (SlotValue) Tag() string     { return "slot_value" }
func (Correction) Tag() string    { return "correction" }
func (Modification) Tag() string  { return "modification" }
func (Interruption) Tag() string  { return "interruption" }
func (Digression) Tag() string    { return "digression" }
func (Clarification) Tag() string { return "clarification" }
func (Cancellation) Tag() string  { return "cancellation" }
func (Confirmation) Tag() string  { return "confirmation" }
func (Continuation) Tag() string  { return "continuation" }

func (SlotValue) classification()     {}
func (Correction) classification()    {}
func (Modification) classification()  {}
func (Interruption) classification()  {}
func (Digression) classification()    {}
func (Clarification) classification() {}
func (Cancellation) classification()  {}
func (Confirmation) classification()  {}
func (Continuation) classification()  {}

// ParseClassification converts a wire tag plus its optional fields into a
// Classification variant. Adapters (e.g. the OpenAI understander) use this to
// map model output onto the sealed type.
func ParseClassification(tag string, fields map[string]any) (Classification, error) {
	str := func(key string) string {
		if v, ok := fields[key].(string); ok {
			return v
		}
		return ""
	}
	boolean := func(key string) bool {
		v, ok := fields[key].(bool)
		return ok && v
	}

	switch tag {
	case "slot_value":
		return SlotValue{}, nil
	case "correction":
		return Correction{Slot: str("slot")}, nil
	case "modification":
		return Modification{Slot: str("slot")}, nil
	case "interruption":
		return Interruption{FlowName: str("flow")}, nil
	case "digression":
		return Digression{Topic: str("topic")}, nil
	case "clarification":
		return Clarification{Topic: str("topic")}, nil
	case "cancellation":
		return Cancellation{}, nil
	case "confirmation":
		return Confirmation{Affirmed: boolean("affirmed"), Clear: boolean("clear")}, nil
	case "continuation":
		return Continuation{}, nil
	default:
		return nil, fmt.Errorf("unknown classification tag %q", tag)
	}
}

// ExtractedSlot is one (name, value, confidence) triple extracted from the
// user message by the Understanding collaborator.
type ExtractedSlot struct {
	Name       string  `json:"name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// UnderstandingResult is the full structured output of one Understanding call.
type UnderstandingResult struct {
	Classification Classification
	Slots          []ExtractedSlot
	Confidence     float64
	Rationale      string
}

// UnderstandingContext is the conversational context handed to the
// Understanding collaborator alongside the raw message.
type UnderstandingContext struct {
	ThreadID       string
	ActiveFlow     string
	ExpectedSlot   string
	FilledSlots    map[string]any
	AvailableFlows []string
	RecentHistory  []string
}
