package runtime

import (
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// SlotOutcomeKind is the structural decision a slot-processing pass returns.
type SlotOutcomeKind int

const (
	// OutcomeProceed: normal advancement, all values ingested.
	OutcomeProceed SlotOutcomeKind = iota
	// OutcomeCorrect: the turn corrected an already-filled slot; the caller
	// must rewind to the step that re-validates it.
	OutcomeCorrect
	// OutcomeAmbiguous: confidence too low to act on; defer to the
	// digression resolver's retry handling.
	OutcomeAmbiguous
)

// SlotOutcome carries the decision plus the correction target when relevant.
type SlotOutcome struct {
	Kind          SlotOutcomeKind
	CorrectedSlot string
	PreviousStep  string
}

// DefaultMinConfidence is the overall-confidence floor below which a
// slot-bearing turn is treated as ambiguous rather than ingested.
const DefaultMinConfidence = 0.4

// SlotProcessor ingests extracted slot values into the active flow's scoped
// storage, normalizing them against the declared slot types and detecting
// corrections.
type SlotProcessor struct {
	stack         *Stack
	normalizer    ports.SlotNormalizer
	minConfidence float64
	now           func() time.Time
	logger        *slog.Logger
}

// NewSlotProcessor creates a processor. The normalizer may be nil, in which
// case values are ingested raw.
func NewSlotProcessor(stack *Stack, normalizer ports.SlotNormalizer, logger *slog.Logger) *SlotProcessor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SlotProcessor{
		stack:         stack,
		normalizer:    normalizer,
		minConfidence: DefaultMinConfidence,
		now:           time.Now,
		logger:        logger,
	}
}

// Process ingests the Understanding result for the turn.
//
// Corrections are detected from the classification tag OR from an extracted
// slot name that is already filled with a different value. The heuristic
// exists because classification confidence alone is not a reliable signal
// for "actually, change X".
func (p *SlotProcessor) Process(st *domain.DialogueState, def *domain.FlowDefinition, res *domain.UnderstandingResult) (SlotOutcome, error) {
	active := p.stack.Active(st)
	if active == nil {
		return SlotOutcome{}, domain.ErrNoActiveFlow
	}

	explicitCorrection := ""
	switch c := res.Classification.(type) {
	case domain.Correction:
		explicitCorrection = c.Slot
	case domain.Modification:
		explicitCorrection = c.Slot
	}

	if len(res.Slots) == 0 && explicitCorrection == "" && res.Confidence < p.minConfidence {
		return SlotOutcome{Kind: OutcomeAmbiguous}, nil
	}

	correctedSlot := explicitCorrection
	slots := st.Slots(active.FlowID)

	for _, extracted := range res.Slots {
		value := p.normalize(st, active.FlowID, def, extracted)

		previous, filled := slots[extracted.Name]
		if filled && !reflect.DeepEqual(previous, value) && correctedSlot == "" {
			correctedSlot = extracted.Name
		}

		if err := p.stack.SetSlot(st, extracted.Name, value); err != nil {
			return SlotOutcome{}, err
		}
		st.AppendTrace(domain.TraceSlot,
			fmt.Sprintf("%s=%v (confidence %.2f)", extracted.Name, value, extracted.Confidence), p.now())
	}

	if correctedSlot != "" {
		stepID, ok := def.CollectStepFor(correctedSlot)
		if !ok {
			// Corrected slot has no collect step (e.g. set via inputs); the
			// new value is stored, nothing to rewind to.
			p.logger.Debug("correction without collect step", "slot", correctedSlot)
			return SlotOutcome{Kind: OutcomeProceed}, nil
		}
		return SlotOutcome{
			Kind:          OutcomeCorrect,
			CorrectedSlot: correctedSlot,
			PreviousStep:  stepID,
		}, nil
	}
	return SlotOutcome{Kind: OutcomeProceed}, nil
}

// normalize runs the pluggable normalizer. Failure is non-fatal: the raw
// value is retained and flagged in metadata so it is never substituted
// silently.
func (p *SlotProcessor) normalize(st *domain.DialogueState, flowID string, def *domain.FlowDefinition, extracted domain.ExtractedSlot) any {
	if p.normalizer == nil {
		return extracted.Value
	}
	spec, ok := def.Slot(extracted.Name)
	if !ok {
		spec = domain.SlotSpec{Name: extracted.Name}
	}
	normalized, err := p.normalizer.Normalize(spec, extracted.Value)
	if err != nil {
		p.logger.Warn("slot normalization failed, keeping raw value",
			"slot", extracted.Name, "type", spec.Type, "err", err)
		st.FlagRawSlot(flowID, extracted.Name, err.Error())
		return extracted.Value
	}
	return normalized
}
