package domain

import (
	"context"
	"time"
)

// TurnEvent describes the start or end of one conversation turn.
type TurnEvent struct {
	ThreadID string
	Turn     int
	State    ConversationState
}

// FlowEvent describes a flow instance being pushed onto or popped off the stack.
type FlowEvent struct {
	ThreadID string
	FlowID   string
	FlowName string
	Result   FlowState
	Depth    int
}

// ActionEvent describes an external action invocation.
type ActionEvent struct {
	ThreadID string
	Name     string
	StepID   string
	Duration time.Duration
	Err      error
}

// LifecycleHooks defines optional callbacks for engine observability. All
// fields may be nil; the engine checks before invoking.
type LifecycleHooks struct {
	OnTurnStart    func(context.Context, *TurnEvent)
	OnTurnEnd      func(context.Context, *TurnEvent)
	OnFlowPush     func(context.Context, *FlowEvent)
	OnFlowPop      func(context.Context, *FlowEvent)
	OnActionCall   func(context.Context, *ActionEvent)
	OnActionReturn func(context.Context, *ActionEvent)
}
