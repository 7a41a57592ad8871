package runtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
)

func TestPruneOrphanedSlots(t *testing.T) {
	p := NewPruner()
	st := domain.NewDialogueState("t1")
	st.FlowStack = append(st.FlowStack, domain.FlowContext{FlowID: "live", State: domain.FlowActive})
	st.Slots("live")["origin"] = "Madrid"
	st.Slots("gone")["origin"] = "Paris"

	p.Prune(st)

	if _, ok := st.FlowSlots["gone"]; ok {
		t.Errorf("orphaned slot storage survived pruning")
	}
	if st.Slots("live")["origin"] != "Madrid" {
		t.Errorf("live slot storage was pruned")
	}
}

func TestPruneFlowScopedMetadata(t *testing.T) {
	p := NewPruner()
	stack := NewStack(WithIDGenerator(sequentialIDs()))
	st := domain.NewDialogueState("t1")

	gone, err := stack.Push(st, "book_flight", nil)
	if err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	st.FlagRawSlot(gone, "date", "cannot parse")
	if _, err := stack.Pop(st, nil, domain.FlowCancelled); err != nil {
		t.Fatalf("Pop() error: %v", err)
	}

	live, err := stack.Push(st, "check_balance", nil)
	if err != nil {
		t.Fatalf("Push() error: %v", err)
	}
	st.FlagRawSlot(live, "account", "cannot parse")
	st.BumpDigressionDepth(live)

	p.Prune(st)

	if _, ok := st.RawSlotFlag(gone, "date"); ok {
		t.Errorf("normalization flags for popped flow survived pruning")
	}
	if reason, ok := st.RawSlotFlag(live, "account"); !ok || reason != "cannot parse" {
		t.Errorf("live flow flags pruned: %q/%v", reason, ok)
	}
	if st.DigressionDepth(live) != 1 {
		t.Errorf("live digression depth = %d, want 1", st.DigressionDepth(live))
	}
}

func TestPruneCompletedFlowsBound(t *testing.T) {
	p := NewPruner(WithMaxCompletedFlows(3))
	st := domain.NewDialogueState("t1")
	for i := 0; i < 7; i++ {
		st.AppendCompletedFlow(domain.ArchivedFlow{
			FlowID:   fmt.Sprintf("f%d", i),
			FlowName: "book_flight",
			Result:   domain.FlowCompleted,
		})
	}

	p.Prune(st)

	flows := st.CompletedFlows()
	if len(flows) != 3 {
		t.Fatalf("archive size = %d, want 3", len(flows))
	}
	// The most recent entries survive.
	if flows[0].FlowID != "f4" || flows[2].FlowID != "f6" {
		t.Errorf("archive = %v, want f4..f6", flows)
	}
}

func TestPruneTraceBound(t *testing.T) {
	p := NewPruner(WithMaxTrace(5))
	st := domain.NewDialogueState("t1")
	now := time.Now()
	for i := 0; i < 12; i++ {
		st.AppendTrace(domain.TraceTurn, fmt.Sprintf("msg %d", i), now)
	}

	p.Prune(st)

	if len(st.Trace) != 5 {
		t.Fatalf("trace size = %d, want 5", len(st.Trace))
	}
	if st.Trace[0].Detail != "msg 7" {
		t.Errorf("oldest surviving entry = %q, want msg 7", st.Trace[0].Detail)
	}
}

func TestPruneIsIdempotent(t *testing.T) {
	p := NewPruner(WithMaxCompletedFlows(2), WithMaxTrace(4))
	st := domain.NewDialogueState("t1")
	now := time.Now()
	for i := 0; i < 10; i++ {
		st.AppendCompletedFlow(domain.ArchivedFlow{FlowID: fmt.Sprintf("f%d", i)})
		st.AppendTrace(domain.TraceTurn, "m", now)
	}
	st.Slots("gone")["x"] = 1

	p.Prune(st)
	first := len(st.CompletedFlows())
	p.Prune(st)

	if got := len(st.CompletedFlows()); got != first || got != 2 {
		t.Errorf("archive after double prune = %d, want 2", got)
	}
	if len(st.Trace) != 4 {
		t.Errorf("trace after double prune = %d, want 4", len(st.Trace))
	}
}
