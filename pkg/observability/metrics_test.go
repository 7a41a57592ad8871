package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnTurnStart(ctx, &domain.TurnEvent{ThreadID: "t-1", Turn: 1})
	hooks.OnFlowPush(ctx, &domain.FlowEvent{ThreadID: "t-1", FlowName: "book_flight", Depth: 1})
	hooks.OnActionReturn(ctx, &domain.ActionEvent{
		ThreadID: "t-1", Name: "create_booking", Duration: 120 * time.Millisecond,
	})
	hooks.OnActionReturn(ctx, &domain.ActionEvent{
		ThreadID: "t-1", Name: "create_booking", Err: errors.New("boom"),
	})
	hooks.OnFlowPop(ctx, &domain.FlowEvent{
		ThreadID: "t-1", FlowName: "book_flight", Result: domain.FlowCompleted, Depth: 0,
	})
	hooks.OnTurnEnd(ctx, &domain.TurnEvent{ThreadID: "t-1", Turn: 1, State: domain.StateIdle})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowPushes.WithLabelValues("book_flight")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flowPops.WithLabelValues("book_flight", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("create_booking", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsTotal.WithLabelValues("create_booking", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stackDepth))

	assert.Empty(t, m.turnStarts, "turn start entry must be cleared on turn end")
}

func TestMetricsTurnEndWithoutStart(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	// An end without a matching start must not panic or record a duration.
	m.Hooks().OnTurnEnd(context.Background(), &domain.TurnEvent{ThreadID: "t-x", State: domain.StateIdle})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("idle")))
}
