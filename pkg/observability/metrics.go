// Package observability publishes engine lifecycle events as Prometheus
// metrics.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cadence/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Hook it into the engine
// via Hooks() and expose the registry with promhttp.
type Metrics struct {
	turnsTotal     *prometheus.CounterVec
	turnDuration   prometheus.Histogram
	flowPushes     *prometheus.CounterVec
	flowPops       *prometheus.CounterVec
	actionsTotal   *prometheus.CounterVec
	actionDuration prometheus.Histogram
	stackDepth     prometheus.Gauge

	mu         sync.Mutex
	turnStarts map[string]time.Time
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_turns_total",
			Help: "Completed conversation turns by resting state.",
		}, []string{"state"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadence_turn_duration_seconds",
			Help:    "Wall time of one conversation turn.",
			Buckets: prometheus.DefBuckets,
		}),
		flowPushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_flow_pushes_total",
			Help: "Flow instances pushed onto the stack.",
		}, []string{"flow"}),
		flowPops: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_flow_pops_total",
			Help: "Flow instances popped off the stack by result.",
		}, []string{"flow", "result"}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadence_actions_total",
			Help: "External action invocations by outcome.",
		}, []string{"action", "outcome"}),
		actionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cadence_action_duration_seconds",
			Help:    "Wall time of external action execution.",
			Buckets: prometheus.DefBuckets,
		}),
		stackDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cadence_flow_stack_depth",
			Help: "Flow stack depth observed at the last push or pop.",
		}),
		turnStarts: make(map[string]time.Time),
	}
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(_ context.Context, ev *domain.TurnEvent) {
			m.mu.Lock()
			m.turnStarts[ev.ThreadID] = time.Now()
			m.mu.Unlock()
		},
		OnTurnEnd: func(_ context.Context, ev *domain.TurnEvent) {
			m.turnsTotal.WithLabelValues(string(ev.State)).Inc()

			m.mu.Lock()
			start, ok := m.turnStarts[ev.ThreadID]
			delete(m.turnStarts, ev.ThreadID)
			m.mu.Unlock()
			if ok {
				m.turnDuration.Observe(time.Since(start).Seconds())
			}
		},
		OnFlowPush: func(_ context.Context, ev *domain.FlowEvent) {
			m.flowPushes.WithLabelValues(ev.FlowName).Inc()
			m.stackDepth.Set(float64(ev.Depth))
		},
		OnFlowPop: func(_ context.Context, ev *domain.FlowEvent) {
			m.flowPops.WithLabelValues(ev.FlowName, string(ev.Result)).Inc()
			m.stackDepth.Set(float64(ev.Depth))
		},
		OnActionReturn: func(_ context.Context, ev *domain.ActionEvent) {
			outcome := "success"
			if ev.Err != nil {
				outcome = "error"
			}
			m.actionsTotal.WithLabelValues(ev.Name, outcome).Inc()
			m.actionDuration.Observe(ev.Duration.Seconds())
		},
	}
}
