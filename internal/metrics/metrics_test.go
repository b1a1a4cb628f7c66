package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-valves/internal/queue"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

func TestObserveValve(t *testing.T) {
	ObserveValve(valve.Diagnostics{
		ID:            "metrics-living",
		Regime:        valve.RegimeWindowOpen,
		Updated:       true,
		Position:      12.5,
		Error:         -0.4,
		SweetSpot:     11.2,
		FeltTempDelta: 0.3,
	})

	if got := testutil.ToFloat64(ValvePosition.WithLabelValues("metrics-living")); got != 12.5 {
		t.Errorf("position = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(ValveError.WithLabelValues("metrics-living")); got != -0.4 {
		t.Errorf("error = %v, want -0.4", got)
	}
	if got := testutil.ToFloat64(Regime.WithLabelValues("metrics-living", valve.RegimeWindowOpen)); got != 1 {
		t.Errorf("window_open regime = %v, want 1", got)
	}
	if got := testutil.ToFloat64(Regime.WithLabelValues("metrics-living", valve.RegimeNormal)); got != 0 {
		t.Errorf("normal regime = %v, want 0", got)
	}

	// A snapshot without computed terms leaves the last values alone.
	ObserveValve(valve.Diagnostics{ID: "metrics-living", Regime: valve.RegimeUnavailable})
	if got := testutil.ToFloat64(ValvePosition.WithLabelValues("metrics-living")); got != 12.5 {
		t.Errorf("position after unavailable tick = %v, want 12.5", got)
	}
	if got := testutil.ToFloat64(Regime.WithLabelValues("metrics-living", valve.RegimeUnavailable)); got != 1 {
		t.Errorf("unavailable regime = %v, want 1", got)
	}
}

func TestObserveDispatch(t *testing.T) {
	tests := []struct {
		name   string
		result queue.Result
		label  string
	}{
		{"ok", queue.Result{Duration: time.Second}, "ok"},
		{"requeued", queue.Result{Err: errors.New("timeout"), Requeued: true}, "requeued"},
		{"superseded", queue.Result{Err: errors.New("timeout")}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(Dispatches.WithLabelValues(tt.label))
			ObserveDispatch(tt.result)
			after := testutil.ToFloat64(Dispatches.WithLabelValues(tt.label))
			if after-before != 1 {
				t.Errorf("%s counter moved by %v, want 1", tt.label, after-before)
			}
		})
	}
}

func TestQueueObservers(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	q := queue.New(queue.Options{Now: func() time.Time { return now }})
	Attach(q, valve.NewRegistry())

	before := testutil.ToFloat64(Gated.WithLabelValues(queue.GateSpacing))
	q.Enqueue(context.Background(), stubActuator("climate.metrics"), 20, false)

	if got := testutil.ToFloat64(QueueDepth); got != 1 {
		t.Errorf("queue depth = %v, want 1", got)
	}
	if got := testutil.ToFloat64(Gated.WithLabelValues(queue.GateSpacing)); got-before != 1 {
		t.Errorf("spacing gate counter moved by %v, want 1", got-before)
	}
}

type stubActuator string

func (s stubActuator) Name() string { return string(s) }

func (stubActuator) SetPosition(context.Context, int, bool) error { return nil }
