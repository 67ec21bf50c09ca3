// internal/alarm/evaluate_test.go
package alarm

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func above(warning, critical float64) types.ResolvedThresholds {
	return types.ResolvedThresholds{Warning: types.Float(warning), Critical: types.Float(critical)}
}

func TestEvaluate_AboveSequence(t *testing.T) {
	th := above(20, 30)
	values := []float64{10, 25, 35, 10}
	want := []types.AlarmState{types.AlarmNone, types.AlarmWarning, types.AlarmCritical, types.AlarmNone}

	prev := types.AlarmNone
	for i, v := range values {
		got := Evaluate(Input{
			Value:      v,
			Now:        t0,
			LastUpdate: t0,
			Thresholds: th,
			Direction:  types.Above,
			StaleAfter: 10 * time.Second,
			Previous:   prev,
		})
		if got != want[i] {
			t.Errorf("step %d value %v: Evaluate() = %v, want %v", i, v, got, want[i])
		}
		prev = got
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want types.AlarmState
	}{
		{
			name: "stale beats critical value",
			in:   Input{Value: 99, Now: t0.Add(11 * time.Second), LastUpdate: t0, Thresholds: above(20, 30), StaleAfter: 10 * time.Second},
			want: types.AlarmStale,
		},
		{
			name: "exactly at stale boundary is not stale",
			in:   Input{Value: 5, Now: t0.Add(10 * time.Second), LastUpdate: t0, Thresholds: above(20, 30), StaleAfter: 10 * time.Second},
			want: types.AlarmNone,
		},
		{
			name: "zero stale-after disables staleness",
			in:   Input{Value: 5, Now: t0.Add(time.Hour), LastUpdate: t0, Thresholds: above(20, 30)},
			want: types.AlarmNone,
		},
		{
			name: "NaN is none",
			in:   Input{Value: math.NaN(), Now: t0, LastUpdate: t0, Thresholds: above(20, 30), Previous: types.AlarmCritical},
			want: types.AlarmNone,
		},
		{
			name: "above equal to warning",
			in:   Input{Value: 20, Now: t0, LastUpdate: t0, Thresholds: above(20, 30)},
			want: types.AlarmWarning,
		},
		{
			name: "below shallow water",
			in:   Input{Value: 1.9, Now: t0, LastUpdate: t0, Thresholds: above(3, 2), Direction: types.Below},
			want: types.AlarmCritical,
		},
		{
			name: "below between bounds",
			in:   Input{Value: 2.5, Now: t0, LastUpdate: t0, Thresholds: above(3, 2), Direction: types.Below},
			want: types.AlarmWarning,
		},
		{
			name: "below safe",
			in:   Input{Value: 10, Now: t0, LastUpdate: t0, Thresholds: above(3, 2), Direction: types.Below},
			want: types.AlarmNone,
		},
		{
			name: "undefined critical skipped",
			in:   Input{Value: 100, Now: t0, LastUpdate: t0, Thresholds: types.ResolvedThresholds{Warning: types.Float(20)}},
			want: types.AlarmWarning,
		},
		{
			name: "no bounds never alarms",
			in:   Input{Value: -1e9, Now: t0, LastUpdate: t0, Direction: types.Below},
			want: types.AlarmNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.in); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Hysteresis(t *testing.T) {
	th := above(20, 30)
	th.Hysteresis = 2

	tests := []struct {
		name string
		prev types.AlarmState
		v    float64
		want types.AlarmState
	}{
		{"entry ignores band", types.AlarmNone, 19, types.AlarmNone},
		{"warning held inside band", types.AlarmWarning, 19, types.AlarmWarning},
		{"warning released past band", types.AlarmWarning, 17.9, types.AlarmNone},
		{"critical held inside band", types.AlarmCritical, 28.5, types.AlarmCritical},
		{"critical drops to warning past band", types.AlarmCritical, 27, types.AlarmWarning},
		{"warning does not enter critical early", types.AlarmWarning, 29, types.AlarmWarning},
		{"stale previous uses plain bounds", types.AlarmStale, 19, types.AlarmNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(Input{Value: tt.v, Now: t0, LastUpdate: t0, Thresholds: th, Previous: tt.prev})
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_NoHysteresisIgnoresPrevious(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("previous state is irrelevant without hysteresis", prop.ForAll(
		func(v float64, prev int, below bool) bool {
			dir := types.Above
			if below {
				dir = types.Below
			}
			base := Input{Value: v, Now: t0, LastUpdate: t0, Thresholds: above(20, 30), Direction: dir}
			withPrev := base
			withPrev.Previous = types.AlarmState(prev)
			return Evaluate(base) == Evaluate(withPrev)
		},
		gen.Float64Range(-100, 100),
		gen.IntRange(0, 3),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
