// internal/alarm/evaluate.go
package alarm

import (
	"math"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Alarm state evaluation.
 *
 * Pure transition function from (previous state, value, thresholds, age) to the
 * new AlarmState. No I/O and no shared state; callers cache the result per metric.
 *
 * Precedence:
 *   1. Stale: now - lastUpdate > staleAfter (staleAfter 0 disables)
 *   2. None: value is NaN (no reading is not an alarm)
 *   3. Critical: value crosses the critical bound
 *   4. Warning: value crosses the warning bound
 *   5. None
 *
 * Undefined bounds (nil) are skipped, never treated as zero.
 *
 * Hysteresis: with a non-zero band, a metric already at Warning or Critical keeps
 * that level until the value retreats past bound - band (Above) or bound + band
 * (Below). Entry always uses the bound itself.
 */

// Input carries everything Evaluate needs for one metric.
type Input struct {
	Value      float64
	Now        time.Time
	LastUpdate time.Time
	Thresholds types.ResolvedThresholds
	Direction  types.Direction
	StaleAfter time.Duration
	Previous   types.AlarmState
}

// Evaluate computes the alarm state for in.
func Evaluate(in Input) types.AlarmState {
	if IsStale(in.Now, in.LastUpdate, in.StaleAfter) {
		return types.AlarmStale
	}
	if math.IsNaN(in.Value) {
		return types.AlarmNone
	}

	if c := in.Thresholds.Critical; c != nil {
		if crosses(in.Direction, in.Value, *c, band(in, types.AlarmCritical)) {
			return types.AlarmCritical
		}
	}
	if w := in.Thresholds.Warning; w != nil {
		if crosses(in.Direction, in.Value, *w, band(in, types.AlarmWarning)) {
			return types.AlarmWarning
		}
	}
	return types.AlarmNone
}

// IsStale reports whether more than staleAfter elapsed since lastUpdate.
// A zero staleAfter or zero lastUpdate never goes stale.
func IsStale(now, lastUpdate time.Time, staleAfter time.Duration) bool {
	if staleAfter <= 0 || lastUpdate.IsZero() {
		return false
	}
	return now.Sub(lastUpdate) > staleAfter
}

// band returns the exit band for level: the configured hysteresis when the
// previous state is at or above level, else zero.
func band(in Input, level types.AlarmState) float64 {
	h := in.Thresholds.Hysteresis
	if h <= 0 || math.IsNaN(h) {
		return 0
	}
	if severity(in.Previous) >= severity(level) {
		return h
	}
	return 0
}

// severity orders alarm levels; Stale ranks with None.
func severity(s types.AlarmState) int {
	switch s {
	case types.AlarmCritical:
		return 2
	case types.AlarmWarning:
		return 1
	default:
		return 0
	}
}
