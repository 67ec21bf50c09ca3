// internal/types/thresholds.go
package types

/*
 * Domain types for alarm threshold configuration.
 *
 * Provides ThresholdConfig, Bound, ResolvedThresholds and ConfigContext used by
 * internal/thresholds for resolution and internal/alarm for evaluation. These types
 * are storage agnostic - SQL rows and YAML profiles convert to them at the
 * configstore boundary.
 *
 * Key types:
 *   - ThresholdConfig: Per-metric alarm definition (direction, staleness, bounds)
 *   - Bound: Static min/max or formula with optional clamp
 *   - ResolvedThresholds: Concrete numeric bounds after resolution
 *   - ConfigContext: Named numeric configuration values a formula may reference
 */

import (
	"fmt"
	"strings"
	"time"
)

// Direction selects which side of a bound raises an alarm.
type Direction int

const (
	// Above alarms when value >= bound.
	Above Direction = iota
	// Below alarms when value <= bound.
	Below
)

// String returns "above" or "below".
func (d Direction) String() string {
	if d == Below {
		return "below"
	}
	return "above"
}

// ParseDirection converts "above"/"below" (case-insensitive) to Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above", "":
		return Above, nil
	case "below":
		return Below, nil
	default:
		return Above, fmt.Errorf("unknown threshold direction %q", s)
	}
}

// StaticBound is a fixed bound; Max is used for Above, Min for Below.
type StaticBound struct {
	Min *float64
	Max *float64
}

// FormulaBound computes a bound from the configuration context.
// Clamps apply after full evaluation.
type FormulaBound struct {
	Expression string
	ClampMin   *float64
	ClampMax   *float64
}

// Bound is either Static or Formula (mutually exclusive). Both nil = no bound.
type Bound struct {
	Static  *StaticBound
	Formula *FormulaBound
}

// IsZero reports whether the bound is undefined.
func (b Bound) IsZero() bool {
	return b.Static == nil && b.Formula == nil
}

// ThresholdConfig defines alarm evaluation for one metric.
type ThresholdConfig struct {
	Direction  Direction
	StaleAfter time.Duration // 0 disables staleness
	Warning    Bound
	Critical   Bound
	Hysteresis float64 // 0 = no exit band
}

// ResolvedThresholds holds concrete bounds; nil means the bound is undefined and
// is skipped during evaluation.
type ResolvedThresholds struct {
	Warning    *float64
	Critical   *float64
	Hysteresis float64
}

// ConfigContext maps configuration names (capacity, nominalVoltage, maxRpm) to values.
// Owned by the configuration store; read-only to the pipeline.
type ConfigContext map[string]float64

// Clone returns an independent copy.
func (c ConfigContext) Clone() ConfigContext {
	out := make(ConfigContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether both contexts hold the same names and values.
func (c ConfigContext) Equal(o ConfigContext) bool {
	if len(c) != len(o) {
		return false
	}
	for k, v := range c {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Float returns a pointer to f, for optional bounds and clamps.
func Float(f float64) *float64 {
	return &f
}
