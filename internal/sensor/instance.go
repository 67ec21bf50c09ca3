// internal/sensor/instance.go
package sensor

import (
	"math"
	"sort"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/alarm"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/schema"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/thresholds"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Sensor instance state.
 *
 * One Instance per (sensorType, instance) pair. Holds the latest value of every
 * field, a bounded history per Number field, resolved thresholds and cached
 * alarm states. Instances are created by the registry and never destroyed during
 * a session; on disconnect they freeze and go Stale.
 *
 * Update contract:
 *   1. Validate every field against the schema (all-or-nothing)
 *   2. Store values; append Number values to their Series
 *   3. Re-evaluate the alarm state of every updated metric (including NaN)
 *   4. Return the names of fields whose value changed
 *
 * Thresholds are resolved in Configure, not in Update: formula evaluation runs
 * when configuration changes, and Update only compares against cached bounds.
 *
 * Staleness is tracked per field, so a depth sounder that stops while a GPS on
 * the same bus keeps talking still goes Stale on its own metrics.
 *
 * Not safe for concurrent use; the registry holds its lock around every call.
 */

// AlarmTransition records one metric changing alarm state.
type AlarmTransition struct {
	Field string
	From  types.AlarmState
	To    types.AlarmState
}

// Instance holds the state of one sensor.
type Instance struct {
	key     types.Key
	policy  SeriesPolicy
	created time.Time

	values       types.Fields
	fieldUpdated map[string]time.Time
	metrics      map[string]*Series
	lastUpdate   time.Time

	configs    map[string]types.ThresholdConfig
	context    types.ConfigContext
	thresholds map[string]types.ResolvedThresholds
	alarms     map[string]types.AlarmState
}

// NewInstance creates an empty instance.
func NewInstance(key types.Key, policy SeriesPolicy, now time.Time) *Instance {
	return &Instance{
		key:          key,
		policy:       policy,
		created:      now,
		values:       make(types.Fields),
		fieldUpdated: make(map[string]time.Time),
		metrics:      make(map[string]*Series),
		configs:      make(map[string]types.ThresholdConfig),
		thresholds:   make(map[string]types.ResolvedThresholds),
		alarms:       make(map[string]types.AlarmState),
	}
}

// Key returns the instance key.
func (i *Instance) Key() types.Key { return i.key }

// LastUpdate returns the timestamp of the most recent accepted update.
func (i *Instance) LastUpdate() time.Time { return i.lastUpdate }

// Value returns the latest value of a field.
func (i *Instance) Value(field string) (types.Value, bool) {
	v, ok := i.values[field]
	return v, ok
}

// Update validates and stores data. On a ValidationError nothing is stored.
// Returns changed field names (sorted) and alarm transitions.
func (i *Instance) Update(data types.Fields, ts time.Time) ([]string, []AlarmTransition, error) {
	if err := schema.Validate(i.key.SensorType, data); err != nil {
		return nil, nil, err
	}

	names := data.Names()
	sort.Strings(names)

	var changed []string
	var transitions []AlarmTransition
	for _, name := range names {
		v := data[name]
		if old, ok := i.values[name]; !ok || !old.Equal(v) {
			changed = append(changed, name)
		}
		i.values[name] = v
		i.fieldUpdated[name] = ts

		n, isNumber := v.Num()
		if !isNumber {
			continue
		}
		i.series(name).Append(n, ts)

		if tr, ok := i.evaluate(name, ts); ok {
			transitions = append(transitions, tr)
		}
	}

	if ts.After(i.lastUpdate) {
		i.lastUpdate = ts
	}
	return changed, transitions, nil
}

func (i *Instance) series(name string) *Series {
	s, ok := i.metrics[name]
	if !ok {
		s = NewSeries(i.policy)
		i.metrics[name] = s
	}
	return s
}

// evaluate recomputes the alarm state of a configured metric at now.
// Reports a transition when the cached state changed.
func (i *Instance) evaluate(name string, now time.Time) (AlarmTransition, bool) {
	cfg, ok := i.configs[name]
	if !ok {
		return AlarmTransition{}, false
	}

	value := math.NaN()
	if n, ok := i.values[name].Num(); ok {
		value = n
	}

	// zero when the metric never reported, which never goes stale
	lastUpdate := i.fieldUpdated[name]

	prev := i.alarms[name]
	next := alarm.Evaluate(alarm.Input{
		Value:      value,
		Now:        now,
		LastUpdate: lastUpdate,
		Thresholds: i.thresholds[name],
		Direction:  cfg.Direction,
		StaleAfter: cfg.StaleAfter,
		Previous:   prev,
	})
	i.alarms[name] = next
	if next == prev {
		return AlarmTransition{}, false
	}
	return AlarmTransition{Field: name, From: prev, To: next}, true
}

// Configure installs threshold configs and context, re-resolving thresholds when
// either changed. Alarm states of configured metrics are re-evaluated at now.
// Metrics whose config was removed return to None.
func (i *Instance) Configure(configs map[string]types.ThresholdConfig, ctx types.ConfigContext, resolver *thresholds.Resolver, now time.Time) []AlarmTransition {
	if ctx.Equal(i.context) && configsEqual(configs, i.configs) {
		return nil
	}

	accepted := make(map[string]types.ThresholdConfig, len(configs))
	for name, cfg := range configs {
		if field, ok := schema.Lookup(i.key.SensorType, name); ok && field.Alarmable() {
			accepted[name] = cfg
		}
	}

	var transitions []AlarmTransition
	for _, name := range sortedKeys(i.alarms) {
		if _, keep := accepted[name]; keep {
			continue
		}
		prev := i.alarms[name]
		delete(i.alarms, name)
		delete(i.thresholds, name)
		if prev != types.AlarmNone {
			transitions = append(transitions, AlarmTransition{Field: name, From: prev, To: types.AlarmNone})
		}
	}

	i.context = ctx.Clone()
	i.configs = accepted
	for name, cfg := range accepted {
		i.thresholds[name] = resolver.ResolveAll(cfg, i.context)
	}

	for _, name := range sortedKeys(i.configs) {
		if tr, ok := i.evaluate(name, now); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

// SweepStale re-evaluates every configured metric at now so metrics that
// stopped reporting go Stale without a new update.
func (i *Instance) SweepStale(now time.Time) []AlarmTransition {
	var transitions []AlarmTransition
	for _, name := range sortedKeys(i.configs) {
		if tr, ok := i.evaluate(name, now); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

// Alarm returns the cached alarm state of a metric.
func (i *Instance) Alarm(field string) types.AlarmState {
	return i.alarms[field]
}

// Thresholds returns the resolved thresholds of a metric.
func (i *Instance) Thresholds(field string) (types.ResolvedThresholds, bool) {
	th, ok := i.thresholds[field]
	return th, ok
}

// History returns a copy of the stored samples of a Number field.
func (i *Instance) History(field string) []Sample {
	s, ok := i.metrics[field]
	if !ok {
		return nil
	}
	return s.Samples()
}

// Stats computes min/max/avg of a Number field on demand.
func (i *Instance) Stats(field string) (Stats, bool) {
	s, ok := i.metrics[field]
	if !ok {
		return Stats{}, false
	}
	return s.Stats(), true
}

func configsEqual(a, b map[string]types.ThresholdConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ca := range a {
		cb, ok := b[name]
		if !ok || !thresholdConfigEqual(ca, cb) {
			return false
		}
	}
	return true
}

func thresholdConfigEqual(a, b types.ThresholdConfig) bool {
	return a.Direction == b.Direction &&
		a.StaleAfter == b.StaleAfter &&
		a.Hysteresis == b.Hysteresis &&
		boundEqual(a.Warning, b.Warning) &&
		boundEqual(a.Critical, b.Critical)
}

func boundEqual(a, b types.Bound) bool {
	switch {
	case a.Static != nil && b.Static != nil:
		return floatPtrEqual(a.Static.Min, b.Static.Min) && floatPtrEqual(a.Static.Max, b.Static.Max)
	case a.Formula != nil && b.Formula != nil:
		return a.Formula.Expression == b.Formula.Expression &&
			floatPtrEqual(a.Formula.ClampMin, b.Formula.ClampMin) &&
			floatPtrEqual(a.Formula.ClampMax, b.Formula.ClampMax)
	default:
		return a.IsZero() && b.IsZero()
	}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
