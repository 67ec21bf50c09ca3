// internal/sensor/snapshot.go
package sensor

import (
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Snapshot is an immutable copy of an instance, safe to hand outside the registry.
type Snapshot struct {
	Key          types.Key
	Created      time.Time
	LastUpdate   time.Time
	Values       types.Fields
	FieldUpdated map[string]time.Time
	Alarms       map[string]types.AlarmState
	Thresholds   map[string]types.ResolvedThresholds
	Stats        map[string]Stats
}

// Snapshot copies the instance state. Stats are computed now, from the stored
// series.
func (i *Instance) Snapshot() Snapshot {
	s := Snapshot{
		Key:          i.key,
		Created:      i.created,
		LastUpdate:   i.lastUpdate,
		Values:       make(types.Fields, len(i.values)),
		FieldUpdated: make(map[string]time.Time, len(i.fieldUpdated)),
		Alarms:       make(map[string]types.AlarmState, len(i.alarms)),
		Thresholds:   make(map[string]types.ResolvedThresholds, len(i.thresholds)),
		Stats:        make(map[string]Stats, len(i.metrics)),
	}
	for k, v := range i.values {
		s.Values[k] = v
	}
	for k, v := range i.fieldUpdated {
		s.FieldUpdated[k] = v
	}
	for k, v := range i.alarms {
		s.Alarms[k] = v
	}
	for k, v := range i.thresholds {
		s.Thresholds[k] = copyThresholds(v)
	}
	for k, series := range i.metrics {
		s.Stats[k] = series.Stats()
	}
	return s
}

func copyThresholds(th types.ResolvedThresholds) types.ResolvedThresholds {
	out := types.ResolvedThresholds{Hysteresis: th.Hysteresis}
	if th.Warning != nil {
		out.Warning = types.Float(*th.Warning)
	}
	if th.Critical != nil {
		out.Critical = types.Float(*th.Critical)
	}
	return out
}
