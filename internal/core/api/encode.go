package api

import (
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/sensor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// SnapshotMap converts a snapshot to plain maps for structpb. NaN readings and
// undefined bounds encode as null.
func SnapshotMap(s sensor.Snapshot) map[string]interface{} {
	values := make(map[string]interface{}, len(s.Values))
	for name, v := range s.Values {
		values[name] = v.Any()
	}
	updated := make(map[string]interface{}, len(s.FieldUpdated))
	for name, ts := range s.FieldUpdated {
		updated[name] = timestamp(ts)
	}
	alarms := make(map[string]interface{}, len(s.Alarms))
	for name, st := range s.Alarms {
		alarms[name] = st.String()
	}
	thresholds := make(map[string]interface{}, len(s.Thresholds))
	for name, th := range s.Thresholds {
		thresholds[name] = map[string]interface{}{
			"warning":    optional(th.Warning),
			"critical":   optional(th.Critical),
			"hysteresis": th.Hysteresis,
		}
	}
	stats := make(map[string]interface{}, len(s.Stats))
	for name, st := range s.Stats {
		stats[name] = map[string]interface{}{
			"min":   number(st.Min),
			"max":   number(st.Max),
			"avg":   number(st.Avg),
			"count": float64(st.Count),
		}
	}

	return map[string]interface{}{
		"sensorType":   string(s.Key.SensorType),
		"instance":     float64(s.Key.Instance),
		"created":      timestamp(s.Created),
		"lastUpdate":   timestamp(s.LastUpdate),
		"values":       values,
		"fieldUpdated": updated,
		"alarms":       alarms,
		"thresholds":   thresholds,
		"stats":        stats,
	}
}

// EventMap converts a registry event to plain maps for structpb.
func EventMap(ev registry.Event) map[string]interface{} {
	m := map[string]interface{}{
		"id":         string(ev.ID),
		"kind":       ev.Kind.String(),
		"sensorType": string(ev.SensorType),
		"instance":   float64(ev.Instance),
		"time":       timestamp(ev.Time),
	}
	switch ev.Kind {
	case registry.SensorUpdated:
		fields := make([]interface{}, len(ev.ChangedFields))
		for i, f := range ev.ChangedFields {
			fields[i] = f
		}
		m["changedFields"] = fields
	case registry.AlarmStateChanged:
		m["field"] = ev.Field
		m["from"] = ev.From.String()
		m["to"] = ev.To.String()
	}
	return m
}

// SnapshotStruct is SnapshotMap as a protobuf Struct.
func SnapshotStruct(s sensor.Snapshot) (*structpb.Struct, error) {
	return structpb.NewStruct(SnapshotMap(s))
}

// EventStruct is EventMap as a protobuf Struct.
func EventStruct(ev registry.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(EventMap(ev))
}

func timestamp(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optional(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return number(*f)
}

func number(f float64) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// sensorFilter narrows results to one sensor type and, optionally, instance.
type sensorFilter struct {
	sensorType types.SensorType
	instance   *uint32
}

func (f sensorFilter) match(key types.Key) bool {
	if f.sensorType != "" && key.SensorType != f.sensorType {
		return false
	}
	if f.instance != nil && key.Instance != *f.instance {
		return false
	}
	return true
}
