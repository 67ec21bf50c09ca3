// internal/registry/events.go
package registry

import (
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// EventKind distinguishes registry events.
type EventKind int

const (
	SensorCreated EventKind = iota + 1
	SensorUpdated
	AlarmStateChanged
)

// String returns the event name used on the wire.
func (k EventKind) String() string {
	switch k {
	case SensorCreated:
		return "sensor_created"
	case SensorUpdated:
		return "sensor_updated"
	case AlarmStateChanged:
		return "alarm_state_changed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is emitted after a registry mutation.
// ChangedFields is set for SensorUpdated; Field, From and To for AlarmStateChanged.
type Event struct {
	ID            types.EventID    `json:"id"`
	Kind          EventKind        `json:"kind"`
	SensorType    types.SensorType `json:"sensorType"`
	Instance      uint32           `json:"instance"`
	Time          time.Time        `json:"time"`
	ChangedFields []string         `json:"changedFields,omitempty"`
	Field         string           `json:"field,omitempty"`
	From          types.AlarmState `json:"from"`
	To            types.AlarmState `json:"to"`
}

// Key returns the instance key of the event.
func (e Event) Key() types.Key {
	return types.Key{SensorType: e.SensorType, Instance: e.Instance}
}

// Handler receives events synchronously, in mutation order.
type Handler func(Event)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64
