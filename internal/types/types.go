// Package types provides domain models shared across the sensor pipeline.
//
// Zero-dependency design: values, messages and threshold definitions use only the
// standard library so decoders, the registry and edge adapters can share them without
// pulling each other's dependencies. ID utilities in ids.go import uuid but are
// isolated to event emission.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind discriminates the variants of Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNumber
	KindText
	KindFlag
)

// String returns the schema name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindFlag:
		return "flag"
	default:
		return "invalid"
	}
}

// Value is the tagged union carried by decoded messages and sensor updates.
// A Number holding NaN is the "sensor present, no reading" sentinel.
// The zero Value has KindInvalid and never passes schema validation.
type Value struct {
	kind Kind
	num  float64
	text string
	flag bool
}

// Number wraps a numeric reading.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string reading.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Flag wraps a boolean reading.
func Flag(b bool) Value { return Value{kind: KindFlag, flag: b} }

// NoReading returns Number(NaN).
func NoReading() Value { return Value{kind: KindNumber, num: math.NaN()} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Num returns the numeric payload and whether v is a Number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the text payload and whether v is a Text.
func (v Value) Str() (string, bool) { return v.text, v.kind == KindText }

// Bool returns the flag payload and whether v is a Flag.
func (v Value) Bool() (bool, bool) { return v.flag, v.kind == KindFlag }

// IsNoReading reports whether v is the Number(NaN) sentinel.
func (v Value) IsNoReading() bool { return v.kind == KindNumber && math.IsNaN(v.num) }

// Equal compares two values variant-wise. Two no-reading sentinels are equal so
// repeated NaN readings do not count as a change.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsNaN(o.num) {
			return math.IsNaN(v.num) && math.IsNaN(o.num)
		}
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindFlag:
		return v.flag == o.flag
	default:
		return true
	}
}

// Any converts v to a plain Go value for encoders. NaN becomes nil.
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil
		}
		return v.num
	case KindText:
		return v.text
	case KindFlag:
		return v.flag
	default:
		return nil
	}
}

// String renders v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return strconv.Quote(v.text)
	case KindFlag:
		return strconv.FormatBool(v.flag)
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
// NaN and infinities are not representable in JSON and encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// Fields is a field-name keyed set of values.
type Fields map[string]Value

// Names returns the field names in unspecified order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	return names
}

// DecodedMessage is produced by either decoder and is immutable once returned.
type DecodedMessage struct {
	Type   string // sentence formatter ("DBT") or "PGN128267"
	Talker string // empty for NMEA 2000 frames
	Fields Fields
}

// Number returns the numeric field or NaN when absent or of another kind.
func (m DecodedMessage) Number(name string) float64 {
	if f, ok := m.Fields[name].Num(); ok {
		return f
	}
	return math.NaN()
}

// Text returns the text field or "" when absent or of another kind.
func (m DecodedMessage) Text(name string) string {
	s, _ := m.Fields[name].Str()
	return s
}

// Has reports whether the message carries the named field.
func (m DecodedMessage) Has(name string) bool {
	_, ok := m.Fields[name]
	return ok
}

// SensorType names a family of devices sharing a field schema.
type SensorType string

const (
	SensorDepth       SensorType = "depth"
	SensorSpeed       SensorType = "speed"
	SensorWind        SensorType = "wind"
	SensorGPS         SensorType = "gps"
	SensorCompass     SensorType = "compass"
	SensorTemperature SensorType = "temperature"
	SensorBattery     SensorType = "battery"
	SensorEngine      SensorType = "engine"
	SensorTank        SensorType = "tank"
	SensorWeather     SensorType = "weather"
)

// Key identifies one sensor instance.
type Key struct {
	SensorType SensorType
	Instance   uint32
}

// String renders the key as "type:instance".
func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.SensorType, k.Instance)
}

// SensorUpdate is a partial write for one sensor instance.
// Source names the message type that produced it. Claims lists the canonical fields
// the producer asserts authority over at Priority; the registry records the claim
// when it applies the update.
type SensorUpdate struct {
	SensorType SensorType
	Instance   uint32
	Data       Fields
	Timestamp  time.Time
	Source     string
	Priority   int
	Claims     []string
}

// Key returns the target instance key.
func (u SensorUpdate) Key() Key {
	return Key{SensorType: u.SensorType, Instance: u.Instance}
}

// AlarmState is the cached alarm status of one metric.
type AlarmState int

const (
	AlarmNone AlarmState = iota
	AlarmStale
	AlarmWarning
	AlarmCritical
)

// String returns the lower-case state name.
func (s AlarmState) String() string {
	switch s {
	case AlarmNone:
		return "none"
	case AlarmStale:
		return "stale"
	case AlarmWarning:
		return "warning"
	case AlarmCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AlarmState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
