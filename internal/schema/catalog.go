// internal/schema/catalog.go
package schema

import (
	"sort"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Static field schema per sensor type.
 *
 * Each sensor type declares its fields once: the value kind, an optional enum
 * option set for Text fields, and the base unit Number fields are stored in.
 * Decoders convert wire units to these base units, so thresholds are always
 * written in the same unit as the stored value.
 *
 * The catalog is immutable after package initialization; lookups need no locking.
 */

// Unit is the base unit a Number field is stored in.
type Unit string

const (
	UnitNone        Unit = ""
	UnitMeters      Unit = "m"
	UnitMetersPerS  Unit = "m/s"
	UnitDegrees     Unit = "deg"
	UnitDegreesPerS Unit = "deg/s"
	UnitCelsius     Unit = "C"
	UnitPascal      Unit = "Pa"
	UnitVolts       Unit = "V"
	UnitAmperes     Unit = "A"
	UnitPercent     Unit = "%"
	UnitRPM         Unit = "rpm"
	UnitLiters      Unit = "L"
	UnitLitersPerH  Unit = "L/h"
	UnitSeconds     Unit = "s"
	UnitCount       Unit = "count"
)

// Field describes one schema field.
type Field struct {
	Kind    types.Kind
	Options []string // allowed Text values; empty = any text
	Unit    Unit
}

// Alarmable reports whether thresholds may be configured for the field.
func (f Field) Alarmable() bool {
	return f.Kind == types.KindNumber
}

// Allows reports whether s is in the option set (always true without options).
func (f Field) Allows(s string) bool {
	if len(f.Options) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o == s {
			return true
		}
	}
	return false
}

// Enum option sets.
var (
	DepthSources = []string{"DPT", "DBT", "DBK", "PGN128267"}

	DepthReferencePoints = []string{"waterline", "transducer", "keel"}

	TemperatureLocations = []string{
		"seawater", "outside", "inside", "engineRoom", "mainCabin", "liveWell",
		"baitWell", "refrigeration", "heating", "dewPoint", "apparentWindChill",
		"theoreticalWindChill", "heatIndex", "freezer", "exhaust", "unknown",
	}

	TankTypes = []string{"fuel", "freshWater", "wasteWater", "liveWell", "oil", "blackWater", "gasoline"}
)

func number(u Unit) Field { return Field{Kind: types.KindNumber, Unit: u} }

func enum(options []string) Field { return Field{Kind: types.KindText, Options: options} }

var flag = Field{Kind: types.KindFlag}

var catalog = map[types.SensorType]map[string]Field{
	types.SensorDepth: {
		"depth":                   number(UnitMeters),
		"depthBelowTransducer":    number(UnitMeters),
		"depthBelowKeel":          number(UnitMeters),
		"depthBelowTransducerDBT": number(UnitMeters),
		"offset":                  number(UnitMeters),
		"depthSource":             enum(DepthSources),
		"depthReferencePoint":     enum(DepthReferencePoints),
	},
	types.SensorSpeed: {
		"throughWater": number(UnitMetersPerS),
		"overGround":   number(UnitMetersPerS),
	},
	types.SensorWind: {
		"speed":         number(UnitMetersPerS),
		"direction":     number(UnitDegrees),
		"trueSpeed":     number(UnitMetersPerS),
		"trueDirection": number(UnitDegrees),
	},
	types.SensorGPS: {
		"latitude":                      number(UnitDegrees),
		"longitude":                     number(UnitDegrees),
		"altitude":                      number(UnitMeters),
		"speedOverGround":               number(UnitMetersPerS),
		"courseOverGround":              number(UnitDegrees),
		"numberOfSatellites":            number(UnitCount),
		"horizontalDilutionOfPrecision": number(UnitNone),
		"fixQuality":                    number(UnitNone),
		"utcTime":                       number(UnitSeconds),
		"positionValid":                 flag,
	},
	types.SensorCompass: {
		"heading":         number(UnitDegrees),
		"magneticHeading": number(UnitDegrees),
		"trueHeading":     number(UnitDegrees),
		"variation":       number(UnitDegrees),
		"deviation":       number(UnitDegrees),
		"rateOfTurn":      number(UnitDegreesPerS),
	},
	types.SensorTemperature: {
		"value":    number(UnitCelsius),
		"location": enum(TemperatureLocations),
	},
	types.SensorBattery: {
		"voltage":       number(UnitVolts),
		"current":       number(UnitAmperes),
		"temperature":   number(UnitCelsius),
		"stateOfCharge": number(UnitPercent),
	},
	types.SensorEngine: {
		"rpm":               number(UnitRPM),
		"coolantTemp":       number(UnitCelsius),
		"oilPressure":       number(UnitPascal),
		"oilTemp":           number(UnitCelsius),
		"alternatorVoltage": number(UnitVolts),
		"fuelRate":          number(UnitLitersPerH),
		"hours":             number(UnitSeconds),
		"running":           flag,
	},
	types.SensorTank: {
		"level":    number(UnitPercent),
		"capacity": number(UnitLiters),
		"tankType": enum(TankTypes),
	},
	types.SensorWeather: {
		"airTemperature":     number(UnitCelsius),
		"waterTemperature":   number(UnitCelsius),
		"barometricPressure": number(UnitPascal),
		"humidity":           number(UnitPercent),
		"dewPoint":           number(UnitCelsius),
	},
}

// Lookup returns the field definition for sensorType.name.
func Lookup(sensorType types.SensorType, name string) (Field, bool) {
	fields, ok := catalog[sensorType]
	if !ok {
		return Field{}, false
	}
	f, ok := fields[name]
	return f, ok
}

// Known reports whether sensorType has a schema.
func Known(sensorType types.SensorType) bool {
	_, ok := catalog[sensorType]
	return ok
}

// SensorTypes returns all sensor types, sorted.
func SensorTypes() []types.SensorType {
	out := make([]types.SensorType, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FieldNames returns the schema fields of sensorType, sorted.
func FieldNames(sensorType types.SensorType) []string {
	fields := catalog[sensorType]
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AlarmFields returns the Number fields of sensorType, sorted.
func AlarmFields(sensorType types.SensorType) []string {
	var out []string
	for _, name := range FieldNames(sensorType) {
		if catalog[sensorType][name].Alarmable() {
			out = append(out, name)
		}
	}
	return out
}
