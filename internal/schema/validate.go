// internal/schema/validate.go
package schema

import (
	"fmt"
	"math"
	"sort"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Update-boundary validation.
 *
 * Wire data is untrusted: every value reaching a sensor instance is checked
 * against the static schema by pattern match on its kind. There is no coercion
 * between kinds. A decoder that emits Text for a Number field has a bug, and the
 * update is rejected so the bug surfaces instead of corrupting history.
 *
 * Rules:
 *   - Unknown sensor type or field name: ErrUnknownSensorType / ErrUnknownField
 *   - Kind differs from schema: ErrTypeMismatch
 *   - Number +Inf/-Inf: ErrNonFiniteValue (NaN is the no-reading sentinel, accepted)
 *   - Text outside the option set: ErrInvalidEnum
 */

// ValidateValue checks one value against the schema.
func ValidateValue(sensorType types.SensorType, name string, v types.Value) error {
	if !Known(sensorType) {
		return &types.ValidationError{SensorType: sensorType, Field: name, Err: types.ErrUnknownSensorType}
	}
	field, ok := Lookup(sensorType, name)
	if !ok {
		return &types.ValidationError{SensorType: sensorType, Field: name, Err: types.ErrUnknownField}
	}

	if v.Kind() != field.Kind {
		return &types.ValidationError{
			SensorType: sensorType,
			Field:      name,
			Err:        types.ErrTypeMismatch,
			Detail:     fmt.Sprintf("got %s, want %s", v.Kind(), field.Kind),
		}
	}

	switch field.Kind {
	case types.KindNumber:
		n, _ := v.Num()
		if math.IsInf(n, 0) {
			return &types.ValidationError{SensorType: sensorType, Field: name, Err: types.ErrNonFiniteValue}
		}
	case types.KindText:
		s, _ := v.Str()
		if !field.Allows(s) {
			return &types.ValidationError{
				SensorType: sensorType,
				Field:      name,
				Err:        types.ErrInvalidEnum,
				Detail:     fmt.Sprintf("%q", s),
			}
		}
	}
	return nil
}

// Validate checks every field of data. Fields are checked in name order so the
// reported error is deterministic.
func Validate(sensorType types.SensorType, data types.Fields) error {
	names := data.Names()
	sort.Strings(names)
	for _, name := range names {
		if err := ValidateValue(sensorType, name, data[name]); err != nil {
			return err
		}
	}
	return nil
}
