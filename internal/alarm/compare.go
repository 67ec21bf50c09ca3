// internal/alarm/compare.go
package alarm

import "github.com/pliefoog/bmad-autopilot-sub009/internal/types"

// crosses applies the direction comparison with an exit band.
// Above alarms when value >= bound - band; Below when value <= bound + band.
func crosses(dir types.Direction, value, bound, band float64) bool {
	switch dir {
	case types.Below:
		return value <= bound+band
	default:
		return value >= bound-band
	}
}
