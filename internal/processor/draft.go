// internal/processor/draft.go
package processor

import (
	"math"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Source priorities per canonical field. Higher wins, equal overwrites.
const (
	prioDepthDPT = 3 // DPT, PGN 128267
	prioDepthDBT = 2
	prioDepthDBK = 1

	prioHeadingTrue     = 3 // HDT, PGN 127250 true
	prioHeadingHDG      = 2 // HDG, PGN 127250 magnetic
	prioHeadingMagnetic = 1 // HDM

	prioThroughWater = 2 // VHW, PGN 128259

	prioOverGroundRMC = 3 // RMC, PGN 129026
	prioOverGroundVTG = 2

	prioPositionGGA = 3 // GGA, PGN 129029
	prioPositionRMC = 2 // RMC, PGN 129025
	prioPositionGLL = 1

	prioAirTempDirect = 3 // XDR, PGN 130311/130312
	prioAirTempMDA    = 2 // MDA, PGN 130310

	prioPressurePGN = 3 // PGN 130314
	prioPressureXDR = 2
	prioPressureMDA = 1 // MDA, MMB, PGN 130310/130311
)

// draft is one SensorUpdate before the ownership decision. claims hold
// canonical fields contested by several sources; data is written as is.
type draft struct {
	key      types.Key
	priority int
	claims   types.Fields
	data     types.Fields
}

func newDraft(t types.SensorType, inst uint32) *draft {
	return &draft{
		key:  types.Key{SensorType: t, Instance: inst},
		data: types.Fields{},
	}
}

func (d *draft) set(name string, v types.Value) *draft {
	d.data[name] = v
	return d
}

func (d *draft) num(name string, v float64) *draft {
	return d.set(name, types.Number(v))
}

// claim records a canonical field at priority. All claims of one draft share
// a priority.
func (d *draft) claim(priority int, name string, v types.Value) *draft {
	if d.claims == nil {
		d.claims = types.Fields{}
	}
	d.priority = priority
	d.claims[name] = v
	return d
}

func (d *draft) empty() bool {
	return len(d.data) == 0 && len(d.claims) == 0
}

type mergeKey struct {
	key      types.Key
	priority int
	claimed  bool
}

// mergeDrafts folds drafts with the same target and priority into one,
// keeping first-seen order.
func mergeDrafts(drafts []*draft) []*draft {
	index := make(map[mergeKey]*draft, len(drafts))
	out := make([]*draft, 0, len(drafts))
	for _, d := range drafts {
		if d == nil || d.empty() {
			continue
		}
		mk := mergeKey{d.key, d.priority, len(d.claims) > 0}
		prev, ok := index[mk]
		if !ok {
			index[mk] = d
			out = append(out, d)
			continue
		}
		for k, v := range d.data {
			prev.data[k] = v
		}
		for k, v := range d.claims {
			if prev.claims == nil {
				prev.claims = types.Fields{}
			}
			prev.claims[k] = v
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// normalizeAngle folds degrees into [0, 360). NaN passes through.
func normalizeAngle(deg float64) float64 {
	if !finite(deg) {
		return deg
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// enumAt maps a raw NMEA 2000 code onto an option list. Out-of-range or
// missing codes return fallback.
func enumAt(options []string, code float64, fallback string) string {
	if !finite(code) || code < 0 || int(code) >= len(options) {
		return fallback
	}
	return options[int(code)]
}

func one(drafts ...*draft) []*draft { return drafts }
