// internal/processor/xdr.go
package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * XDR transducer fan-out.
 *
 * One XDR sentence carries up to N (type, value, unit, name) measurements,
 * already flattened by the decoder into type.N / value.N / unit.N / name.N.
 * Each measurement is routed by transducer type and name to a sensor field;
 * trailing digits of the name select the instance ("BATT2" -> 2,
 * "ENGINE#1" -> 1), otherwise the talker instance applies.
 *
 *   C  temperature   engine coolant, battery, weather air/water, or a located
 *                    temperature sensor
 *   P  pressure      engine oil or barometric
 *   H  humidity      weather
 *   U  voltage       engine alternator or battery
 *   I  current       battery
 *   V  volume        tank level when reported in percent
 *   T  tachometer    engine rpm
 *   A  angle         no schema field; ignored
 */

// temperature location hints matched against upper-cased transducer names.
var locationHints = []struct {
	hint     string
	location string
}{
	{"SEA", "seawater"},
	{"WATER", "seawater"},
	{"AIR", "outside"},
	{"OUTSIDE", "outside"},
	{"ENGROOM", "engineRoom"},
	{"CABIN", "mainCabin"},
	{"INSIDE", "inside"},
	{"LIVEWELL", "liveWell"},
	{"BAIT", "baitWell"},
	{"FREEZER", "freezer"},
	{"FRIDGE", "refrigeration"},
	{"REFRIG", "refrigeration"},
	{"HEAT", "heating"},
	{"DEW", "dewPoint"},
	{"EXHAUST", "exhaust"},
}

func handleXDR(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	count := msg.Number("count")
	if !finite(count) || count < 1 {
		return nil, fmt.Errorf("%w: xdr without measurements", types.ErrMalformedSentence)
	}

	var out []*draft
	for n := 0; n < int(count); n++ {
		idx := strconv.Itoa(n)
		m := measurement{
			kind:  msg.Text("type." + idx),
			value: msg.Number("value." + idx),
			unit:  msg.Text("unit." + idx),
			name:  strings.ToUpper(msg.Text("name." + idx)),
		}
		target := inst
		if id, ok := trailingInstance(m.name); ok {
			target = id
		}
		out = append(out, m.route(target)...)
	}
	return out, nil
}

type measurement struct {
	kind  string
	value float64
	unit  string
	name  string
}

func (m measurement) has(hints ...string) bool {
	for _, h := range hints {
		if strings.Contains(m.name, h) {
			return true
		}
	}
	return false
}

func (m measurement) route(inst uint32) []*draft {
	v := m.value
	switch m.kind {
	case "C":
		return m.temperature(inst)
	case "P":
		if m.unit != "P" {
			return nil
		}
		if m.has("OIL") {
			return one(newDraft(types.SensorEngine, inst).num("oilPressure", v))
		}
		return one(newDraft(types.SensorWeather, inst).claim(prioPressureXDR, "barometricPressure", types.Number(v)))
	case "H":
		return one(newDraft(types.SensorWeather, inst).num("humidity", v))
	case "U":
		if m.has("ALT", "ENG") {
			return one(newDraft(types.SensorEngine, inst).num("alternatorVoltage", v))
		}
		return one(newDraft(types.SensorBattery, inst).num("voltage", v))
	case "I":
		return one(newDraft(types.SensorBattery, inst).num("current", v))
	case "V":
		if m.unit != "P" {
			return nil
		}
		return one(newDraft(types.SensorTank, inst).num("level", v))
	case "T":
		return one(engineSpeed(inst, v))
	}
	return nil
}

func (m measurement) temperature(inst uint32) []*draft {
	v := m.value
	switch {
	case m.has("ENGROOM"):
		// engine room is a location, not the engine
	case m.has("ENG", "COOLANT"):
		return one(newDraft(types.SensorEngine, inst).num("coolantTemp", v))
	case m.has("BATT"):
		return one(newDraft(types.SensorBattery, inst).num("temperature", v))
	}

	location := "unknown"
	for _, h := range locationHints {
		if m.has(h.hint) {
			location = h.location
			break
		}
	}
	out := one(newDraft(types.SensorTemperature, inst).num("value", v).set("location", types.Text(location)))
	switch location {
	case "outside":
		out = append(out, newDraft(types.SensorWeather, weatherInstance).
			claim(prioAirTempDirect, "airTemperature", types.Number(v)))
	case "seawater":
		out = append(out, newDraft(types.SensorWeather, weatherInstance).num("waterTemperature", v))
	}
	return out
}

// trailingInstance parses the digits at the end of a transducer name.
func trailingInstance(name string) (uint32, bool) {
	end := len(name)
	start := end
	for start > 0 && name[start-1] >= '0' && name[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.ParseUint(name[start:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
