// internal/processor/sentences.go
package processor

import (
	"math"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea2000"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

type handler func(msg types.DecodedMessage, inst uint32) ([]*draft, error)

var handlers = map[string]handler{
	// NMEA 0183
	"DBT": handleDBT,
	"DBK": handleDBK,
	"DPT": handleDPT,
	"GGA": handleGGA,
	"RMC": handleRMC,
	"GLL": handleGLL,
	"VTG": handleVTG,
	"ZDA": handleZDA,
	"HDG": handleHDG,
	"HDM": handleHDM,
	"HDT": handleHDT,
	"VHW": handleVHW,
	"MWV": handleMWV,
	"VWR": handleVWR,
	"RPM": handleRPM,
	"MDA": handleMDA,
	"MMB": handleMMB,
	"MTW": handleMTW,
	"XDR": handleXDR,

	// NMEA 2000
	nmea2000.MessageType(nmea2000.PGNWaterDepth):     handleWaterDepth,
	nmea2000.MessageType(nmea2000.PGNSpeedWater):     handleSpeedWater,
	nmea2000.MessageType(nmea2000.PGNWindData):       handleWindData,
	nmea2000.MessageType(nmea2000.PGNGNSSPosition):   handleGNSSPosition,
	nmea2000.MessageType(nmea2000.PGNPositionRapid):  handlePositionRapid,
	nmea2000.MessageType(nmea2000.PGNCOGSOGRapid):    handleCOGSOG,
	nmea2000.MessageType(nmea2000.PGNVesselHeading):  handleVesselHeading,
	nmea2000.MessageType(nmea2000.PGNRateOfTurn):     handleRateOfTurn,
	nmea2000.MessageType(nmea2000.PGNEnvironmental):  handleEnvironmental,
	nmea2000.MessageType(nmea2000.PGNEnvironmental2): handleEnvironmental2,
	nmea2000.MessageType(nmea2000.PGNTemperature):    handleTemperature,
	nmea2000.MessageType(nmea2000.PGNHumidity):       handleHumidity,
	nmea2000.MessageType(nmea2000.PGNActualPressure): handleActualPressure,
	nmea2000.MessageType(nmea2000.PGNEngineRapid):    handleEngineRapid,
	nmea2000.MessageType(nmea2000.PGNEngineDynamic):  handleEngineDynamic,
	nmea2000.MessageType(nmea2000.PGNBatteryStatus):  handleBatteryStatus,
	nmea2000.MessageType(nmea2000.PGNFluidLevel):     handleFluidLevel,
}

// depth claims the canonical depth together with its source and reference.
func depth(d *draft, priority int, value float64, source, reference string) *draft {
	return d.
		claim(priority, "depth", types.Number(value)).
		claim(priority, "depthSource", types.Text(source)).
		claim(priority, "depthReferencePoint", types.Text(reference))
}

// applyOffset converts a below-transducer depth using the DPT/128267 offset:
// positive is transducer to waterline, negative is transducer to keel.
func applyOffset(raw, offset float64) (float64, string) {
	switch {
	case !finite(offset) || offset == 0:
		return raw, "transducer"
	case offset > 0:
		return raw + offset, "waterline"
	default:
		return raw + offset, "keel"
	}
}

func handleDBT(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	v := msg.Number("depth")
	d := newDraft(types.SensorDepth, inst).num("depthBelowTransducerDBT", v)
	return one(depth(d, prioDepthDBT, v, "DBT", "transducer")), nil
}

func handleDBK(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	v := msg.Number("depth")
	d := newDraft(types.SensorDepth, inst).num("depthBelowKeel", v)
	return one(depth(d, prioDepthDBK, v, "DBK", "keel")), nil
}

func handleDPT(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	raw, offset := msg.Number("depth"), msg.Number("offset")
	v, ref := applyOffset(raw, offset)
	d := newDraft(types.SensorDepth, inst).
		num("depthBelowTransducer", raw).
		num("offset", offset)
	return one(depth(d, prioDepthDPT, v, "DPT", ref)), nil
}

func positionValid(fixQuality float64) types.Value {
	return types.Flag(finite(fixQuality) && fixQuality > 0)
}

func position(d *draft, priority int, lat, lon float64, valid types.Value) *draft {
	return d.
		claim(priority, "latitude", types.Number(lat)).
		claim(priority, "longitude", types.Number(lon)).
		claim(priority, "positionValid", valid)
}

// overGround claims SOG/COG on gps and SOG on speed.
func overGround(inst uint32, priority int, sog, cog float64) []*draft {
	g := newDraft(types.SensorGPS, inst).claim(priority, "speedOverGround", types.Number(sog))
	if !math.IsNaN(cog) {
		g.claim(priority, "courseOverGround", types.Number(cog))
	}
	s := newDraft(types.SensorSpeed, inst).claim(priority, "overGround", types.Number(sog))
	return one(g, s)
}

func handleGGA(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	q := msg.Number("fixQuality")
	d := newDraft(types.SensorGPS, inst).
		num("altitude", msg.Number("altitude")).
		num("numberOfSatellites", msg.Number("satellites")).
		num("horizontalDilutionOfPrecision", msg.Number("hdop")).
		num("fixQuality", q)
	return one(position(d, prioPositionGGA, msg.Number("latitude"), msg.Number("longitude"), positionValid(q))), nil
}

func handleRMC(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	valid := msg.Fields["valid"]
	if valid.Kind() != types.KindFlag {
		valid = types.Flag(false)
	}
	pos := newDraft(types.SensorGPS, inst).num("utcTime", msg.Number("utcTime"))
	position(pos, prioPositionRMC, msg.Number("latitude"), msg.Number("longitude"), valid)
	return append(one(pos), overGround(inst, prioOverGroundRMC, msg.Number("sog"), msg.Number("cog"))...), nil
}

func handleGLL(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	valid := msg.Fields["valid"]
	if valid.Kind() != types.KindFlag {
		valid = types.Flag(false)
	}
	d := newDraft(types.SensorGPS, inst)
	return one(position(d, prioPositionGLL, msg.Number("latitude"), msg.Number("longitude"), valid)), nil
}

func handleVTG(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return overGround(inst, prioOverGroundVTG, msg.Number("speed"), msg.Number("courseTrue")), nil
}

func handleZDA(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return one(newDraft(types.SensorGPS, inst).num("utcTime", msg.Number("utcTime"))), nil
}

func handleHDG(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	h := msg.Number("heading")
	d := newDraft(types.SensorCompass, inst).
		num("magneticHeading", h).
		num("deviation", msg.Number("deviation")).
		num("variation", msg.Number("variation")).
		claim(prioHeadingHDG, "heading", types.Number(h))
	return one(d), nil
}

func handleHDM(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	h := msg.Number("heading")
	d := newDraft(types.SensorCompass, inst).
		num("magneticHeading", h).
		claim(prioHeadingMagnetic, "heading", types.Number(h))
	return one(d), nil
}

func handleHDT(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	h := msg.Number("heading")
	d := newDraft(types.SensorCompass, inst).
		num("trueHeading", h).
		claim(prioHeadingTrue, "heading", types.Number(h))
	return one(d), nil
}

func handleVHW(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorSpeed, inst).claim(prioThroughWater, "throughWater", types.Number(msg.Number("speed")))
	return one(d), nil
}

// wind writes apparent or true wind; invalid readings become NaN.
func wind(inst uint32, apparent, valid bool, speed, angle float64) *draft {
	if !valid {
		speed, angle = math.NaN(), math.NaN()
	}
	d := newDraft(types.SensorWind, inst)
	if apparent {
		return d.num("speed", speed).num("direction", normalizeAngle(angle))
	}
	return d.num("trueSpeed", speed).num("trueDirection", normalizeAngle(angle))
}

func handleMWV(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	valid, _ := msg.Fields["valid"].Bool()
	apparent := msg.Text("reference") == "R"
	return one(wind(inst, apparent, valid, msg.Number("speed"), msg.Number("angle"))), nil
}

func handleVWR(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return one(wind(inst, true, true, msg.Number("speed"), msg.Number("angle"))), nil
}

// engineSpeed writes rpm and the derived running flag.
func engineSpeed(inst uint32, rpm float64) *draft {
	d := newDraft(types.SensorEngine, inst).num("rpm", rpm)
	if finite(rpm) {
		d.set("running", types.Flag(rpm > 0))
	}
	return d
}

func handleRPM(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	// shaft revolutions have no schema field
	if msg.Text("source") != "E" {
		return nil, nil
	}
	rpm := msg.Number("rpm")
	if valid, ok := msg.Fields["valid"].Bool(); ok && !valid {
		rpm = math.NaN()
	}
	return one(engineSpeed(inst, rpm)), nil
}

func handleMDA(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	pressure := newDraft(types.SensorWeather, inst).
		claim(prioPressureMDA, "barometricPressure", types.Number(msg.Number("pressure")))
	air := newDraft(types.SensorWeather, inst).
		num("waterTemperature", msg.Number("waterTemperature")).
		num("humidity", msg.Number("humidity")).
		num("dewPoint", msg.Number("dewPoint")).
		claim(prioAirTempMDA, "airTemperature", types.Number(msg.Number("airTemperature")))
	out := one(pressure, air)

	// most MDA talkers leave the wind block empty; only forward it when present
	speed, dir := msg.Number("windSpeed"), msg.Number("windDirectionTrue")
	if finite(speed) || finite(dir) {
		out = append(out, wind(inst, false, true, speed, dir))
	}
	return out, nil
}

func handleMMB(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorWeather, inst).
		claim(prioPressureMDA, "barometricPressure", types.Number(msg.Number("pressure")))
	return one(d), nil
}

func handleMTW(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	v := msg.Number("temperature")
	return one(
		newDraft(types.SensorTemperature, inst).num("value", v).set("location", types.Text("seawater")),
		newDraft(types.SensorWeather, inst).num("waterTemperature", v),
	), nil
}
