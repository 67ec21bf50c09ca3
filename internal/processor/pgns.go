// internal/processor/pgns.go
package processor

import (
	"math"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea2000"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/schema"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Raw source codes used by the environmental PGNs.
const (
	tempSourceSea     = 0
	tempSourceOutside = 1

	humiditySourceOutside = 1

	pressureSourceAtmospheric = 0
	pressureSourceOil         = 7
)

// weatherInstance is the vessel-level weather station. Environmental PGNs
// carry a device instance that does not apply to weather readings.
const weatherInstance = 0

func handleWaterDepth(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	raw, offset := msg.Number("depth"), msg.Number("offset")
	v, ref := applyOffset(raw, offset)
	d := newDraft(types.SensorDepth, inst).
		num("depthBelowTransducer", raw).
		num("offset", offset)
	return one(depth(d, prioDepthDPT, v, "PGN128267", ref)), nil
}

func handleSpeedWater(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorSpeed, inst).
		claim(prioThroughWater, "throughWater", types.Number(msg.Number("speedWater")))
	return one(d), nil
}

func handleWindData(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	ref := msg.Number("reference")
	if math.IsNaN(ref) {
		return nil, nil
	}
	apparent := ref == nmea2000.WindApparent
	return one(wind(inst, apparent, true, msg.Number("windSpeed"), msg.Number("windAngle"))), nil
}

func handleGNSSPosition(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	method := msg.Number("method")
	d := newDraft(types.SensorGPS, inst).
		num("altitude", msg.Number("altitude")).
		num("numberOfSatellites", msg.Number("satellites")).
		num("horizontalDilutionOfPrecision", msg.Number("hdop")).
		num("fixQuality", method).
		num("utcTime", msg.Number("utcTime"))
	return one(position(d, prioPositionGGA, msg.Number("latitude"), msg.Number("longitude"), positionValid(method))), nil
}

func handlePositionRapid(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorGPS, inst).
		claim(prioPositionRMC, "latitude", types.Number(msg.Number("latitude"))).
		claim(prioPositionRMC, "longitude", types.Number(msg.Number("longitude")))
	return one(d), nil
}

func handleCOGSOG(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	cog := msg.Number("cog")
	if msg.Number("cogReference") == nmea2000.HeadingMagnetic {
		cog = math.NaN()
	}
	return overGround(inst, prioOverGroundRMC, msg.Number("sog"), cog), nil
}

func handleVesselHeading(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	h := msg.Number("heading")
	d := newDraft(types.SensorCompass, inst).
		num("deviation", msg.Number("deviation")).
		num("variation", msg.Number("variation"))

	switch msg.Number("reference") {
	case nmea2000.HeadingTrue:
		d.num("trueHeading", h).claim(prioHeadingTrue, "heading", types.Number(h))
	case nmea2000.HeadingMagnetic:
		d.num("magneticHeading", h).claim(prioHeadingHDG, "heading", types.Number(h))
	}
	return one(d), nil
}

func handleRateOfTurn(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return one(newDraft(types.SensorCompass, inst).num("rateOfTurn", msg.Number("rate"))), nil
}

func handleEnvironmental(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return one(
		newDraft(types.SensorWeather, weatherInstance).
			claim(prioPressureMDA, "barometricPressure", types.Number(msg.Number("pressure"))),
		newDraft(types.SensorWeather, weatherInstance).
			num("waterTemperature", msg.Number("waterTemperature")).
			claim(prioAirTempMDA, "airTemperature", types.Number(msg.Number("airTemperature"))),
	), nil
}

func handleEnvironmental2(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	out := one(newDraft(types.SensorWeather, weatherInstance).
		claim(prioPressureMDA, "barometricPressure", types.Number(msg.Number("pressure"))))

	if humidity := msg.Number("humidity"); finite(humidity) {
		out = append(out, newDraft(types.SensorWeather, weatherInstance).num("humidity", humidity))
	}
	if t := locatedTemperature(msg.Number("temperatureSource"), msg.Number("temperature")); t != nil {
		out = append(out, t)
	}
	return out, nil
}

// locatedTemperature routes a sea or outside temperature reading to the weather
// sensor. Other locations return nil.
func locatedTemperature(source, value float64) *draft {
	switch source {
	case tempSourceSea:
		return newDraft(types.SensorWeather, weatherInstance).num("waterTemperature", value)
	case tempSourceOutside:
		return newDraft(types.SensorWeather, weatherInstance).claim(prioAirTempDirect, "airTemperature", types.Number(value))
	}
	return nil
}

func handleTemperature(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	source, v := msg.Number("source"), msg.Number("temperature")
	out := one(newDraft(types.SensorTemperature, inst).
		num("value", v).
		set("location", types.Text(enumAt(schema.TemperatureLocations, source, "unknown"))))
	if w := locatedTemperature(source, v); w != nil {
		out = append(out, w)
	}
	return out, nil
}

func handleHumidity(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	if msg.Number("source") != humiditySourceOutside {
		return nil, nil
	}
	return one(newDraft(types.SensorWeather, weatherInstance).num("humidity", msg.Number("humidity"))), nil
}

func handleActualPressure(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	p := msg.Number("pressure")
	switch msg.Number("source") {
	case pressureSourceAtmospheric:
		return one(newDraft(types.SensorWeather, weatherInstance).
			claim(prioPressurePGN, "barometricPressure", types.Number(p))), nil
	case pressureSourceOil:
		return one(newDraft(types.SensorEngine, inst).num("oilPressure", p)), nil
	}
	return nil, nil
}

func handleEngineRapid(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	return one(engineSpeed(inst, msg.Number("speed"))), nil
}

func handleEngineDynamic(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorEngine, inst).
		num("oilPressure", msg.Number("oilPressure")).
		num("oilTemp", msg.Number("oilTemperature")).
		num("coolantTemp", msg.Number("temperature")).
		num("alternatorVoltage", msg.Number("alternatorPotential")).
		num("fuelRate", msg.Number("fuelRate")).
		num("hours", msg.Number("totalHours"))
	return one(d), nil
}

func handleBatteryStatus(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorBattery, inst).
		num("voltage", msg.Number("voltage")).
		num("current", msg.Number("current")).
		num("temperature", msg.Number("temperature"))
	return one(d), nil
}

func handleFluidLevel(msg types.DecodedMessage, inst uint32) ([]*draft, error) {
	d := newDraft(types.SensorTank, inst).
		num("level", msg.Number("level")).
		num("capacity", msg.Number("capacity"))
	if kind := enumAt(schema.TankTypes, msg.Number("fluidType"), ""); kind != "" {
		d.set("tankType", types.Text(kind))
	}
	return one(d), nil
}
