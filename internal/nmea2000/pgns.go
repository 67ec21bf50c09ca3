// internal/nmea2000/pgns.go
package nmea2000

import (
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// PGN numbers of the implemented subset.
const (
	PGNVesselHeading  uint32 = 127250
	PGNRateOfTurn     uint32 = 127251
	PGNEngineRapid    uint32 = 127488
	PGNEngineDynamic  uint32 = 127489
	PGNFluidLevel     uint32 = 127505
	PGNBatteryStatus  uint32 = 127508
	PGNSpeedWater     uint32 = 128259
	PGNWaterDepth     uint32 = 128267
	PGNPositionRapid  uint32 = 129025
	PGNCOGSOGRapid    uint32 = 129026
	PGNGNSSPosition   uint32 = 129029
	PGNWindData       uint32 = 130306
	PGNEnvironmental  uint32 = 130310
	PGNEnvironmental2 uint32 = 130311
	PGNTemperature    uint32 = 130312
	PGNHumidity       uint32 = 130313
	PGNActualPressure uint32 = 130314
)

// Wind reference codes (PGN 130306).
const (
	WindTrueNorth     = 0
	WindMagneticNorth = 1
	WindApparent      = 2
	WindTrueBoat      = 3
	WindTrueWater     = 4
)

// Heading reference codes (PGN 127250, 129026).
const (
	HeadingTrue     = 0
	HeadingMagnetic = 1
)

const secondsPerDay = 86400

var builtinLayouts = map[uint32]layout{
	PGNWaterDepth:     {Name: "Water Depth", MinLen: 5, Decode: decodeWaterDepth},
	PGNSpeedWater:     {Name: "Speed, Water Referenced", MinLen: 5, Decode: decodeSpeedWater},
	PGNWindData:       {Name: "Wind Data", MinLen: 6, Decode: decodeWindData},
	PGNGNSSPosition:   {Name: "GNSS Position Data", MinLen: 43, Decode: decodeGNSSPosition},
	PGNPositionRapid:  {Name: "Position, Rapid Update", MinLen: 8, Decode: decodePositionRapid},
	PGNCOGSOGRapid:    {Name: "COG & SOG, Rapid Update", MinLen: 6, Decode: decodeCOGSOG},
	PGNVesselHeading:  {Name: "Vessel Heading", MinLen: 8, Decode: decodeVesselHeading},
	PGNRateOfTurn:     {Name: "Rate of Turn", MinLen: 5, Decode: decodeRateOfTurn},
	PGNEnvironmental:  {Name: "Environmental Parameters", MinLen: 7, Decode: decodeEnvironmental},
	PGNEnvironmental2: {Name: "Environmental Parameters", MinLen: 8, Decode: decodeEnvironmental2},
	PGNTemperature:    {Name: "Temperature", MinLen: 5, Decode: decodeTemperature},
	PGNHumidity:       {Name: "Humidity", MinLen: 5, Decode: decodeHumidity},
	PGNActualPressure: {Name: "Actual Pressure", MinLen: 7, Decode: decodeActualPressure},
	PGNEngineRapid:    {Name: "Engine Parameters, Rapid Update", MinLen: 3, Decode: decodeEngineRapid},
	PGNEngineDynamic:  {Name: "Engine Parameters, Dynamic", MinLen: 9, Decode: decodeEngineDynamic},
	PGNBatteryStatus:  {Name: "Battery Status", MinLen: 7, Decode: decodeBatteryStatus},
	PGNFluidLevel:     {Name: "Fluid Level", MinLen: 7, Decode: decodeFluidLevel},
}

// code returns a raw enumeration byte as a Number, masked by bits; all-ones is NaN.
func code(r reader, off int, shift, bits uint) types.Value {
	mask := uint8(1<<bits - 1)
	v := (r.byteAt(off) >> shift) & mask
	if v == mask {
		return types.NoReading()
	}
	return types.Number(float64(v))
}

func decodeWaterDepth(r reader) types.Fields {
	return types.Fields{
		"sid":    code(r, 0, 0, 8),
		"depth":  types.Number(r.u32(1, 0.01)),
		"offset": types.Number(r.i16(5, 0.001)),
		"range":  types.Number(r.u8(7, 10)),
	}
}

func decodeSpeedWater(r reader) types.Fields {
	return types.Fields{
		"sid":           code(r, 0, 0, 8),
		"speedWater":    types.Number(r.u16(1, 0.01)),
		"speedGround":   types.Number(r.u16(3, 0.01)),
		"referenceType": code(r, 5, 0, 8),
	}
}

func decodeWindData(r reader) types.Fields {
	return types.Fields{
		"sid":       code(r, 0, 0, 8),
		"windSpeed": types.Number(r.u16(1, 0.01)),
		"windAngle": types.Number(r.angle(3)),
		"reference": code(r, 5, 0, 3),
	}
}

func decodeGNSSPosition(r reader) types.Fields {
	days := r.u16(1, 1)
	secs := r.u32(3, 1e-4)
	return types.Fields{
		"sid":               code(r, 0, 0, 8),
		"date":              types.Number(days),
		"time":              types.Number(secs),
		"utcTime":           types.Number(days*secondsPerDay + secs),
		"latitude":          types.Number(r.i64(7, 1e-16)),
		"longitude":         types.Number(r.i64(15, 1e-16)),
		"altitude":          types.Number(r.i64(23, 1e-6)),
		"gnssType":          code(r, 31, 0, 4),
		"method":            code(r, 31, 4, 4),
		"integrity":         code(r, 32, 0, 2),
		"satellites":        types.Number(r.u8(33, 1)),
		"hdop":              types.Number(r.i16(34, 0.01)),
		"pdop":              types.Number(r.i16(36, 0.01)),
		"geoidalSeparation": types.Number(r.i32(38, 0.01)),
		"referenceStations": types.Number(r.u8(42, 1)),
	}
}

func decodePositionRapid(r reader) types.Fields {
	return types.Fields{
		"latitude":  types.Number(r.i32(0, 1e-7)),
		"longitude": types.Number(r.i32(4, 1e-7)),
	}
}

func decodeCOGSOG(r reader) types.Fields {
	return types.Fields{
		"sid":          code(r, 0, 0, 8),
		"cogReference": code(r, 1, 0, 2),
		"cog":          types.Number(r.angle(2)),
		"sog":          types.Number(r.u16(4, 0.01)),
	}
}

func decodeVesselHeading(r reader) types.Fields {
	return types.Fields{
		"sid":       code(r, 0, 0, 8),
		"heading":   types.Number(r.angle(1)),
		"deviation": types.Number(r.signedAngle(3)),
		"variation": types.Number(r.signedAngle(5)),
		"reference": code(r, 7, 0, 2),
	}
}

func decodeRateOfTurn(r reader) types.Fields {
	return types.Fields{
		"sid":  code(r, 0, 0, 8),
		"rate": types.Number(r.i32(1, 3.125e-8) * radToDeg),
	}
}

func decodeEnvironmental(r reader) types.Fields {
	return types.Fields{
		"sid":              code(r, 0, 0, 8),
		"waterTemperature": types.Number(r.kelvin(1, 0.01)),
		"airTemperature":   types.Number(r.kelvin(3, 0.01)),
		"pressure":         types.Number(r.u16(5, 100)),
	}
}

func decodeEnvironmental2(r reader) types.Fields {
	return types.Fields{
		"sid":               code(r, 0, 0, 8),
		"temperatureSource": code(r, 1, 0, 6),
		"humiditySource":    code(r, 1, 6, 2),
		"temperature":       types.Number(r.kelvin(2, 0.01)),
		"humidity":          types.Number(r.i16(4, 0.004)),
		"pressure":          types.Number(r.u16(6, 100)),
	}
}

func decodeTemperature(r reader) types.Fields {
	return types.Fields{
		"sid":            code(r, 0, 0, 8),
		"instance":       code(r, 1, 0, 8),
		"source":         code(r, 2, 0, 8),
		"temperature":    types.Number(r.kelvin(3, 0.01)),
		"setTemperature": types.Number(r.kelvin(5, 0.01)),
	}
}

func decodeHumidity(r reader) types.Fields {
	return types.Fields{
		"sid":         code(r, 0, 0, 8),
		"instance":    code(r, 1, 0, 8),
		"source":      code(r, 2, 0, 8),
		"humidity":    types.Number(r.i16(3, 0.004)),
		"setHumidity": types.Number(r.i16(5, 0.004)),
	}
}

func decodeActualPressure(r reader) types.Fields {
	return types.Fields{
		"sid":      code(r, 0, 0, 8),
		"instance": code(r, 1, 0, 8),
		"source":   code(r, 2, 0, 8),
		"pressure": types.Number(r.i32(3, 0.1)),
	}
}

func decodeEngineRapid(r reader) types.Fields {
	return types.Fields{
		"instance":      code(r, 0, 0, 8),
		"speed":         types.Number(r.u16(1, 0.25)),
		"boostPressure": types.Number(r.u16(3, 100)),
		"tiltTrim":      types.Number(r.i8(5, 1)),
	}
}

func decodeEngineDynamic(r reader) types.Fields {
	return types.Fields{
		"instance":            code(r, 0, 0, 8),
		"oilPressure":         types.Number(r.u16(1, 100)),
		"oilTemperature":      types.Number(r.kelvin(3, 0.1)),
		"temperature":         types.Number(r.kelvin(5, 0.01)),
		"alternatorPotential": types.Number(r.i16(7, 0.01)),
		"fuelRate":            types.Number(r.i16(9, 0.1)),
		"totalHours":          types.Number(r.u32(11, 1)),
		"coolantPressure":     types.Number(r.u16(15, 100)),
		"fuelPressure":        types.Number(r.u16(17, 1000)),
		"engineLoad":          types.Number(r.i8(24, 1)),
		"engineTorque":        types.Number(r.i8(25, 1)),
	}
}

func decodeBatteryStatus(r reader) types.Fields {
	return types.Fields{
		"instance":    code(r, 0, 0, 8),
		"voltage":     types.Number(r.i16(1, 0.01)),
		"current":     types.Number(r.i16(3, 0.1)),
		"temperature": types.Number(r.kelvin(5, 0.01)),
		"sid":         code(r, 7, 0, 8),
	}
}

func decodeFluidLevel(r reader) types.Fields {
	return types.Fields{
		"instance":  code(r, 0, 0, 4),
		"fluidType": code(r, 0, 4, 4),
		"level":     types.Number(r.i16(1, 0.004)),
		"capacity":  types.Number(r.u32(3, 0.1)),
	}
}
