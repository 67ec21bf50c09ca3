// internal/nmea0183/sentences.go
package nmea0183

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Supported formatters. Field names are the decoder vocabulary the processor
// maps onto sensor schemas; values are already in base units.
var builtinParsers = map[string]sentenceParser{
	"DBT":   {minFields: 4, parse: parseDepthBelow},
	"DBK":   {minFields: 4, parse: parseDepthBelow},
	"DPT":   {minFields: 2, parse: parseDPT},
	"GGA":   {minFields: 9, parse: parseGGA},
	"RMC":   {minFields: 9, parse: parseRMC},
	"GLL":   {minFields: 4, parse: parseGLL},
	"VTG":   {minFields: 5, parse: parseVTG},
	"HDG":   {minFields: 1, parse: parseHDG},
	"HDM":   {minFields: 1, parse: parseHeadingOnly},
	"HDT":   {minFields: 1, parse: parseHeadingOnly},
	"MWV":   {minFields: 4, parse: parseMWV},
	"VWR":   {minFields: 2, parse: parseVWR},
	"VHW":   {minFields: 5, parse: parseVHW},
	"RPM":   {minFields: 3, parse: parseRPM},
	"MDA":   {minFields: 4, parse: parseMDA},
	"MMB":   {minFields: 3, parse: parseMMB},
	"MTW":   {minFields: 1, parse: parseMTW},
	"XDR":   {minFields: 4, parse: parseXDR},
	"ZDA":   {minFields: 4, parse: parseZDA},
	"PCDIN": {minFields: 4, parse: parsePCDIN},
	"MXPGN": {minFields: 3, parse: parseMXPGN},
}

// DBT/DBK: feet,f,meters,M,fathoms,F
func parseDepthBelow(f fieldList) (types.Fields, error) {
	depth := firstValid(f.float(2), f.float(0)*feetToM, f.float(4)*fathomsToM)
	return types.Fields{"depth": types.Number(depth)}, nil
}

// DPT: depth,offset[,range]
func parseDPT(f fieldList) (types.Fields, error) {
	return types.Fields{
		"depth":  f.number(0),
		"offset": f.number(1),
		"range":  f.number(2),
	}, nil
}

// GGA: time,lat,N,lon,E,quality,satellites,hdop,alt,M,sep,M,age,station
func parseGGA(f fieldList) (types.Fields, error) {
	return types.Fields{
		"time":              types.Number(f.timeOfDay(0)),
		"latitude":          types.Number(f.latitude(1)),
		"longitude":         types.Number(f.longitude(3)),
		"fixQuality":        f.number(5),
		"satellites":        f.number(6),
		"hdop":              f.number(7),
		"altitude":          f.number(8),
		"geoidalSeparation": f.number(10),
	}, nil
}

// RMC: time,status,lat,N,lon,E,sog,cog,date,magvar,E/W[,mode]
func parseRMC(f fieldList) (types.Fields, error) {
	secs := f.timeOfDay(0)
	day, ok := f.date(8)
	return types.Fields{
		"time":      types.Number(secs),
		"valid":     status(f.text(1)),
		"latitude":  types.Number(f.latitude(2)),
		"longitude": types.Number(f.longitude(4)),
		"sog":       types.Number(f.float(6) * knotsToMS),
		"cog":       f.number(7),
		"variation": types.Number(signed(f.float(9), f.text(10), "W")),
		"utcTime":   types.Number(unixTime(day, ok, secs)),
	}, nil
}

// GLL: lat,N,lon,E[,time,status[,mode]]
func parseGLL(f fieldList) (types.Fields, error) {
	valid := types.Flag(true)
	if len(f) > 5 {
		valid = status(f.text(5))
	}
	return types.Fields{
		"latitude":  types.Number(f.latitude(0)),
		"longitude": types.Number(f.longitude(2)),
		"time":      types.Number(f.timeOfDay(4)),
		"valid":     valid,
	}, nil
}

// VTG: cogT,T,cogM,M,sogKn,N,sogKmh,K[,mode]
func parseVTG(f fieldList) (types.Fields, error) {
	return types.Fields{
		"courseTrue":     f.number(0),
		"courseMagnetic": f.number(2),
		"speed":          types.Number(firstValid(f.float(4)*knotsToMS, f.float(6)*kmhToMS)),
	}, nil
}

// HDG: heading,deviation,E/W,variation,E/W
func parseHDG(f fieldList) (types.Fields, error) {
	return types.Fields{
		"heading":   f.number(0),
		"deviation": types.Number(signed(f.float(1), f.text(2), "W")),
		"variation": types.Number(signed(f.float(3), f.text(4), "W")),
	}, nil
}

// HDM/HDT: heading,M|T
func parseHeadingOnly(f fieldList) (types.Fields, error) {
	return types.Fields{"heading": f.number(0)}, nil
}

// MWV: angle,R|T,speed,unit,status
func parseMWV(f fieldList) (types.Fields, error) {
	ref := f.text(1)
	if ref != "R" && ref != "T" {
		return nil, fmt.Errorf("%w: wind reference %q", types.ErrMalformedSentence, ref)
	}
	valid := types.Flag(true)
	if len(f) > 4 {
		valid = status(f.text(4))
	}
	return types.Fields{
		"angle":     f.number(0),
		"reference": types.Text(ref),
		"speed":     types.Number(speedFromUnit(f.float(2), f.text(3))),
		"valid":     valid,
	}, nil
}

// VWR: angle,L|R,kn,N,m/s,M,km/h,K. Port (L) angles are negative.
func parseVWR(f fieldList) (types.Fields, error) {
	return types.Fields{
		"angle": types.Number(signed(f.float(0), f.text(1), "L")),
		"speed": types.Number(firstValid(f.float(2)*knotsToMS, f.float(4), f.float(6)*kmhToMS)),
	}, nil
}

// VHW: hdgT,T,hdgM,M,kn,N,km/h,K
func parseVHW(f fieldList) (types.Fields, error) {
	return types.Fields{
		"headingTrue":     f.number(0),
		"headingMagnetic": f.number(2),
		"speed":           types.Number(firstValid(f.float(4)*knotsToMS, f.float(6)*kmhToMS)),
	}, nil
}

// RPM: S|E,number,rpm,pitch,status
func parseRPM(f fieldList) (types.Fields, error) {
	src := f.text(0)
	if src != "S" && src != "E" {
		return nil, fmt.Errorf("%w: rpm source %q", types.ErrMalformedSentence, src)
	}
	valid := types.Flag(true)
	if len(f) > 4 {
		valid = status(f.text(4))
	}
	return types.Fields{
		"source":   types.Text(src),
		"instance": f.number(1),
		"rpm":      f.number(2),
		"pitch":    f.number(3),
		"valid":    valid,
	}, nil
}

// MDA: inHg,I,bar,B,air,C,water,C,relHum,absHum,dew,C,dirT,T,dirM,M,kn,N,m/s,M
func parseMDA(f fieldList) (types.Fields, error) {
	return types.Fields{
		"pressure":              types.Number(firstValid(f.float(2)*barToPa, f.float(0)*inHgToPa)),
		"airTemperature":        f.number(4),
		"waterTemperature":      f.number(6),
		"humidity":              f.number(8),
		"dewPoint":              f.number(10),
		"windDirectionTrue":     f.number(12),
		"windDirectionMagnetic": f.number(14),
		"windSpeed":             types.Number(firstValid(f.float(18), f.float(16)*knotsToMS)),
	}, nil
}

// MMB: inHg,I,bar,B
func parseMMB(f fieldList) (types.Fields, error) {
	return types.Fields{
		"pressure": types.Number(firstValid(f.float(2)*barToPa, f.float(0)*inHgToPa)),
	}, nil
}

// MTW: temp,C
func parseMTW(f fieldList) (types.Fields, error) {
	return types.Fields{"temperature": types.Number(toCelsius(f.float(0), f.text(1)))}, nil
}

// XDR: (type,value,unit,name)+ flattened into indexed fields.
func parseXDR(f fieldList) (types.Fields, error) {
	count := len(f) / 4
	out := make(types.Fields, count*4+1)
	for n := 0; n < count; n++ {
		base := n * 4
		kind := f.text(base)
		value, unit := xdrValue(kind, f.float(base+1), f.text(base+2))
		idx := strconv.Itoa(n)
		out["type."+idx] = types.Text(kind)
		out["value."+idx] = types.Number(value)
		out["unit."+idx] = types.Text(unit)
		out["name."+idx] = types.Text(f.text(base + 3))
	}
	out["count"] = types.Number(float64(count))
	return out, nil
}

// xdrValue converts a transducer reading to its base unit.
func xdrValue(kind string, v float64, unit string) (float64, string) {
	switch kind {
	case "P":
		switch unit {
		case "B":
			return v * barToPa, "P"
		case "I":
			return v * inHgToPa, "P"
		}
	case "C":
		if unit == "K" || unit == "F" {
			return toCelsius(v, unit), "C"
		}
	}
	return v, unit
}

func toCelsius(v float64, unit string) float64 {
	switch unit {
	case "K":
		return v - 273.15
	case "F":
		return (v - 32) * 5 / 9
	default:
		return v
	}
}

// ZDA: time,dd,mm,yyyy,tzh,tzm
func parseZDA(f fieldList) (types.Fields, error) {
	secs := f.timeOfDay(0)
	day, month, year := f.float(1), f.float(2), f.float(3)

	utc := math.NaN()
	if !math.IsNaN(day) && !math.IsNaN(month) && !math.IsNaN(year) {
		d, ok := civilDate(int(year), int(month), int(day))
		utc = unixTime(d, ok, secs)
	}
	return types.Fields{
		"time":    types.Number(secs),
		"day":     types.Number(day),
		"month":   types.Number(month),
		"year":    types.Number(year),
		"utcTime": types.Number(utc),
	}, nil
}
