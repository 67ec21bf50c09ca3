// internal/nmea0183/fields.go
package nmea0183

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Unit conversion factors to base units.
const (
	knotsToMS  = 1852.0 / 3600.0
	kmhToMS    = 1000.0 / 3600.0
	mphToMS    = 1609.344 / 3600.0
	feetToM    = 0.3048
	fathomsToM = 1.8288
	barToPa    = 100000.0
	inHgToPa   = 3386.389
)

// fieldList is the comma-separated data fields after the address.
type fieldList []string

func (f fieldList) text(i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return strings.TrimSpace(f[i])
}

// float parses field i; empty or unparsable yields NaN.
func (f fieldList) float(i int) float64 {
	s := f.text(i)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// number is float wrapped as a Value.
func (f fieldList) number(i int) types.Value {
	return types.Number(f.float(i))
}

// latitude parses "ddmm.mmmm" with hemisphere at i+1. S is negative.
func (f fieldList) latitude(i int) float64 {
	return degreesMinutes(f.float(i), f.text(i+1), "S", 90)
}

// longitude parses "dddmm.mmmm" with hemisphere at i+1. W is negative.
func (f fieldList) longitude(i int) float64 {
	return degreesMinutes(f.float(i), f.text(i+1), "W", 180)
}

func degreesMinutes(v float64, hemi, negative string, limit float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return math.NaN()
	}
	deg := math.Floor(v / 100)
	minutes := v - deg*100
	if minutes >= 60 {
		return math.NaN()
	}
	out := deg + minutes/60
	if out > limit {
		return math.NaN()
	}
	switch hemi {
	case negative:
		return -out
	case "N", "E", "S", "W":
		return out
	default:
		return math.NaN()
	}
}

// signed applies a direction letter: neg yields a negative value.
func signed(v float64, dir, neg string) float64 {
	if dir == neg {
		return -v
	}
	return v
}

// timeOfDay parses "hhmmss(.ss)" into seconds since midnight.
func (f fieldList) timeOfDay(i int) float64 {
	s := f.text(i)
	if len(s) < 6 {
		return math.NaN()
	}
	h, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	sec, err3 := strconv.ParseFloat(s[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sec < 0 || sec >= 61 {
		return math.NaN()
	}
	return float64(h*3600+m*60) + sec
}

// date parses "ddmmyy" into UTC midnight. Two-digit years below 70 are 20xx.
func (f fieldList) date(i int) (time.Time, bool) {
	s := f.text(i)
	if len(s) != 6 {
		return time.Time{}, false
	}
	d, err1 := strconv.Atoi(s[0:2])
	m, err2 := strconv.Atoi(s[2:4])
	y, err3 := strconv.Atoi(s[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if y < 70 {
		y += 2000
	} else {
		y += 1900
	}
	return civilDate(y, m, d)
}

// civilDate validates and builds a UTC date.
func civilDate(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// unixTime combines a date and seconds-of-day; NaN when either is missing.
func unixTime(day time.Time, ok bool, secs float64) float64 {
	if !ok || math.IsNaN(secs) {
		return math.NaN()
	}
	return float64(day.Unix()) + secs
}

// speedFromUnit converts v in the NMEA speed unit letter to m/s.
func speedFromUnit(v float64, unit string) float64 {
	switch unit {
	case "N":
		return v * knotsToMS
	case "K":
		return v * kmhToMS
	case "M":
		return v
	case "S":
		return v * mphToMS
	default:
		return math.NaN()
	}
}

// firstValid returns the first non-NaN value.
func firstValid(vals ...float64) float64 {
	for _, v := range vals {
		if !math.IsNaN(v) {
			return v
		}
	}
	return math.NaN()
}

// status maps an A/V status letter to a Flag; anything else is invalid.
func status(s string) types.Value {
	return types.Flag(s == "A")
}
