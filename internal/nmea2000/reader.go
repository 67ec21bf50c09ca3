// internal/nmea2000/reader.go
package nmea2000

import (
	"encoding/binary"
	"math"
)

/*
 * Little-endian field readers.
 *
 * NMEA 2000 marks "data not available" with all-ones for unsigned fields and
 * the maximum positive value for signed fields. Readers return NaN for those
 * sentinels and for offsets past the end of the payload, so optional trailing
 * fields on short frames decode as no reading.
 */

const radToDeg = 180 / math.Pi

const kelvinOffset = 273.15

type reader []byte

func (r reader) has(off, width int) bool {
	return off >= 0 && off+width <= len(r)
}

// byteAt returns the raw byte, or 0xFF past the end.
func (r reader) byteAt(off int) uint8 {
	if !r.has(off, 1) {
		return 0xFF
	}
	return r[off]
}

func (r reader) u8(off int, scale float64) float64 {
	if !r.has(off, 1) || r[off] == 0xFF {
		return math.NaN()
	}
	return float64(r[off]) * scale
}

func (r reader) i8(off int, scale float64) float64 {
	if !r.has(off, 1) || int8(r[off]) == math.MaxInt8 {
		return math.NaN()
	}
	return float64(int8(r[off])) * scale
}

func (r reader) u16(off int, scale float64) float64 {
	if !r.has(off, 2) {
		return math.NaN()
	}
	v := binary.LittleEndian.Uint16(r[off:])
	if v == math.MaxUint16 {
		return math.NaN()
	}
	return float64(v) * scale
}

func (r reader) i16(off int, scale float64) float64 {
	if !r.has(off, 2) {
		return math.NaN()
	}
	v := int16(binary.LittleEndian.Uint16(r[off:]))
	if v == math.MaxInt16 {
		return math.NaN()
	}
	return float64(v) * scale
}

func (r reader) u32(off int, scale float64) float64 {
	if !r.has(off, 4) {
		return math.NaN()
	}
	v := binary.LittleEndian.Uint32(r[off:])
	if v == math.MaxUint32 {
		return math.NaN()
	}
	return float64(v) * scale
}

func (r reader) i32(off int, scale float64) float64 {
	if !r.has(off, 4) {
		return math.NaN()
	}
	v := int32(binary.LittleEndian.Uint32(r[off:]))
	if v == math.MaxInt32 {
		return math.NaN()
	}
	return float64(v) * scale
}

func (r reader) i64(off int, scale float64) float64 {
	if !r.has(off, 8) {
		return math.NaN()
	}
	v := int64(binary.LittleEndian.Uint64(r[off:]))
	if v == math.MaxInt64 {
		return math.NaN()
	}
	return float64(v) * scale
}

// kelvin reads a u16 in 0.01 K (or the given scale) and returns Celsius.
func (r reader) kelvin(off int, scale float64) float64 {
	return r.u16(off, scale) - kelvinOffset
}

// angle reads a u16 in 1e-4 rad and returns degrees.
func (r reader) angle(off int) float64 {
	return r.u16(off, 1e-4) * radToDeg
}

// signedAngle reads an i16 in 1e-4 rad and returns degrees.
func (r reader) signedAngle(off int) float64 {
	return r.i16(off, 1e-4) * radToDeg
}
