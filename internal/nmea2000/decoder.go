// internal/nmea2000/decoder.go
package nmea2000

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * NMEA 2000 PGN payload decoder.
 *
 * Decodes single-frame (or already reassembled) PGN payloads into a
 * DecodedMessage of Type "PGN<n>". There is no CAN arbitration or fast-packet
 * reassembly here; the caller supplies the complete payload, typically from a
 * PCDIN or MXPGN wrapper sentence.
 *
 * Every layout declares a minimum payload length covering its mandatory fields.
 * Shorter payloads are a ParseError. Optional trailing fields read as NaN when
 * absent, and "data not available" sentinels read as NaN, so every field the
 * layout declares is always present in the result.
 *
 * Units: angles in degrees, temperatures in Celsius, pressure in Pa, speeds in
 * m/s, so the processor can store values without conversion.
 */

const format = "nmea2000"

// layout decodes one PGN.
type layout struct {
	Name   string
	MinLen int
	Decode func(r reader) types.Fields
}

// Decoder maps PGNs to layouts.
type Decoder struct {
	layouts map[uint32]layout
}

// NewDecoder returns a decoder for the built-in PGN subset.
func NewDecoder() *Decoder {
	d := &Decoder{layouts: make(map[uint32]layout, len(builtinLayouts))}
	for pgn, l := range builtinLayouts {
		d.layouts[pgn] = l
	}
	return d
}

// Decode decodes payload as pgn. Returns *types.ParseError wrapping
// ErrUnsupportedMessage, ErrShortPayload or ErrPayloadTooLarge.
func (d *Decoder) Decode(pgn uint32, payload []byte) (types.DecodedMessage, error) {
	msgType := MessageType(pgn)

	l, ok := d.layouts[pgn]
	if !ok {
		return types.DecodedMessage{}, &types.ParseError{Format: format, Type: msgType, Err: types.ErrUnsupportedMessage}
	}
	if len(payload) > types.MaxPayloadSize {
		return types.DecodedMessage{}, &types.ParseError{
			Format: format,
			Type:   msgType,
			Err:    types.ErrPayloadTooLarge,
			Detail: fmt.Sprintf("%d bytes", len(payload)),
		}
	}
	if len(payload) < l.MinLen {
		return types.DecodedMessage{}, &types.ParseError{
			Format: format,
			Type:   msgType,
			Err:    types.ErrShortPayload,
			Detail: fmt.Sprintf("got %d bytes, need %d", len(payload), l.MinLen),
		}
	}

	return types.DecodedMessage{Type: msgType, Fields: l.Decode(reader(payload))}, nil
}

// Supported reports whether pgn has a layout.
func (d *Decoder) Supported(pgn uint32) bool {
	_, ok := d.layouts[pgn]
	return ok
}

// PGNs returns the supported PGNs, sorted.
func (d *Decoder) PGNs() []uint32 {
	out := make([]uint32, 0, len(d.layouts))
	for pgn := range d.layouts {
		out = append(out, pgn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Name returns the human name of a supported PGN.
func (d *Decoder) Name(pgn uint32) string {
	return d.layouts[pgn].Name
}

// MessageType formats the DecodedMessage type for pgn.
func MessageType(pgn uint32) string {
	return "PGN" + strconv.FormatUint(uint64(pgn), 10)
}

var defaultDecoder = NewDecoder()

// Decode decodes with the built-in layouts.
func Decode(pgn uint32, payload []byte) (types.DecodedMessage, error) {
	return defaultDecoder.Decode(pgn, payload)
}
