// internal/nmea0183/wrapper.go
package nmea0183

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * NMEA 2000 PGNs carried inside 0183 sentences.
 *
 * Gateways forward binary PGN payloads as hex inside proprietary sentences:
 *   $PCDIN,<pgn>,<timestamp>,<source>,<data>         all hex, data in wire order
 *   $MXPGN,<pgn>,<attributes>,<data>                 data hex in reverse byte order
 *
 * MXPGN attributes (16 bits): bit 15 send flag, bits 14-12 priority, bits
 * 11-8 data length code, bits 7-0 source address.
 *
 * The decoded message keeps the payload as a hex Text field; Payload converts it
 * back to bytes for the NMEA 2000 decoder.
 */

func parsePCDIN(f fieldList) (types.Fields, error) {
	pgn, err := parseHex(f.text(0), 24)
	if err != nil {
		return nil, err
	}
	ts, err := parseHex(f.text(1), 32)
	if err != nil {
		return nil, err
	}
	src, err := parseHex(f.text(2), 8)
	if err != nil {
		return nil, err
	}
	data, err := decodePayload(f.text(3))
	if err != nil {
		return nil, err
	}
	return types.Fields{
		"pgn":       types.Number(float64(pgn)),
		"timestamp": types.Number(float64(ts)),
		"source":    types.Number(float64(src)),
		"payload":   types.Text(strings.ToUpper(hex.EncodeToString(data))),
	}, nil
}

func parseMXPGN(f fieldList) (types.Fields, error) {
	pgn, err := parseHex(f.text(0), 24)
	if err != nil {
		return nil, err
	}
	attr, err := parseHex(f.text(1), 16)
	if err != nil {
		return nil, err
	}
	data, err := decodePayload(f.text(2))
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
		data[i], data[j] = data[j], data[i]
	}
	if dlc := int(attr>>8) & 0x0F; dlc > 0 && dlc < len(data) {
		data = data[:dlc]
	}

	return types.Fields{
		"pgn":      types.Number(float64(pgn)),
		"source":   types.Number(float64(attr & 0xFF)),
		"priority": types.Number(float64((attr >> 12) & 0x07)),
		"payload":  types.Text(strings.ToUpper(hex.EncodeToString(data))),
	}, nil
}

func parseHex(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: bad hex field %q", types.ErrMalformedSentence, s)
	}
	return v, nil
}

func decodePayload(s string) ([]byte, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not hex", types.ErrMalformedSentence)
	}
	if len(data) > types.MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", types.ErrPayloadTooLarge, len(data))
	}
	return data, nil
}

// IsWrapper reports whether msg carries an NMEA 2000 payload.
func IsWrapper(msg types.DecodedMessage) bool {
	return msg.Type == "PCDIN" || msg.Type == "MXPGN"
}

// Payload extracts the PGN, source address and payload bytes from a wrapper
// message.
func Payload(msg types.DecodedMessage) (pgn uint32, source uint8, payload []byte, err error) {
	if !IsWrapper(msg) {
		return 0, 0, nil, fmt.Errorf("%w: %s is not a PGN wrapper", types.ErrUnsupportedMessage, msg.Type)
	}
	p := msg.Number("pgn")
	s := msg.Number("source")
	if math.IsNaN(p) || math.IsNaN(s) {
		return 0, 0, nil, fmt.Errorf("%w: wrapper without pgn or source", types.ErrMalformedSentence)
	}
	payload, err = hex.DecodeString(msg.Text("payload"))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%w: payload is not hex", types.ErrMalformedSentence)
	}
	return uint32(p), uint8(s), payload, nil
}
