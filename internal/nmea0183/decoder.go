// internal/nmea0183/decoder.go
package nmea0183

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * NMEA 0183 sentence decoder.
 *
 * Framing: "$" or "!", comma separated fields, "*hh" XOR checksum over every
 * byte between the start character and "*". The checksum is verified before any
 * field is looked at; a mismatch drops the sentence.
 *
 * Address: a 2-character talker plus 3-character formatter ("IIDBT"), or one of
 * the PGN wrapper addresses (PCDIN, MXPGN). Other proprietary ("P...") addresses
 * are unsupported.
 *
 * Fields are parsed with strconv only. Empty or unparsable numeric fields decode
 * to NaN, so a half-populated sentence still yields every field its formatter
 * declares. Decode never panics on arbitrary input.
 */

const format = "nmea0183"

// Options controls decoder leniency.
type Options struct {
	// AllowMissingChecksum accepts sentences without "*hh". Some multiplexers
	// strip checksums; a present but wrong checksum is always rejected.
	AllowMissingChecksum bool
}

type parseFunc func(f fieldList) (types.Fields, error)

type sentenceParser struct {
	minFields int
	parse     parseFunc
}

// Decoder decodes sentences. Safe for concurrent use.
type Decoder struct {
	opts    Options
	parsers map[string]sentenceParser
}

// NewDecoder creates a Decoder for the built-in sentence set.
func NewDecoder(opts Options) *Decoder {
	return &Decoder{opts: opts, parsers: builtinParsers}
}

// Decode parses one sentence. Returns *types.ParseError on any failure.
func (d *Decoder) Decode(line string) (types.DecodedMessage, error) {
	line = strings.TrimRight(line, "\r\n \t")
	line = strings.TrimLeft(line, " \t")

	if len(line) > types.MaxSentenceLength {
		return types.DecodedMessage{}, parseErr("", types.ErrSentenceTooLong, fmt.Sprintf("%d bytes", len(line)))
	}
	if len(line) < 2 || (line[0] != '$' && line[0] != '!') {
		return types.DecodedMessage{}, parseErr("", types.ErrMalformedSentence, "missing start delimiter")
	}

	body, err := d.verifyChecksum(line)
	if err != nil {
		return types.DecodedMessage{}, err
	}

	parts := strings.Split(body, ",")
	talker, formatter, err := splitAddress(parts[0])
	if err != nil {
		return types.DecodedMessage{}, err
	}

	p, ok := d.parsers[formatter]
	if !ok {
		return types.DecodedMessage{}, parseErr(formatter, types.ErrUnsupportedMessage, "")
	}

	f := fieldList(parts[1:])
	if len(f) < p.minFields {
		return types.DecodedMessage{}, parseErr(formatter, types.ErrMalformedSentence,
			fmt.Sprintf("%d fields, need %d", len(f), p.minFields))
	}

	fields, err := p.parse(f)
	if err != nil {
		return types.DecodedMessage{}, parseErr(formatter, err, "")
	}

	return types.DecodedMessage{Type: formatter, Talker: talker, Fields: fields}, nil
}

// verifyChecksum returns the sentence body between the start character and "*".
func (d *Decoder) verifyChecksum(line string) (string, error) {
	star := strings.LastIndexByte(line, '*')
	if star < 0 {
		if d.opts.AllowMissingChecksum {
			return line[1:], nil
		}
		return "", parseErr("", types.ErrMissingChecksum, "")
	}

	body := line[1:star]
	hex := line[star+1:]
	if len(hex) != 2 {
		return "", parseErr("", types.ErrMalformedSentence, "checksum must be two hex digits")
	}
	want, err := strconv.ParseUint(hex, 16, 8)
	if err != nil {
		return "", parseErr("", types.ErrMalformedSentence, "checksum is not hex")
	}
	if got := Checksum(body); got != byte(want) {
		return "", parseErr("", types.ErrChecksumMismatch, fmt.Sprintf("got %02X, want %02X", got, want))
	}
	return body, nil
}

// splitAddress separates talker and formatter.
func splitAddress(addr string) (string, string, error) {
	switch addr {
	case "PCDIN":
		return "", "PCDIN", nil
	case "MXPGN":
		return "MX", "MXPGN", nil
	}
	if strings.HasPrefix(addr, "P") {
		return "", addr, parseErr(addr, types.ErrUnsupportedMessage, "proprietary sentence")
	}
	if len(addr) != 5 {
		return "", "", parseErr(addr, types.ErrMalformedSentence, "address must be talker+formatter")
	}
	return addr[:2], addr[2:], nil
}

// Checksum XORs every byte of body.
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

// Frame wraps body as "$body*hh".
func Frame(body string) string {
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

// Formatters returns the supported sentence formatters, sorted.
func (d *Decoder) Formatters() []string {
	out := make([]string, 0, len(d.parsers))
	for k := range d.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func parseErr(msgType string, err error, detail string) *types.ParseError {
	return &types.ParseError{Format: format, Type: msgType, Err: err, Detail: detail}
}

var defaultDecoder = NewDecoder(Options{})

// Decode parses one sentence with strict checksum handling.
func Decode(line string) (types.DecodedMessage, error) {
	return defaultDecoder.Decode(line)
}
