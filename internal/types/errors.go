package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline operations.
var (
	// ErrChecksumMismatch indicates the trailing XOR checksum does not match.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMissingChecksum indicates a sentence without a *hh checksum suffix.
	ErrMissingChecksum = errors.New("missing checksum")

	// ErrMalformedSentence indicates framing or field-count problems.
	ErrMalformedSentence = errors.New("malformed sentence")

	// ErrSentenceTooLong indicates a line exceeds MaxSentenceLength.
	ErrSentenceTooLong = errors.New("sentence exceeds maximum length")

	// ErrShortPayload indicates a PGN payload shorter than its fixed layout.
	ErrShortPayload = errors.New("payload shorter than PGN layout")

	// ErrPayloadTooLarge indicates a PGN payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrUnsupportedMessage indicates a sentence type or PGN outside the implemented subset.
	ErrUnsupportedMessage = errors.New("unsupported message type")

	// ErrTypeMismatch indicates a value variant that disagrees with the field schema.
	ErrTypeMismatch = errors.New("value kind does not match schema")

	// ErrNonFiniteValue indicates +Inf/-Inf in a Number field (NaN is allowed).
	ErrNonFiniteValue = errors.New("non-finite numeric value")

	// ErrInvalidEnum indicates a Text value outside the field's option set.
	ErrInvalidEnum = errors.New("value not in enum option set")

	// ErrUnknownField indicates a field name absent from the sensor schema.
	ErrUnknownField = errors.New("field not in schema")

	// ErrUnknownSensorType indicates a sensor type without a schema.
	ErrUnknownSensorType = errors.New("unknown sensor type")

	// ErrMissingVariable indicates a formula references a variable absent from the context.
	ErrMissingVariable = errors.New("missing formula variable")

	// ErrFormulaSyntax indicates a formula that does not parse.
	ErrFormulaSyntax = errors.New("formula syntax error")

	// ErrFormulaTooComplex indicates a formula exceeds MaxFormulaLength or MaxFormulaDepth.
	ErrFormulaTooComplex = errors.New("formula exceeds complexity limits")
)

// ParseError reports a message dropped by a decoder.
// Format is "nmea0183" or "nmea2000"; Type is the sentence formatter or PGN when known.
type ParseError struct {
	Format string
	Type   string
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Format
	if e.Type != "" {
		msg += " " + e.Type
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a value rejected by the field schema.
// It signals a decoder defect and is surfaced by Instance.Update.
type ValidationError struct {
	SensorType SensorType
	Field      string
	Err        error
	Detail     string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validate %s.%s: %v", e.SensorType, e.Field, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ProcessError reports a decoded message the processor could not map.
type ProcessError struct {
	MessageType string
	FieldCount  int
	Err         error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s (%d fields): %v", e.MessageType, e.FieldCount, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Resource limits enforced by decoders and the formula compiler.
const (
	// MaxSentenceLength bounds a single 0183 line. The standard allows 82 chars but
	// PGN wrapper sentences carry up to 223 payload bytes as hex.
	MaxSentenceLength = 512

	// MaxPayloadSize is the largest NMEA 2000 fast-packet payload.
	MaxPayloadSize = 223

	// MaxFormulaLength bounds threshold expression source text.
	MaxFormulaLength = 512

	// MaxFormulaDepth bounds parenthesis/unary nesting during recursive descent.
	MaxFormulaDepth = 32
)
