// internal/formula/lexer.go
package formula

import (
	"fmt"
	"strconv"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Tokenizer for threshold formulas.
 *
 * Produces numbers, identifiers, the four arithmetic operators and parentheses.
 * Whitespace is insignificant. Anything else is a syntax error reported with its
 * byte offset so configuration authors can find it.
 *
 * Numbers: decimal with optional fraction and exponent ("12", "0.5", "1e-3").
 * Identifiers: [A-Za-z_][A-Za-z0-9_]* - matches ConfigContext names like
 * nominalVoltage or maxRpm.
 */

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
)

type token struct {
	kind  tokenKind
	text  string
	value float64
	pos   int
}

// tokenize splits expr into tokens terminated by tokEOF.
func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+':
			tokens = append(tokens, token{kind: tokPlus, text: "+", pos: i})
			i++
		case c == '-':
			tokens = append(tokens, token{kind: tokMinus, text: "-", pos: i})
			i++
		case c == '*':
			tokens = append(tokens, token{kind: tokStar, text: "*", pos: i})
			i++
		case c == '/':
			tokens = append(tokens, token{kind: tokSlash, text: "/", pos: i})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case isDigit(c) || c == '.':
			end := scanNumber(expr, i)
			text := expr[i:end]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q at offset %d", types.ErrFormulaSyntax, text, i)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, value: f, pos: i})
			i = end
		case isIdentStart(c):
			end := i + 1
			for end < len(expr) && isIdentPart(expr[end]) {
				end++
			}
			tokens = append(tokens, token{kind: tokIdent, text: expr[i:end], pos: i})
			i = end
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", types.ErrFormulaSyntax, c, i)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(expr)})
	return tokens, nil
}

// scanNumber returns the end offset of the numeric literal starting at i.
func scanNumber(s string, i int) int {
	for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
		i++
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			return j
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
