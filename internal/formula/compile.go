// internal/formula/compile.go
package formula

import (
	"fmt"
	"sort"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Formula compilation.
 *
 * Compiles a threshold expression into an immutable syntax tree by recursive
 * descent, validating resource limits while parsing.
 *
 * Grammar (standard precedence, left associative):
 *   expr    := term (('+' | '-') term)*
 *   term    := unary (('*' | '/') unary)*
 *   unary   := ('-' | '+') unary | primary
 *   primary := NUMBER | IDENT | '(' expr ')'
 *
 * Why compile-time validation: Length and nesting limits are checked when the
 * threshold configuration is loaded rather than when an alarm is evaluated, so a
 * pathological expression is rejected once instead of on every resolution.
 *
 * The tree has no loops, calls or assignments; evaluation is a bounded walk over
 * nodes with no side effects.
 */

type nodeKind int

const (
	nodeNumber nodeKind = iota
	nodeVariable
	nodeNegate
	nodeBinary
)

type node struct {
	kind  nodeKind
	value float64 // nodeNumber
	name  string  // nodeVariable
	op    tokenKind
	left  *node
	right *node // nil for nodeNegate
}

// Compiled is a parsed formula ready for evaluation. Safe for concurrent use.
type Compiled struct {
	Source    string
	root      *node
	variables []string
}

// Variables returns the distinct variable names referenced, sorted.
func (c *Compiled) Variables() []string {
	out := make([]string, len(c.variables))
	copy(out, c.variables)
	return out
}

// Compile validates and parses expr.
func Compile(expr string) (*Compiled, error) {
	if len(expr) > types.MaxFormulaLength {
		return nil, fmt.Errorf("%w: length %d > %d", types.ErrFormulaTooComplex, len(expr), types.MaxFormulaLength)
	}

	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens, vars: make(map[string]struct{})}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", types.ErrFormulaSyntax, tok.text, tok.pos)
	}

	vars := make([]string, 0, len(p.vars))
	for name := range p.vars {
		vars = append(vars, name)
	}
	sort.Strings(vars)

	return &Compiled{Source: expr, root: root, variables: vars}, nil
}

type parser struct {
	tokens []token
	pos    int
	depth  int
	vars   map[string]struct{}
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// enter tracks recursion depth; every recursive production calls it.
func (p *parser) enter() error {
	p.depth++
	if p.depth > types.MaxFormulaDepth {
		return fmt.Errorf("%w: nesting deeper than %d", types.ErrFormulaTooComplex, types.MaxFormulaDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) parseExpr() (*node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokPlus && tok.kind != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nodeBinary, op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseTerm() (*node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokStar && tok.kind != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &node{kind: nodeBinary, op: tok.kind, left: left, right: right}
	}
}

func (p *parser) parseUnary() (*node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch p.peek().kind {
	case tokMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{kind: nodeNegate, left: operand}, nil
	case tokPlus:
		p.next()
		return p.parseUnary()
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (*node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &node{kind: nodeNumber, value: tok.value}, nil
	case tokIdent:
		p.vars[tok.text] = struct{}{}
		return &node{kind: nodeVariable, name: tok.text}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ')' at offset %d", types.ErrFormulaSyntax, closing.pos)
		}
		return inner, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", types.ErrFormulaSyntax)
	default:
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", types.ErrFormulaSyntax, tok.text, tok.pos)
	}
}
