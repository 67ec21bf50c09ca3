// internal/formula/evaluate.go
package formula

import (
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Formula evaluation.
 *
 * Evaluates a Compiled tree against a variable map. All referenced variables are
 * checked before any arithmetic so a missing name is reported deterministically
 * (first in sorted order) and never silently treated as zero.
 *
 * Arithmetic follows IEEE-754: division by zero yields +/-Inf or NaN. Callers that
 * need a finite bound (the threshold resolver) reject non-finite results.
 */

// MissingVariableError reports a variable absent from the evaluation context.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return types.ErrMissingVariable.Error() + ": " + e.Name
}

func (e *MissingVariableError) Unwrap() error { return types.ErrMissingVariable }

// Evaluate computes the formula with vars. Returns *MissingVariableError when a
// referenced variable is absent.
func (c *Compiled) Evaluate(vars map[string]float64) (float64, error) {
	for _, name := range c.variables {
		if _, ok := vars[name]; !ok {
			return 0, &MissingVariableError{Name: name}
		}
	}
	return evalNode(c.root, vars), nil
}

// Evaluate compiles and evaluates expr in one step.
func Evaluate(expr string, vars map[string]float64) (float64, error) {
	compiled, err := Compile(expr)
	if err != nil {
		return 0, err
	}
	return compiled.Evaluate(vars)
}

// evalNode walks the tree. Variables are known to be present.
func evalNode(n *node, vars map[string]float64) float64 {
	switch n.kind {
	case nodeNumber:
		return n.value
	case nodeVariable:
		return vars[n.name]
	case nodeNegate:
		return -evalNode(n.left, vars)
	case nodeBinary:
		l := evalNode(n.left, vars)
		r := evalNode(n.right, vars)
		switch n.op {
		case tokPlus:
			return l + r
		case tokMinus:
			return l - r
		case tokStar:
			return l * r
		case tokSlash:
			return l / r
		}
	}
	return 0
}
