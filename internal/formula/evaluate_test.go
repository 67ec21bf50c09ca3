// internal/formula/evaluate_test.go
package formula

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

func TestEvaluate(t *testing.T) {
	vars := map[string]float64{
		"nominalVoltage": 12,
		"maxRpm":         3600,
		"draft":          1.8,
	}

	tests := []struct {
		name string
		expr string
		want float64
	}{
		{"literal", "42", 42},
		{"decimal", "0.25", 0.25},
		{"exponent", "1e3", 1000},
		{"variable", "nominalVoltage", 12},
		{"precedence", "2 + 3 * 4", 14},
		{"parens", "(2 + 3) * 4", 20},
		{"left assoc subtraction", "10 - 4 - 3", 3},
		{"left assoc division", "100 / 10 / 5", 2},
		{"unary minus", "-draft", -1.8},
		{"double negation", "--3", 3},
		{"unary plus", "+3", 3},
		{"unary binds tighter", "-2 * 3", -6},
		{"battery low warning", "nominalVoltage * 0.95", 11.4},
		{"engine redline", "maxRpm * 0.9", 3240},
		{"shallow water", "draft + 1.5", 3.3},
		{"whitespace", "  1\t+\n2 ", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, vars)
			if err != nil {
				t.Fatalf("Evaluate() error = %v, want nil", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvaluate_MissingVariable(t *testing.T) {
	_, err := Evaluate("capacity * 0.1 + bias", map[string]float64{"bias": 1})

	var missing *MissingVariableError
	if !errors.As(err, &missing) {
		t.Fatalf("Evaluate() error = %v, want *MissingVariableError", err)
	}
	if missing.Name != "capacity" {
		t.Errorf("Name = %q, want %q", missing.Name, "capacity")
	}
	if !errors.Is(err, types.ErrMissingVariable) {
		t.Errorf("errors.Is(err, ErrMissingVariable) = false, want true")
	}
}

func TestEvaluate_MissingVariableNilContext(t *testing.T) {
	_, err := Evaluate("x", nil)
	if !errors.Is(err, types.ErrMissingVariable) {
		t.Fatalf("Evaluate() error = %v, want ErrMissingVariable", err)
	}
}

func TestEvaluate_DivisionByZero(t *testing.T) {
	got, err := Evaluate("1 / 0", nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil", err)
	}
	if !math.IsInf(got, 1) {
		t.Errorf("Evaluate(1/0) = %v, want +Inf", got)
	}
}

func TestEvaluate_CompiledReuse(t *testing.T) {
	compiled, err := Compile("capacity * 0.2")
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	for _, capacity := range []float64{100, 200, 400} {
		got, err := compiled.Evaluate(map[string]float64{"capacity": capacity})
		if err != nil {
			t.Fatalf("Evaluate() error = %v, want nil", err)
		}
		if math.Abs(got-capacity*0.2) > 1e-9 {
			t.Errorf("Evaluate(capacity=%v) = %v, want %v", capacity, got, capacity*0.2)
		}
	}
}

func TestEvaluate_MatchesArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a + b * c - d matches Go arithmetic", prop.ForAll(
		func(a, b, c, d float64) bool {
			got, err := Evaluate("a + b * c - d", map[string]float64{"a": a, "b": b, "c": c, "d": d})
			if err != nil {
				return false
			}
			want := a + float64(b*c) - d
			return math.Abs(got-want) <= 1e-9*math.Max(1, math.Abs(want))
		},
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.Property("negation is its own inverse", prop.ForAll(
		func(x float64) bool {
			got, err := Evaluate("-(-x)", map[string]float64{"x": x})
			return err == nil && got == x
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}
