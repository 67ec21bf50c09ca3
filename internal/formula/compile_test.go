// internal/formula/compile_test.go
package formula

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

func TestCompile_Variables(t *testing.T) {
	compiled, err := Compile("nominalVoltage * 0.9 + offset - nominalVoltage")
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}

	want := []string{"nominalVoltage", "offset"}
	if got := compiled.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
	if compiled.Source != "nominalVoltage * 0.9 + offset - nominalVoltage" {
		t.Errorf("Source = %q", compiled.Source)
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"dangling operator", "1 +"},
		{"unbalanced open", "(1 + 2"},
		{"unbalanced close", "1 + 2)"},
		{"bad character", "a % b"},
		{"two operands", "1 2"},
		{"bad number", "1.2.3"},
		{"empty parens", "()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			if !errors.Is(err, types.ErrFormulaSyntax) {
				t.Errorf("Compile(%q) error = %v, want ErrFormulaSyntax", tt.expr, err)
			}
		})
	}
}

func TestCompile_ResourceLimits(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"too long", strings.Repeat("1+", types.MaxFormulaLength/2) + "1"},
		{"too deep parens", strings.Repeat("(", types.MaxFormulaDepth+1) + "1" + strings.Repeat(")", types.MaxFormulaDepth+1)},
		{"too deep negation", strings.Repeat("-", types.MaxFormulaDepth+1) + "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			if !errors.Is(err, types.ErrFormulaTooComplex) {
				t.Errorf("Compile() error = %v, want ErrFormulaTooComplex", err)
			}
		})
	}
}

func TestCompile_NestingWithinLimit(t *testing.T) {
	depth := types.MaxFormulaDepth / 2
	expr := strings.Repeat("(", depth) + "x" + strings.Repeat(")", depth)
	if _, err := Compile(expr); err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
}

func TestCompile_NeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	alphabet := []string{"1", "2.5", "x", "y", "+", "-", "*", "/", "(", ")", " ", "e", "."}

	properties.Property("compile returns error or tree, never panics", prop.ForAll(
		func(parts []int) bool {
			var sb strings.Builder
			for _, p := range parts {
				sb.WriteString(alphabet[p])
			}
			compiled, err := Compile(sb.String())
			return (compiled == nil) != (err == nil)
		},
		gen.SliceOf(gen.IntRange(0, len(alphabet)-1)),
	))

	properties.TestingRun(t)
}
