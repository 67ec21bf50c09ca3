// internal/thresholds/resolve.go
package thresholds

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/formula"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Threshold resolution.
 *
 * Converts a static-or-formula Bound plus a ConfigContext into a concrete
 * number. Resolution runs when an instance's configuration changes, never on
 * value updates, so formula cost is paid once per reconfiguration.
 *
 * Resolution rules:
 *   - Static: Max for Above, Min for Below (the side that can be crossed)
 *   - Formula: evaluate against context, then clamp into [ClampMin, ClampMax]
 *   - Missing variable, syntax error or non-finite result: undefined (ok=false)
 *
 * Undefined is never an error. The alarm evaluator skips undefined bounds, so a
 * vessel without a configured capacity simply gets no capacity-based alarm.
 *
 * Compiled formulas are cached per expression string. The cache is bounded by
 * the number of distinct expressions in configuration.
 */

// Resolver resolves bounds and caches compiled formulas. Safe for concurrent use.
type Resolver struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]compileResult
}

type compileResult struct {
	compiled *formula.Compiled
	err      error
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{
		logger: logger,
		cache:  make(map[string]compileResult),
	}
}

// Resolve returns the concrete bound and true, or (0, false) when the bound is
// undefined.
func (r *Resolver) Resolve(b types.Bound, dir types.Direction, ctx types.ConfigContext) (float64, bool) {
	switch {
	case b.Formula != nil:
		return r.resolveFormula(b.Formula, ctx)
	case b.Static != nil:
		return resolveStatic(b.Static, dir)
	default:
		return 0, false
	}
}

// ResolveAll resolves both bounds of cfg.
func (r *Resolver) ResolveAll(cfg types.ThresholdConfig, ctx types.ConfigContext) types.ResolvedThresholds {
	out := types.ResolvedThresholds{Hysteresis: cfg.Hysteresis}
	if v, ok := r.Resolve(cfg.Warning, cfg.Direction, ctx); ok {
		out.Warning = types.Float(v)
	}
	if v, ok := r.Resolve(cfg.Critical, cfg.Direction, ctx); ok {
		out.Critical = types.Float(v)
	}
	return out
}

// Compile validates expr and stores it in the cache. Configuration loaders call
// it to reject bad formulas at load time.
func (r *Resolver) Compile(expr string) (*formula.Compiled, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.cache[expr]; ok {
		return res.compiled, res.err
	}
	compiled, err := formula.Compile(expr)
	r.cache[expr] = compileResult{compiled: compiled, err: err}
	return compiled, err
}

func resolveStatic(s *types.StaticBound, dir types.Direction) (float64, bool) {
	bound := s.Max
	if dir == types.Below {
		bound = s.Min
	}
	if bound == nil || math.IsNaN(*bound) || math.IsInf(*bound, 0) {
		return 0, false
	}
	return *bound, true
}

func (r *Resolver) resolveFormula(f *types.FormulaBound, ctx types.ConfigContext) (float64, bool) {
	compiled, err := r.Compile(f.Expression)
	if err != nil {
		r.logger.Warn("threshold formula rejected",
			"expression", f.Expression,
			"error", err)
		return 0, false
	}

	v, err := compiled.Evaluate(ctx)
	if err != nil {
		if errors.Is(err, types.ErrMissingVariable) {
			r.logger.Debug("threshold formula skipped",
				"expression", f.Expression,
				"error", err)
		}
		return 0, false
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.logger.Warn("threshold formula produced non-finite value",
			"expression", f.Expression,
			"value", v)
		return 0, false
	}

	return clamp(v, f.ClampMin, f.ClampMax), true
}

// clamp bounds v into [lo, hi]; nil ends are open.
func clamp(v float64, lo, hi *float64) float64 {
	if lo != nil && v < *lo {
		v = *lo
	}
	if hi != nil && v > *hi {
		v = *hi
	}
	return v
}

var defaultResolver = NewResolver(nil)

// Resolve resolves b with a package-level resolver that shares its formula cache.
func Resolve(b types.Bound, dir types.Direction, ctx types.ConfigContext) (float64, bool) {
	return defaultResolver.Resolve(b, dir, ctx)
}
