package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Querier runs named queries. Implemented by *db.Queries.
type Querier interface {
	Select(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

type contextRow struct {
	SensorType string  `db:"sensor_type"`
	Instance   int64   `db:"instance"`
	Name       string  `db:"name"`
	Value      float64 `db:"value"`
}

type thresholdRow struct {
	SensorType       string          `db:"sensor_type"`
	Instance         int64           `db:"instance"`
	Metric           string          `db:"metric"`
	Direction        string          `db:"direction"`
	StaleAfterMs     sql.NullInt64   `db:"stale_after_ms"`
	Hysteresis       float64         `db:"hysteresis"`
	WarningMin       sql.NullFloat64 `db:"warning_min"`
	WarningMax       sql.NullFloat64 `db:"warning_max"`
	WarningFormula   sql.NullString  `db:"warning_formula"`
	WarningClampMin  sql.NullFloat64 `db:"warning_clamp_min"`
	WarningClampMax  sql.NullFloat64 `db:"warning_clamp_max"`
	CriticalMin      sql.NullFloat64 `db:"critical_min"`
	CriticalMax      sql.NullFloat64 `db:"critical_max"`
	CriticalFormula  sql.NullString  `db:"critical_formula"`
	CriticalClampMin sql.NullFloat64 `db:"critical_clamp_min"`
	CriticalClampMax sql.NullFloat64 `db:"critical_clamp_max"`
}

// LoadSQL reads every context and threshold row into a Static provider.
// Rows without stale_after_ms get defaultStale.
func LoadSQL(ctx context.Context, q Querier, defaultStale time.Duration) (*Static, error) {
	var contexts []contextRow
	if err := q.Select(ctx, "list-sensor-context", &contexts); err != nil {
		return nil, fmt.Errorf("failed to list sensor context: %w", err)
	}
	var rows []thresholdRow
	if err := q.Select(ctx, "list-thresholds", &rows); err != nil {
		return nil, fmt.Errorf("failed to list thresholds: %w", err)
	}

	s := NewStatic()
	for _, c := range contexts {
		if err := s.SetContext(types.SensorType(c.SensorType), c.Instance, c.Name, c.Value); err != nil {
			return nil, fmt.Errorf("sensor_context %s/%d/%s: %w", c.SensorType, c.Instance, c.Name, err)
		}
	}
	for _, r := range rows {
		cfg, err := r.config(defaultStale)
		if err != nil {
			return nil, fmt.Errorf("thresholds %s/%d/%s: %w", r.SensorType, r.Instance, r.Metric, err)
		}
		if err := s.SetThreshold(types.SensorType(r.SensorType), r.Instance, r.Metric, cfg); err != nil {
			return nil, fmt.Errorf("thresholds %s/%d/%s: %w", r.SensorType, r.Instance, r.Metric, err)
		}
	}
	return s, nil
}

func (r thresholdRow) config(defaultStale time.Duration) (types.ThresholdConfig, error) {
	dir, err := types.ParseDirection(r.Direction)
	if err != nil {
		return types.ThresholdConfig{}, err
	}
	stale := defaultStale
	if r.StaleAfterMs.Valid {
		stale = time.Duration(r.StaleAfterMs.Int64) * time.Millisecond
	}
	return types.ThresholdConfig{
		Direction:  dir,
		StaleAfter: stale,
		Hysteresis: r.Hysteresis,
		Warning:    rowBound(r.WarningMin, r.WarningMax, r.WarningFormula, r.WarningClampMin, r.WarningClampMax),
		Critical:   rowBound(r.CriticalMin, r.CriticalMax, r.CriticalFormula, r.CriticalClampMin, r.CriticalClampMax),
	}, nil
}

// rowBound maps the bound columns; a row setting both forms fails validation.
func rowBound(lo, hi sql.NullFloat64, expr sql.NullString, clampLo, clampHi sql.NullFloat64) types.Bound {
	var b types.Bound
	if expr.Valid && expr.String != "" {
		b.Formula = &types.FormulaBound{
			Expression: expr.String,
			ClampMin:   nullFloat(clampLo),
			ClampMax:   nullFloat(clampHi),
		}
	}
	if lo.Valid || hi.Valid {
		b.Static = &types.StaticBound{Min: nullFloat(lo), Max: nullFloat(hi)}
	}
	return b
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return types.Float(n.Float64)
}

// SaveContext upserts one context value.
func SaveContext(ctx context.Context, q Querier, sensorType types.SensorType, instance int64, name string, value float64) error {
	if err := checkScope(sensorType, instance); err != nil {
		return err
	}
	if _, err := q.Exec(ctx, "upsert-sensor-context", string(sensorType), instance, name, value); err != nil {
		return fmt.Errorf("failed to save context %s: %w", name, err)
	}
	return nil
}

// SaveThreshold validates and upserts the configuration of one metric.
func SaveThreshold(ctx context.Context, q Querier, sensorType types.SensorType, instance int64, metric string, cfg types.ThresholdConfig) error {
	if err := checkScope(sensorType, instance); err != nil {
		return err
	}
	if err := ValidateThreshold(sensorType, metric, cfg); err != nil {
		return err
	}

	w := boundColumns(cfg.Warning)
	c := boundColumns(cfg.Critical)
	_, err := q.Exec(ctx, "upsert-threshold",
		string(sensorType), instance, metric, cfg.Direction.String(), cfg.StaleAfter.Milliseconds(), cfg.Hysteresis,
		w.min, w.max, w.formula, w.clampMin, w.clampMax,
		c.min, c.max, c.formula, c.clampMin, c.clampMax,
	)
	if err != nil {
		return fmt.Errorf("failed to save threshold %s.%s: %w", sensorType, metric, err)
	}
	return nil
}

type columns struct {
	min, max, clampMin, clampMax sql.NullFloat64
	formula                      sql.NullString
}

func boundColumns(b types.Bound) columns {
	var c columns
	switch {
	case b.Formula != nil:
		c.formula = sql.NullString{String: b.Formula.Expression, Valid: true}
		c.clampMin = toNull(b.Formula.ClampMin)
		c.clampMax = toNull(b.Formula.ClampMax)
	case b.Static != nil:
		c.min = toNull(b.Static.Min)
		c.max = toNull(b.Static.Max)
	}
	return c
}

func toNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
