// Package configstore supplies per-instance alarm configuration to the registry.
//
// Sources (a SQL database or a YAML profile) are loaded once into a Static
// provider, which answers lookups from memory under the registry lock.
package configstore

import (
	"fmt"
	"sync"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/formula"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/schema"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Provider answers configuration lookups for one sensor instance.
// *Static implements it; registry.ConfigSource has the same method set.
type Provider interface {
	Context(sensorType types.SensorType, instance uint32) types.ConfigContext
	Thresholds(sensorType types.SensorType, instance uint32) map[string]types.ThresholdConfig
}

// AnyInstance marks a row that applies to every instance of a sensor type.
// Instance-specific rows override it per metric and per context name.
const AnyInstance int64 = -1

type scope struct {
	sensorType types.SensorType
	instance   int64
}

// Static is an in-memory Provider.
type Static struct {
	mu         sync.RWMutex
	contexts   map[scope]types.ConfigContext
	thresholds map[scope]map[string]types.ThresholdConfig
}

// NewStatic returns an empty provider.
func NewStatic() *Static {
	return &Static{
		contexts:   make(map[scope]types.ConfigContext),
		thresholds: make(map[scope]map[string]types.ThresholdConfig),
	}
}

// SetContext sets one named context value.
func (s *Static) SetContext(sensorType types.SensorType, instance int64, name string, value float64) error {
	if err := checkScope(sensorType, instance); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("context name must not be empty")
	}
	k := scope{sensorType, instance}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contexts[k] == nil {
		s.contexts[k] = make(types.ConfigContext)
	}
	s.contexts[k][name] = value
	return nil
}

// SetThreshold sets the alarm configuration of one metric after validating it.
func (s *Static) SetThreshold(sensorType types.SensorType, instance int64, metric string, cfg types.ThresholdConfig) error {
	if err := checkScope(sensorType, instance); err != nil {
		return err
	}
	if err := ValidateThreshold(sensorType, metric, cfg); err != nil {
		return err
	}
	k := scope{sensorType, instance}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thresholds[k] == nil {
		s.thresholds[k] = make(map[string]types.ThresholdConfig)
	}
	s.thresholds[k][metric] = cfg
	return nil
}

// Context returns the merged context for an instance: AnyInstance values
// overlaid with the instance's own.
func (s *Static) Context(sensorType types.SensorType, instance uint32) types.ConfigContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(types.ConfigContext)
	for k, v := range s.contexts[scope{sensorType, AnyInstance}] {
		out[k] = v
	}
	for k, v := range s.contexts[scope{sensorType, int64(instance)}] {
		out[k] = v
	}
	return out
}

// Thresholds returns the merged per-metric configuration for an instance.
func (s *Static) Thresholds(sensorType types.SensorType, instance uint32) map[string]types.ThresholdConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.ThresholdConfig)
	for k, v := range s.thresholds[scope{sensorType, AnyInstance}] {
		out[k] = v
	}
	for k, v := range s.thresholds[scope{sensorType, int64(instance)}] {
		out[k] = v
	}
	return out
}

// Len returns the number of configured metrics across all scopes.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.thresholds {
		n += len(m)
	}
	return n
}

func checkScope(sensorType types.SensorType, instance int64) error {
	if !schema.Known(sensorType) {
		return fmt.Errorf("%w: %q", types.ErrUnknownSensorType, sensorType)
	}
	if instance < AnyInstance || instance > int64(^uint32(0)) {
		return fmt.Errorf("instance %d out of range", instance)
	}
	return nil
}

// ValidateThreshold rejects configuration the evaluator could never apply:
// non-Number metrics, bounds that set both static and formula forms, and
// formulas that fail to compile.
func ValidateThreshold(sensorType types.SensorType, metric string, cfg types.ThresholdConfig) error {
	field, ok := schema.Lookup(sensorType, metric)
	if !ok {
		return fmt.Errorf("%s.%s: %w", sensorType, metric, types.ErrUnknownField)
	}
	if !field.Alarmable() {
		return fmt.Errorf("%s.%s: thresholds require a number field", sensorType, metric)
	}
	if cfg.StaleAfter < 0 {
		return fmt.Errorf("%s.%s: stale_after must not be negative", sensorType, metric)
	}
	if cfg.Hysteresis < 0 {
		return fmt.Errorf("%s.%s: hysteresis must not be negative", sensorType, metric)
	}
	for _, b := range []struct {
		name  string
		bound types.Bound
	}{{"warning", cfg.Warning}, {"critical", cfg.Critical}} {
		if b.bound.Static != nil && b.bound.Formula != nil {
			return fmt.Errorf("%s.%s: %s bound sets both static and formula", sensorType, metric, b.name)
		}
		if b.bound.Formula != nil {
			if _, err := formula.Compile(b.bound.Formula.Expression); err != nil {
				return fmt.Errorf("%s.%s: %s formula: %w", sensorType, metric, b.name, err)
			}
		}
	}
	return nil
}
