package configstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * YAML threshold profiles.
 *
 * A profile lists sensors by type and optional instance (omitted = every
 * instance), each with context values and per-metric thresholds:
 *
 *   defaults:
 *     stale_after: 10s
 *   sensors:
 *     - type: battery
 *       context: {nominalVoltage: 12}
 *       thresholds:
 *         voltage:
 *           direction: below
 *           warning: {formula: "nominalVoltage * 1.0", clamp_min: 11}
 *           critical: {min: 11.5}
 *
 * Unknown keys are rejected so a misspelled bound does not silently vanish.
 */

type profileFile struct {
	Defaults struct {
		StaleAfter *duration `yaml:"stale_after"`
	} `yaml:"defaults"`
	Sensors []profileSensor `yaml:"sensors"`
}

type profileSensor struct {
	Type       string                      `yaml:"type"`
	Instance   *int64                      `yaml:"instance"`
	Context    map[string]float64          `yaml:"context"`
	Thresholds map[string]profileThreshold `yaml:"thresholds"`
}

type profileThreshold struct {
	Direction  string        `yaml:"direction"`
	StaleAfter *duration     `yaml:"stale_after"`
	Hysteresis float64       `yaml:"hysteresis"`
	Warning    *profileBound `yaml:"warning"`
	Critical   *profileBound `yaml:"critical"`
}

type profileBound struct {
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Formula  string   `yaml:"formula"`
	ClampMin *float64 `yaml:"clamp_min"`
	ClampMax *float64 `yaml:"clamp_max"`
}

// duration accepts Go duration strings ("30s", "2m").
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(v)
	return nil
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string, defaultStale time.Duration) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	s, err := ParseProfile(data, defaultStale)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseProfile decodes a YAML profile. Metrics without stale_after use the
// profile's defaults.stale_after, then defaultStale.
func ParseProfile(data []byte, defaultStale time.Duration) (*Static, error) {
	var pf profileFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if pf.Defaults.StaleAfter != nil {
		defaultStale = time.Duration(*pf.Defaults.StaleAfter)
	}

	s := NewStatic()
	for i, ps := range pf.Sensors {
		instance := AnyInstance
		if ps.Instance != nil {
			if *ps.Instance < 0 {
				return nil, fmt.Errorf("sensors[%d]: instance must not be negative", i)
			}
			instance = *ps.Instance
		}
		sensorType := types.SensorType(ps.Type)

		for name, v := range ps.Context {
			if err := s.SetContext(sensorType, instance, name, v); err != nil {
				return nil, fmt.Errorf("sensors[%d].context.%s: %w", i, name, err)
			}
		}
		for metric, pt := range ps.Thresholds {
			cfg, err := pt.config(defaultStale)
			if err != nil {
				return nil, fmt.Errorf("sensors[%d].thresholds.%s: %w", i, metric, err)
			}
			if err := s.SetThreshold(sensorType, instance, metric, cfg); err != nil {
				return nil, fmt.Errorf("sensors[%d]: %w", i, err)
			}
		}
	}
	return s, nil
}

func (pt profileThreshold) config(defaultStale time.Duration) (types.ThresholdConfig, error) {
	dir, err := types.ParseDirection(pt.Direction)
	if err != nil {
		return types.ThresholdConfig{}, err
	}
	stale := defaultStale
	if pt.StaleAfter != nil {
		stale = time.Duration(*pt.StaleAfter)
	}
	return types.ThresholdConfig{
		Direction:  dir,
		StaleAfter: stale,
		Hysteresis: pt.Hysteresis,
		Warning:    pt.Warning.bound(),
		Critical:   pt.Critical.bound(),
	}, nil
}

// bound keeps both forms when both are given so validation can reject it.
func (pb *profileBound) bound() types.Bound {
	var b types.Bound
	if pb == nil {
		return b
	}
	if pb.Formula != "" {
		b.Formula = &types.FormulaBound{
			Expression: pb.Formula,
			ClampMin:   pb.ClampMin,
			ClampMax:   pb.ClampMax,
		}
	}
	if pb.Min != nil || pb.Max != nil {
		b.Static = &types.StaticBound{Min: pb.Min, Max: pb.Max}
	}
	return b
}
