// internal/sensor/series.go
package sensor

import (
	"math"
	"time"
)

/*
 * Bounded metric history.
 *
 * Series stores (value, timestamp) samples for one Number field using a
 * grow-then-prune policy:
 *   1. Start at InitialCapacity
 *   2. When full and below MaxCapacity, double (capped at MaxCapacity)
 *   3. When full at MaxCapacity, drop the oldest half
 *   4. With a Window, samples older than newest - Window are dropped on append
 *
 * Len never exceeds MaxCapacity. Pruning by half keeps append amortized O(1)
 * while the buffer still holds a useful recent history after each prune.
 *
 * Statistics are computed on read and exclude NaN samples.
 */

// Sample is one stored reading.
type Sample struct {
	Value float64
	Time  time.Time
}

// SeriesPolicy bounds a Series.
type SeriesPolicy struct {
	InitialCapacity int
	MaxCapacity     int
	Window          time.Duration // 0 = no time window
}

// DefaultSeriesPolicy is used when a policy field is zero.
var DefaultSeriesPolicy = SeriesPolicy{
	InitialCapacity: 32,
	MaxCapacity:     2048,
}

func (p SeriesPolicy) normalized() SeriesPolicy {
	if p.MaxCapacity <= 0 {
		p.MaxCapacity = DefaultSeriesPolicy.MaxCapacity
	}
	if p.MaxCapacity < 2 {
		p.MaxCapacity = 2
	}
	if p.InitialCapacity <= 0 {
		p.InitialCapacity = DefaultSeriesPolicy.InitialCapacity
	}
	if p.InitialCapacity > p.MaxCapacity {
		p.InitialCapacity = p.MaxCapacity
	}
	return p
}

// Series is a bounded history buffer. Not safe for concurrent use; the registry
// serializes access.
type Series struct {
	policy  SeriesPolicy
	samples []Sample
}

// NewSeries creates an empty Series.
func NewSeries(policy SeriesPolicy) *Series {
	p := policy.normalized()
	return &Series{
		policy:  p,
		samples: make([]Sample, 0, p.InitialCapacity),
	}
}

// Append stores a sample, growing or pruning as needed.
func (s *Series) Append(v float64, ts time.Time) {
	if s.policy.Window > 0 {
		s.pruneBefore(ts.Add(-s.policy.Window))
	}

	if len(s.samples) == cap(s.samples) {
		if cap(s.samples) < s.policy.MaxCapacity {
			s.grow()
		} else {
			s.pruneOldestHalf()
		}
	}
	s.samples = append(s.samples, Sample{Value: v, Time: ts})
}

func (s *Series) grow() {
	newCap := cap(s.samples) * 2
	if newCap > s.policy.MaxCapacity {
		newCap = s.policy.MaxCapacity
	}
	if newCap <= cap(s.samples) {
		newCap = cap(s.samples) + 1
	}
	grown := make([]Sample, len(s.samples), newCap)
	copy(grown, s.samples)
	s.samples = grown
}

func (s *Series) pruneOldestHalf() {
	drop := len(s.samples) / 2
	if drop == 0 {
		drop = 1
	}
	n := copy(s.samples, s.samples[drop:])
	clear(s.samples[n:])
	s.samples = s.samples[:n]
}

// pruneBefore drops samples with Time before cutoff. Samples are appended in
// arrival order, so expired samples form a prefix.
func (s *Series) pruneBefore(cutoff time.Time) {
	i := 0
	for i < len(s.samples) && s.samples[i].Time.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(s.samples, s.samples[i:])
	clear(s.samples[n:])
	s.samples = s.samples[:n]
}

// Len returns the number of stored samples.
func (s *Series) Len() int { return len(s.samples) }

// Cap returns the current buffer capacity.
func (s *Series) Cap() int { return cap(s.samples) }

// Latest returns the newest sample.
func (s *Series) Latest() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Samples returns a copy of the stored samples, oldest first.
func (s *Series) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Stats summarizes a Series. Min, Max and Avg are NaN when Count is 0.
type Stats struct {
	Min   float64
	Max   float64
	Avg   float64
	Count int // non-NaN samples
}

// Stats computes min/max/avg over stored samples, excluding NaN.
func (s *Series) Stats() Stats {
	st := Stats{Min: math.NaN(), Max: math.NaN(), Avg: math.NaN()}
	var sum float64
	for _, sm := range s.samples {
		if math.IsNaN(sm.Value) {
			continue
		}
		if st.Count == 0 || sm.Value < st.Min {
			st.Min = sm.Value
		}
		if st.Count == 0 || sm.Value > st.Max {
			st.Max = sm.Value
		}
		sum += sm.Value
		st.Count++
	}
	if st.Count > 0 {
		// rounding in sum can push the mean a ulp outside [Min, Max]
		st.Avg = math.Min(math.Max(sum/float64(st.Count), st.Min), st.Max)
	}
	return st
}
