// internal/pipeline/metrics.go
package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	received       *prometheus.CounterVec // format
	parseErrors    *prometheus.CounterVec // format, reason
	processErrors  *prometheus.CounterVec // reason
	validationErrs prometheus.Counter
	updates        prometheus.Counter
	dropped        prometheus.Counter
	queueLength    prometheus.Gauge
	alarms         *prometheus.CounterVec // state
	latency        prometheus.Histogram
}

// NewMetrics creates the pipeline collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to read values directly.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "messages_received_total",
			Help:      "Input lines and frames taken off the queue.",
		}, []string{"format"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "parse_errors_total",
			Help:      "Messages dropped by a decoder.",
		}, []string{"format", "reason"}),
		processErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "process_errors_total",
			Help:      "Decoded messages the processor could not map.",
		}, []string{"reason"}),
		validationErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "validation_errors_total",
			Help:      "Sensor updates rejected by the field schema.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "sensor_updates_total",
			Help:      "Sensor updates applied to the registry.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "queue_dropped_total",
			Help:      "Frames overwritten because the input queue was full.",
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "queue_length",
			Help:      "Frames waiting in the input queue.",
		}),
		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "alarm",
			Name:      "transitions_total",
			Help:      "Alarm state changes by target state.",
		}, []string{"state"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bmad",
			Subsystem: "pipeline",
			Name:      "process_duration_seconds",
			Help:      "Time from receipt to registry dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.received, m.parseErrors, m.processErrors, m.validationErrs,
			m.updates, m.dropped, m.queueLength, m.alarms, m.latency,
		)
	}
	return m
}

// reason maps a pipeline error to a bounded label value.
func reason(err error) string {
	switch {
	case errors.Is(err, types.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, types.ErrMissingChecksum):
		return "missing_checksum"
	case errors.Is(err, types.ErrSentenceTooLong):
		return "too_long"
	case errors.Is(err, types.ErrShortPayload):
		return "short_payload"
	case errors.Is(err, types.ErrPayloadTooLarge):
		return "too_large"
	case errors.Is(err, types.ErrUnsupportedMessage):
		return "unsupported"
	case errors.Is(err, types.ErrMalformedSentence):
		return "malformed"
	default:
		return "other"
	}
}
