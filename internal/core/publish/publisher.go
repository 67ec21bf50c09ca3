// Package publish forwards registry events to external consumers.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
)

/*
 * Event fan-out.
 *
 *   registry.Dispatch ─▶ Fanout.Handle ─┬─▶ [queue] ─▶ redis PUBLISH
 *        (sync)          (encode once)  ├─▶ [queue] ─▶ NATS publish
 *                                       ├─▶ [queue] ─▶ MQTT publish
 *                                       └─▶ [queue] ─▶ websocket broadcast
 *
 * Handle runs inside registry delivery and never blocks: each sink has its
 * own bounded queue and a full queue drops the event and counts it. One
 * goroutine per sink drains its queue in order.
 */

// Sink delivers encoded events to one external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// DefaultBuffer is the per-sink queue length when unset.
const DefaultBuffer = 256

// Options configures a Fanout.
type Options struct {
	Buffer  int
	Logger  *slog.Logger
	Metrics *Metrics
}

type lane struct {
	sink  Sink
	queue chan []byte
}

// Fanout feeds registry events to every sink.
type Fanout struct {
	lanes   []lane
	logger  *slog.Logger
	metrics *Metrics
}

// NewFanout creates one bounded queue per sink.
func NewFanout(sinks []Sink, opts Options) *Fanout {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	f := &Fanout{logger: opts.Logger, metrics: opts.Metrics}
	for _, s := range sinks {
		f.lanes = append(f.lanes, lane{sink: s, queue: make(chan []byte, opts.Buffer)})
	}
	return f
}

// Attach subscribes the fanout to reg and returns the subscription for
// Unsubscribe.
func (f *Fanout) Attach(reg *registry.Registry) registry.SubscriptionID {
	return reg.Subscribe(f.Handle)
}

// Handle encodes ev once and offers it to every sink without blocking.
func (f *Fanout) Handle(ev registry.Event) {
	if len(f.lanes) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		f.logger.Error("failed to encode event", "kind", ev.Kind, "error", err)
		return
	}
	for _, l := range f.lanes {
		select {
		case l.queue <- payload:
		default:
			f.metrics.dropped.WithLabelValues(l.sink.Name()).Inc()
		}
	}
}

// Run drains every sink queue until ctx is done, then closes the sinks.
func (f *Fanout) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, l := range f.lanes {
		wg.Add(1)
		go func(l lane) {
			defer wg.Done()
			f.drain(ctx, l)
		}(l)
	}
	wg.Wait()

	for _, l := range f.lanes {
		if err := l.sink.Close(); err != nil {
			f.logger.Warn("failed to close sink", "sink", l.sink.Name(), "error", err)
		}
	}
	return nil
}

func (f *Fanout) drain(ctx context.Context, l lane) {
	name := l.sink.Name()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-l.queue:
			if err := l.sink.Publish(ctx, payload); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.metrics.errors.WithLabelValues(name).Inc()
				f.logger.Warn("publish failed", "sink", name, "error", err)
				continue
			}
			f.metrics.published.WithLabelValues(name).Inc()
		}
	}
}

// Metrics holds the publisher collectors.
type Metrics struct {
	published *prometheus.CounterVec // sink
	errors    *prometheus.CounterVec // sink
	dropped   *prometheus.CounterVec // sink
}

// NewMetrics creates the publisher collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "publish",
			Name:      "events_total",
			Help:      "Events delivered to a sink.",
		}, []string{"sink"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "Events a sink failed to deliver.",
		}, []string{"sink"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bmad",
			Subsystem: "publish",
			Name:      "dropped_total",
			Help:      "Events discarded because a sink queue was full.",
		}, []string{"sink"}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.errors, m.dropped)
	}
	return m
}
