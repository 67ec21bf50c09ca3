// internal/pipeline/runner.go
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea0183"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/nmea2000"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/processor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Per-connection consumer.
 *
 * Input adapters push frames into a bounded drop-oldest queue; Run drains it
 * on one goroutine so every message passes decode -> process -> dispatch in
 * arrival order before the next one starts:
 *
 *   line ─▶ nmea0183 ─┬─▶ processor ─▶ registry.Dispatch
 *                     │ PCDIN/MXPGN
 *   frame ────────────┴─▶ nmea2000 ─▶ processor ─▶ registry.Dispatch
 *
 * Errors never stop the loop. Parse, process and validation failures are
 * counted; decode failures are logged at debug through a rate limiter so a
 * noisy bus cannot flood the log.
 */

// DefaultStaleCheckInterval is the staleness sweep period when unset.
const DefaultStaleCheckInterval = time.Second

// drainBatch bounds how many frames one wake-up processes before the loop
// re-checks the ticker and context.
const drainBatch = 64

// Options configures a Runner.
type Options struct {
	QueueSize            int
	StaleCheckInterval   time.Duration // <0 disables the sweep
	AllowMissingChecksum bool
	Logger               *slog.Logger
	Metrics              *Metrics
	Now                  func() time.Time
}

// Runner owns the input queue of one connection.
type Runner struct {
	reg     *registry.Registry
	proc    *processor.Processor
	ascii   *nmea0183.Decoder
	binary  *nmea2000.Decoder
	queue   *Queue
	logger  *slog.Logger
	metrics *Metrics
	limiter *rate.Limiter
	now     func() time.Time
	sweep   time.Duration
	sub     registry.SubscriptionID
}

// NewRunner wires a runner to reg and proc.
func NewRunner(reg *registry.Registry, proc *processor.Processor, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StaleCheckInterval == 0 {
		opts.StaleCheckInterval = DefaultStaleCheckInterval
	}

	r := &Runner{
		reg:     reg,
		proc:    proc,
		ascii:   nmea0183.NewDecoder(nmea0183.Options{AllowMissingChecksum: opts.AllowMissingChecksum}),
		binary:  nmea2000.NewDecoder(),
		queue:   NewQueue(opts.QueueSize),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		now:     opts.Now,
		sweep:   opts.StaleCheckInterval,
	}
	r.sub = reg.Subscribe(func(ev registry.Event) {
		if ev.Kind == registry.AlarmStateChanged {
			r.metrics.alarms.WithLabelValues(ev.To.String()).Inc()
		}
	})
	return r
}

// Close detaches the runner from the registry.
func (r *Runner) Close() {
	r.reg.Unsubscribe(r.sub)
}

// SubmitLine queues one ASCII line. Never blocks; returns false when an older
// frame was dropped to make room.
func (r *Runner) SubmitLine(line string) bool {
	return r.submit(Frame{Line: line, Received: r.now()})
}

// SubmitFrame queues one NMEA 2000 payload. Never blocks.
func (r *Runner) SubmitFrame(pgn uint32, payload []byte) bool {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	return r.submit(Frame{Binary: true, PGN: pgn, Payload: buf, Received: r.now()})
}

// SubmitLineWait queues one ASCII line, waiting for room instead of dropping.
// Used for replayed input, where every line must be processed.
func (r *Runner) SubmitLineWait(ctx context.Context, line string) error {
	if err := r.queue.PushWait(ctx, Frame{Line: line, Received: r.now()}); err != nil {
		return err
	}
	r.metrics.queueLength.Set(float64(r.queue.Len()))
	return nil
}

func (r *Runner) submit(f Frame) bool {
	dropped := r.queue.Push(f)
	if dropped {
		r.metrics.dropped.Inc()
	}
	r.metrics.queueLength.Set(float64(r.queue.Len()))
	return !dropped
}

// Queue exposes the input queue for inspection.
func (r *Runner) Queue() *Queue { return r.queue }

// Run drains the queue until ctx is done, then processes what is left and
// returns nil.
func (r *Runner) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if r.sweep > 0 {
		ticker := time.NewTicker(r.sweep)
		defer ticker.Stop()
		tick = ticker.C
	}

	r.logger.Info("pipeline started", "queue_size", r.queue.Cap(), "stale_check_interval", r.sweep)
	for {
		select {
		case <-ctx.Done():
			r.drain(0)
			r.logger.Info("pipeline stopped", "dropped", r.queue.Dropped())
			return nil
		case <-tick:
			r.SweepStale()
		case <-r.queue.Ready():
			if r.drain(drainBatch) {
				// more left; re-arm so the next iteration continues
				signal(r.queue.ready)
			}
		}
	}
}

// drain processes up to max frames (all when max <= 0). Returns true when
// frames remain.
func (r *Runner) drain(max int) bool {
	for _, f := range r.queue.PopBatch(max) {
		r.Handle(f)
	}
	n := r.queue.Len()
	r.metrics.queueLength.Set(float64(n))
	return n > 0
}

// SweepStale re-evaluates every alarm at the current time.
func (r *Runner) SweepStale() int {
	return r.reg.SweepStale(r.now())
}

// Handle runs one frame through decode, process and dispatch synchronously.
func (r *Runner) Handle(f Frame) {
	format := "nmea0183"
	if f.Binary {
		format = "nmea2000"
	}
	r.metrics.received.WithLabelValues(format).Inc()
	if f.Received.IsZero() {
		f.Received = r.now()
	}

	msg, err := r.decode(f)
	if err != nil {
		r.parseFailed(format, f, err)
		return
	}

	updates, err := r.proc.Process(msg, f.Received)
	if err != nil {
		r.metrics.processErrors.WithLabelValues(reason(err)).Inc()
		if r.limiter.Allow() {
			r.logger.Debug("message not processed", "type", msg.Type, "error", err)
		}
		return
	}

	for _, u := range updates {
		if _, err := r.reg.Dispatch(u); err != nil {
			var verr *types.ValidationError
			if errors.As(err, &verr) {
				r.metrics.validationErrs.Inc()
				r.logger.Warn("sensor update rejected",
					"sensor", u.Key().String(), "source", u.Source, "field", verr.Field, "error", err)
				continue
			}
			r.logger.Error("dispatch failed", "sensor", u.Key().String(), "error", err)
			continue
		}
		r.metrics.updates.Inc()
	}
	r.metrics.latency.Observe(r.now().Sub(f.Received).Seconds())
}

// decode turns a frame into a message.
func (r *Runner) decode(f Frame) (types.DecodedMessage, error) {
	if f.Binary {
		return r.binary.Decode(f.PGN, f.Payload)
	}
	return DecodeLine(r.ascii, r.binary, f.Line)
}

// DecodeLine decodes one ASCII line. PGN wrapper sentences are unpacked and
// decoded as NMEA 2000; the wrapper's bus source address is kept as
// sourceAddress on the decoded message.
func DecodeLine(ascii *nmea0183.Decoder, binary *nmea2000.Decoder, line string) (types.DecodedMessage, error) {
	msg, err := ascii.Decode(line)
	if err != nil || !nmea0183.IsWrapper(msg) {
		return msg, err
	}
	pgn, source, payload, err := nmea0183.Payload(msg)
	if err != nil {
		return types.DecodedMessage{}, err
	}
	decoded, err := binary.Decode(pgn, payload)
	if err != nil {
		return types.DecodedMessage{}, err
	}
	if decoded.Fields == nil {
		decoded.Fields = types.Fields{}
	}
	decoded.Fields["sourceAddress"] = types.Number(float64(source))
	return decoded, nil
}

func (r *Runner) parseFailed(format string, f Frame, err error) {
	r.metrics.parseErrors.WithLabelValues(format, reason(err)).Inc()
	if !r.limiter.Allow() {
		return
	}
	if f.Binary {
		r.logger.Debug("decode failed", "format", format, "pgn", f.PGN, "bytes", len(f.Payload), "error", err)
		return
	}
	r.logger.Debug("decode failed", "format", format, "line", f.Line, "error", err)
}
