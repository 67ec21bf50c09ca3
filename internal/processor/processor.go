// internal/processor/processor.go
package processor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Sensor processor.
 *
 * Maps one decoded message to zero or more SensorUpdates:
 *
 *   1. Resolve the instance: explicit "instance" field > talker table > 0
 *   2. Run the per-type handler, producing drafts (target key, canonical
 *      fields with a source priority, plain fields)
 *   3. Read/decide: ask the owner lookup who holds each canonical field and
 *      drop the ones a higher-priority, unexpired source still owns
 *
 * The write step is the registry's: Dispatch re-checks the surviving claims
 * under its lock and records them.
 *
 * The processor keeps no per-message state; one value can serve several
 * connections.
 */

// OwnerLookup exposes the registry's claim table for the read step.
type OwnerLookup interface {
	FieldOwner(key types.Key, field string) (registry.Claim, bool)
	ClaimTTL() time.Duration
}

// Options configures a Processor.
type Options struct {
	// Talkers overrides or extends DefaultTalkers.
	Talkers map[string]uint32

	// Owners is consulted before claiming canonical fields. Nil claims everything.
	Owners OwnerLookup

	Now func() time.Time
}

// Processor turns decoded messages into sensor updates.
type Processor struct {
	talkers map[string]uint32
	owners  OwnerLookup
	now     func() time.Time
}

// New creates a Processor.
func New(opts Options) *Processor {
	talkers := make(map[string]uint32, len(DefaultTalkers)+len(opts.Talkers))
	for k, v := range DefaultTalkers {
		talkers[k] = v
	}
	for k, v := range opts.Talkers {
		talkers[k] = v
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Processor{talkers: talkers, owners: opts.Owners, now: opts.Now}
}

// Supports reports whether msgType has a handler.
func Supports(msgType string) bool {
	_, ok := handlers[msgType]
	return ok
}

// MessageTypes returns every handled message type, sorted.
func MessageTypes() []string {
	out := make([]string, 0, len(handlers))
	for t := range handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Process maps msg to sensor updates stamped with ts (zero means now).
// Unsupported or unmappable messages return a *types.ProcessError.
func (p *Processor) Process(msg types.DecodedMessage, ts time.Time) ([]types.SensorUpdate, error) {
	h, ok := handlers[msg.Type]
	if !ok {
		return nil, processError(msg, types.ErrUnsupportedMessage)
	}
	if ts.IsZero() {
		ts = p.now()
	}

	inst, err := p.instance(msg)
	if err != nil {
		return nil, processError(msg, err)
	}

	drafts, err := h(msg, inst)
	if err != nil {
		return nil, processError(msg, err)
	}

	var out []types.SensorUpdate
	for _, d := range mergeDrafts(drafts) {
		if u, ok := p.decide(d, msg.Type, ts); ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// TalkerInstance returns the configured instance for a talker ID.
func (p *Processor) TalkerInstance(talker string) (uint32, bool) {
	n, ok := p.talkers[talker]
	return n, ok
}

func (p *Processor) instance(msg types.DecodedMessage) (uint32, error) {
	if v, ok := msg.Fields["instance"].Num(); ok && !math.IsNaN(v) {
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: instance %v", types.ErrMalformedSentence, v)
		}
		return uint32(v), nil
	}
	if n, ok := p.talkers[msg.Talker]; ok {
		return n, nil
	}
	return 0, nil
}

// decide drops canonical fields the source may not write and builds the update.
func (p *Processor) decide(d *draft, source string, ts time.Time) (types.SensorUpdate, bool) {
	data := make(types.Fields, len(d.data)+len(d.claims))
	for name, v := range d.data {
		data[name] = v
	}
	var claims []string
	for name, v := range d.claims {
		if !p.mayClaim(d.key, name, source, d.priority, ts) {
			continue
		}
		data[name] = v
		claims = append(claims, name)
	}
	if len(data) == 0 {
		return types.SensorUpdate{}, false
	}
	sort.Strings(claims)

	return types.SensorUpdate{
		SensorType: d.key.SensorType,
		Instance:   d.key.Instance,
		Data:       data,
		Timestamp:  ts,
		Source:     source,
		Priority:   d.priority,
		Claims:     claims,
	}, true
}

func (p *Processor) mayClaim(key types.Key, field, source string, priority int, ts time.Time) bool {
	if p.owners == nil {
		return true
	}
	owner, ok := p.owners.FieldOwner(key, field)
	if !ok || priority >= owner.Priority {
		return true
	}
	ttl := p.owners.ClaimTTL()
	return ttl > 0 && ts.Sub(owner.At) > ttl
}

func processError(msg types.DecodedMessage, err error) error {
	return &types.ProcessError{MessageType: msg.Type, FieldCount: len(msg.Fields), Err: err}
}
