// internal/registry/registry.go
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/schema"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/sensor"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/thresholds"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

/*
 * Sensor registry.
 *
 * Sole owner of every sensor.Instance. All mutation goes through Dispatch,
 * Reconfigure and SweepStale, serialized by one mutex, so the processor,
 * resolver and alarm evaluator stay free of shared state.
 *
 * Ownership protocol (per instance field):
 *   1. Read:   processor calls FieldOwner and decides what to claim
 *   2. Decide: processor drops canonical fields it may not write
 *   3. Write:  Dispatch re-checks each claim under the lock and records it
 *
 * The re-check in step 3 makes the protocol a compare-and-set: two connections
 * racing on the same instance still honour priority.
 *
 * Claim rules: a write is allowed when the new priority is >= the owner's or
 * the owner's claim is older than ClaimTTL. ClaimTTL 0 never expires claims.
 *
 * Events are collected under the state lock and delivered after it is released,
 * under a separate delivery lock, so handlers observe mutation order and may
 * query the registry. Handlers must not call Dispatch.
 */

// ConfigSource supplies per-instance threshold configuration. Implementations
// hold their data in memory; the registry calls them under its lock.
type ConfigSource interface {
	Context(sensorType types.SensorType, instance uint32) types.ConfigContext
	Thresholds(sensorType types.SensorType, instance uint32) map[string]types.ThresholdConfig
}

// Options configures a Registry.
type Options struct {
	SeriesPolicy sensor.SeriesPolicy
	ClaimTTL     time.Duration
	Resolver     *thresholds.Resolver
	Config       ConfigSource
	Now          func() time.Time
}

type fieldKey struct {
	key   types.Key
	field string
}

// Claim records which source owns a canonical field.
type Claim struct {
	Source   string
	Priority int
	At       time.Time
}

// Registry owns all sensor instances. Safe for concurrent use.
type Registry struct {
	opts Options

	mu        sync.Mutex
	instances map[types.Key]*sensor.Instance
	owners    map[fieldKey]Claim
	config    ConfigSource

	deliverMu sync.Mutex
	subMu     sync.RWMutex
	subs      map[SubscriptionID]Handler
	nextSub   SubscriptionID
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	if opts.Resolver == nil {
		opts.Resolver = thresholds.NewResolver(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		opts:      opts,
		instances: make(map[types.Key]*sensor.Instance),
		owners:    make(map[fieldKey]Claim),
		config:    opts.Config,
		subs:      make(map[SubscriptionID]Handler),
	}
}

// Dispatch applies update to its instance, creating it on first sight.
// Returns the changed field names. A *types.ValidationError leaves the registry
// unchanged.
func (r *Registry) Dispatch(update types.SensorUpdate) ([]string, error) {
	if !schema.Known(update.SensorType) {
		return nil, &types.ValidationError{SensorType: update.SensorType, Err: types.ErrUnknownSensorType}
	}
	ts := update.Timestamp
	if ts.IsZero() {
		ts = r.opts.Now()
	}
	key := update.Key()

	r.mu.Lock()
	data, claimed := r.admit(key, update, ts)
	if len(data) == 0 {
		r.mu.Unlock()
		return nil, nil
	}

	// a new instance is configured before its first update and only kept
	// when that update validates
	inst, exists := r.instances[key]
	var configured []sensor.AlarmTransition
	if !exists {
		inst = sensor.NewInstance(key, r.opts.SeriesPolicy, ts)
		configured = r.configure(inst, ts)
	}

	changed, transitions, err := inst.Update(data, ts)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	var events []Event
	if !exists {
		r.instances[key] = inst
		events = append(events, newEvent(SensorCreated, key, ts))
		events = append(events, toEvents(key, ts, configured)...)
	}
	for _, field := range claimed {
		r.owners[fieldKey{key, field}] = Claim{Source: update.Source, Priority: update.Priority, At: ts}
	}
	if len(changed) > 0 {
		ev := newEvent(SensorUpdated, key, ts)
		ev.ChangedFields = changed
		events = append(events, ev)
	}
	events = append(events, toEvents(key, ts, transitions)...)

	r.deliver(events)
	return changed, nil
}

// admit filters update.Data by the claim table. Claimed fields whose owner has
// strictly higher priority and an unexpired claim are dropped. Returns the
// surviving data and the claimed fields that survived.
func (r *Registry) admit(key types.Key, update types.SensorUpdate, ts time.Time) (types.Fields, []string) {
	if len(update.Claims) == 0 {
		return update.Data, nil
	}

	data := make(types.Fields, len(update.Data))
	for name, v := range update.Data {
		data[name] = v
	}

	var claimed []string
	for _, field := range update.Claims {
		if _, ok := data[field]; !ok {
			continue
		}
		if owner, ok := r.owners[fieldKey{key, field}]; ok && !r.mayWrite(owner, update, ts) {
			delete(data, field)
			continue
		}
		claimed = append(claimed, field)
	}
	return data, claimed
}

func (r *Registry) mayWrite(owner Claim, update types.SensorUpdate, ts time.Time) bool {
	if update.Priority >= owner.Priority {
		return true
	}
	return r.opts.ClaimTTL > 0 && ts.Sub(owner.At) > r.opts.ClaimTTL
}

// FieldOwner returns the current claim on a canonical field. Expired claims are
// still reported; callers compare At against their own TTL when deciding.
func (r *Registry) FieldOwner(key types.Key, field string) (Claim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.owners[fieldKey{key, field}]
	return c, ok
}

// ClaimTTL returns the configured claim expiry.
func (r *Registry) ClaimTTL() time.Duration { return r.opts.ClaimTTL }

// GetOrCreate returns the instance snapshot, creating an empty instance when absent.
func (r *Registry) GetOrCreate(sensorType types.SensorType, instance uint32) (sensor.Snapshot, error) {
	if !schema.Known(sensorType) {
		return sensor.Snapshot{}, &types.ValidationError{SensorType: sensorType, Err: types.ErrUnknownSensorType}
	}
	key := types.Key{SensorType: sensorType, Instance: instance}
	now := r.opts.Now()

	r.mu.Lock()
	inst, ok := r.instances[key]
	var events []Event
	if !ok {
		inst = sensor.NewInstance(key, r.opts.SeriesPolicy, now)
		r.instances[key] = inst
		events = append(events, newEvent(SensorCreated, key, now))
		events = append(events, toEvents(key, now, r.configure(inst, now))...)
	}
	snap := inst.Snapshot()
	r.deliver(events)
	return snap, nil
}

// Get returns a snapshot of one instance.
func (r *Registry) Get(sensorType types.SensorType, instance uint32) (sensor.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[types.Key{SensorType: sensorType, Instance: instance}]
	if !ok {
		return sensor.Snapshot{}, false
	}
	return inst.Snapshot(), true
}

// History returns the stored samples of one Number field.
func (r *Registry) History(key types.Key, field string) []sensor.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[key]
	if !ok {
		return nil
	}
	return inst.History(field)
}

// Keys returns all instance keys sorted by type then instance.
func (r *Registry) Keys() []types.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedKeysLocked()
}

// Snapshots returns snapshots of every instance in Keys order.
func (r *Registry) Snapshots() []sensor.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.sortedKeysLocked()
	out := make([]sensor.Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.instances[k].Snapshot())
	}
	return out
}

// SetConfig installs thresholds and context for one instance, creating it when
// absent.
func (r *Registry) SetConfig(key types.Key, configs map[string]types.ThresholdConfig, ctx types.ConfigContext) error {
	if !schema.Known(key.SensorType) {
		return &types.ValidationError{SensorType: key.SensorType, Err: types.ErrUnknownSensorType}
	}
	now := r.opts.Now()

	r.mu.Lock()
	var events []Event
	inst, ok := r.instances[key]
	if !ok {
		inst = sensor.NewInstance(key, r.opts.SeriesPolicy, now)
		r.instances[key] = inst
		events = append(events, newEvent(SensorCreated, key, now))
	}
	transitions := inst.Configure(configs, ctx, r.opts.Resolver, now)
	events = append(events, toEvents(key, now, transitions)...)
	r.deliver(events)
	return nil
}

// Reconfigure replaces the configuration source and re-applies it to every
// instance. Thresholds re-resolve only where context or configs changed.
func (r *Registry) Reconfigure(src ConfigSource) {
	now := r.opts.Now()

	r.mu.Lock()
	r.config = src
	var events []Event
	for _, key := range r.sortedKeysLocked() {
		events = append(events, toEvents(key, now, r.configure(r.instances[key], now))...)
	}
	r.deliver(events)
}

// configure applies the current source to inst. Caller holds r.mu.
func (r *Registry) configure(inst *sensor.Instance, now time.Time) []sensor.AlarmTransition {
	if r.config == nil {
		return nil
	}
	key := inst.Key()
	return inst.Configure(
		r.config.Thresholds(key.SensorType, key.Instance),
		r.config.Context(key.SensorType, key.Instance),
		r.opts.Resolver,
		now,
	)
}

// SweepStale re-evaluates alarms at now so silent sensors go Stale.
func (r *Registry) SweepStale(now time.Time) int {
	r.mu.Lock()
	var events []Event
	for _, key := range r.sortedKeysLocked() {
		events = append(events, toEvents(key, now, r.instances[key].SweepStale(now))...)
	}
	r.deliver(events)
	return len(events)
}

// Reset drops every instance, claim and subscriber. Intended for tests and
// session restarts; the config source is kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.instances = make(map[types.Key]*sensor.Instance)
	r.owners = make(map[fieldKey]Claim)
	r.mu.Unlock()

	r.subMu.Lock()
	r.subs = make(map[SubscriptionID]Handler)
	r.subMu.Unlock()
}

// Subscribe registers h for all future events.
func (r *Registry) Subscribe(h Handler) SubscriptionID {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextSub++
	r.subs[r.nextSub] = h
	return r.nextSub
}

// Unsubscribe removes a subscription. Returns false when id is unknown.
func (r *Registry) Unsubscribe(id SubscriptionID) bool {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// deliver releases r.mu and hands events to subscribers in order. Caller holds
// r.mu; deliverMu is taken before r.mu is released so concurrent mutations
// deliver in the order they were applied.
func (r *Registry) deliver(events []Event) {
	if len(events) == 0 {
		r.mu.Unlock()
		return
	}
	r.deliverMu.Lock()
	r.mu.Unlock()
	defer r.deliverMu.Unlock()

	r.subMu.RLock()
	ids := make([]SubscriptionID, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = r.subs[id]
	}
	r.subMu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (r *Registry) sortedKeysLocked() []types.Key {
	keys := make([]types.Key, 0, len(r.instances))
	for k := range r.instances {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].SensorType != keys[j].SensorType {
			return keys[i].SensorType < keys[j].SensorType
		}
		return keys[i].Instance < keys[j].Instance
	})
	return keys
}

func newEvent(kind EventKind, key types.Key, ts time.Time) Event {
	return Event{
		ID:         types.NewEventID(),
		Kind:       kind,
		SensorType: key.SensorType,
		Instance:   key.Instance,
		Time:       ts,
	}
}

func toEvents(key types.Key, ts time.Time, transitions []sensor.AlarmTransition) []Event {
	out := make([]Event, 0, len(transitions))
	for _, tr := range transitions {
		ev := newEvent(AlarmStateChanged, key, ts)
		ev.Field = tr.Field
		ev.From = tr.From
		ev.To = tr.To
		out = append(out, ev)
	}
	return out
}
