// internal/registry/registry_test.go
package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type staticSource struct {
	ctx  types.ConfigContext
	cfgs map[string]types.ThresholdConfig
}

func (s staticSource) Context(types.SensorType, uint32) types.ConfigContext { return s.ctx }

func (s staticSource) Thresholds(types.SensorType, uint32) map[string]types.ThresholdConfig {
	return s.cfgs
}

func depthUpdate(source string, priority int, depth float64, ts time.Time) types.SensorUpdate {
	return types.SensorUpdate{
		SensorType: types.SensorDepth,
		Data:       types.Fields{"depth": types.Number(depth)},
		Timestamp:  ts,
		Source:     source,
		Priority:   priority,
		Claims:     []string{"depth"},
	}
}

func TestDispatch_CreatesOnceAndEmitsUpdates(t *testing.T) {
	r := New(Options{})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	changed, err := r.Dispatch(depthUpdate("DPT", 3, 4.2, t0))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, changed)

	changed, err = r.Dispatch(depthUpdate("DPT", 3, 4.2, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Empty(t, changed)

	_, err = r.Dispatch(depthUpdate("DPT", 3, 4.5, t0.Add(2*time.Second)))
	require.NoError(t, err)

	assert.Equal(t, []EventKind{SensorCreated, SensorUpdated, SensorUpdated}, rec.kinds())
	assert.Equal(t, []string{"depth"}, rec.events[2].ChangedFields)
	assert.NotEmpty(t, rec.events[0].ID)
}

func TestDispatch_PriorityCompareAndSet(t *testing.T) {
	r := New(Options{ClaimTTL: 10 * time.Second})
	key := types.Key{SensorType: types.SensorDepth}

	_, err := r.Dispatch(depthUpdate("DBT", 2, 8.2, t0))
	require.NoError(t, err)
	_, err = r.Dispatch(depthUpdate("DPT", 3, 10.0, t0.Add(time.Second)))
	require.NoError(t, err)

	lower := depthUpdate("DBT", 2, 9.0, t0.Add(2*time.Second))
	lower.Data["depthBelowTransducerDBT"] = types.Number(9.0)
	changed, err := r.Dispatch(lower)
	require.NoError(t, err)
	assert.Equal(t, []string{"depthBelowTransducerDBT"}, changed)

	snap, ok := r.Get(types.SensorDepth, 0)
	require.True(t, ok)
	assert.True(t, snap.Values["depth"].Equal(types.Number(10.0)), "depth = %v, want 10", snap.Values["depth"])
	assert.True(t, snap.Values["depthBelowTransducerDBT"].Equal(types.Number(9.0)))

	owner, ok := r.FieldOwner(key, "depth")
	require.True(t, ok)
	assert.Equal(t, "DPT", owner.Source)
	assert.Equal(t, 3, owner.Priority)
}

func TestDispatch_SameSourceLowerPriorityBlocked(t *testing.T) {
	r := New(Options{})
	key := types.Key{SensorType: types.SensorDepth}

	_, err := r.Dispatch(depthUpdate("PGN128267", 3, 10.0, t0))
	require.NoError(t, err)

	changed, err := r.Dispatch(depthUpdate("PGN128267", 1, 9.0, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Empty(t, changed)

	snap, _ := r.Get(types.SensorDepth, 0)
	assert.True(t, snap.Values["depth"].Equal(types.Number(10.0)), "depth = %v, want 10", snap.Values["depth"])
	owner, _ := r.FieldOwner(key, "depth")
	assert.Equal(t, 3, owner.Priority)
	assert.Equal(t, t0, owner.At)

	changed, err = r.Dispatch(depthUpdate("PGN128267", 3, 10.5, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, changed)
}

func TestDispatch_ClaimExpiry(t *testing.T) {
	r := New(Options{ClaimTTL: 5 * time.Second})

	_, err := r.Dispatch(depthUpdate("DPT", 3, 10.0, t0))
	require.NoError(t, err)

	changed, err := r.Dispatch(depthUpdate("DBT", 2, 9.0, t0.Add(5*time.Second)))
	require.NoError(t, err)
	assert.Empty(t, changed, "claim still valid at exactly TTL")

	changed, err = r.Dispatch(depthUpdate("DBT", 2, 9.0, t0.Add(6*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, changed)

	owner, _ := r.FieldOwner(types.Key{SensorType: types.SensorDepth}, "depth")
	assert.Equal(t, "DBT", owner.Source)
}

func TestDispatch_ClaimNeverExpiresWithZeroTTL(t *testing.T) {
	r := New(Options{})

	_, err := r.Dispatch(depthUpdate("DPT", 3, 10.0, t0))
	require.NoError(t, err)
	changed, err := r.Dispatch(depthUpdate("DBT", 2, 9.0, t0.Add(time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestDispatch_ValidationErrorLeavesRegistryUnchanged(t *testing.T) {
	r := New(Options{})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	_, err := r.Dispatch(types.SensorUpdate{
		SensorType: types.SensorWind,
		Data:       types.Fields{"speed": types.Text("fast")},
		Timestamp:  t0,
	})
	var verr *types.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ErrorIs(t, err, types.ErrTypeMismatch)

	_, ok := r.Get(types.SensorWind, 0)
	assert.False(t, ok)
	assert.Empty(t, rec.kinds())
	assert.Empty(t, r.Keys())
}

func TestDispatch_UnknownSensorType(t *testing.T) {
	r := New(Options{})
	_, err := r.Dispatch(types.SensorUpdate{SensorType: "radar", Data: types.Fields{"range": types.Number(1)}})
	assert.ErrorIs(t, err, types.ErrUnknownSensorType)
}

func TestReconfigure_AlarmEventsAndSweep(t *testing.T) {
	r := New(Options{})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	_, err := r.Dispatch(types.SensorUpdate{
		SensorType: types.SensorBattery,
		Instance:   1,
		Data:       types.Fields{"voltage": types.Number(11.0)},
		Timestamp:  t0,
	})
	require.NoError(t, err)

	r.opts.Now = func() time.Time { return t0.Add(time.Second) }
	r.Reconfigure(staticSource{
		ctx: types.ConfigContext{"nominalVoltage": 12},
		cfgs: map[string]types.ThresholdConfig{
			"voltage": {
				Direction:  types.Below,
				StaleAfter: 10 * time.Second,
				Warning:    types.Bound{Formula: &types.FormulaBound{Expression: "nominalVoltage * 0.98"}},
				Critical:   types.Bound{Formula: &types.FormulaBound{Expression: "nominalVoltage * 0.95"}},
			},
		},
	})

	snap, ok := r.Get(types.SensorBattery, 1)
	require.True(t, ok)
	assert.Equal(t, types.AlarmCritical, snap.Alarms["voltage"])

	n := r.SweepStale(t0.Add(11 * time.Second))
	assert.Equal(t, 1, n)

	battery := func(kind EventKind, at time.Duration) Event {
		return Event{Kind: kind, SensorType: types.SensorBattery, Instance: 1, Time: t0.Add(at)}
	}
	updated := battery(SensorUpdated, 0)
	updated.ChangedFields = []string{"voltage"}
	critical := battery(AlarmStateChanged, time.Second)
	critical.Field, critical.From, critical.To = "voltage", types.AlarmNone, types.AlarmCritical
	stale := battery(AlarmStateChanged, 11*time.Second)
	stale.Field, stale.From, stale.To = "voltage", types.AlarmCritical, types.AlarmStale

	want := []Event{battery(SensorCreated, 0), updated, critical, stale}
	if diff := cmp.Diff(want, rec.events, cmpopts.IgnoreFields(Event{}, "ID")); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_NewInstanceUsesConfigSource(t *testing.T) {
	r := New(Options{Config: staticSource{
		cfgs: map[string]types.ThresholdConfig{
			"depth": {
				Direction: types.Below,
				Critical:  types.Bound{Static: &types.StaticBound{Min: types.Float(2)}},
			},
		},
	}})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	_, err := r.Dispatch(depthUpdate("DPT", 3, 1.5, t0))
	require.NoError(t, err)

	assert.Equal(t, []EventKind{SensorCreated, SensorUpdated, AlarmStateChanged}, rec.kinds())
}

func TestSubscribe_HandlerMayQueryRegistry(t *testing.T) {
	r := New(Options{})
	var seen bool
	r.Subscribe(func(ev Event) {
		if ev.Kind == SensorCreated {
			_, seen = r.Get(ev.SensorType, ev.Instance)
		}
	})

	_, err := r.Dispatch(depthUpdate("DPT", 3, 4.2, t0))
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestUnsubscribeAndReset(t *testing.T) {
	r := New(Options{})
	rec := &recorder{}
	id := r.Subscribe(rec.handle)

	assert.True(t, r.Unsubscribe(id))
	assert.False(t, r.Unsubscribe(id))

	_, err := r.Dispatch(depthUpdate("DPT", 3, 4.2, t0))
	require.NoError(t, err)
	assert.Empty(t, rec.kinds())

	r.Reset()
	assert.Empty(t, r.Keys())
	_, ok := r.FieldOwner(types.Key{SensorType: types.SensorDepth}, "depth")
	assert.False(t, ok)
}

func TestGetOrCreate(t *testing.T) {
	r := New(Options{Now: func() time.Time { return t0 }})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	snap, err := r.GetOrCreate(types.SensorTank, 2)
	require.NoError(t, err)
	assert.Equal(t, types.Key{SensorType: types.SensorTank, Instance: 2}, snap.Key)

	_, err = r.GetOrCreate(types.SensorTank, 2)
	require.NoError(t, err)
	assert.Equal(t, []EventKind{SensorCreated}, rec.kinds())

	_, err = r.GetOrCreate("radar", 0)
	assert.ErrorIs(t, err, types.ErrUnknownSensorType)
}

func TestDispatch_Concurrent(t *testing.T) {
	r := New(Options{ClaimTTL: time.Minute})
	rec := &recorder{}
	r.Subscribe(rec.handle)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = r.Dispatch(depthUpdate("SRC", g, float64(i), t0.Add(time.Duration(i)*time.Millisecond)))
			}
		}(g)
	}
	wg.Wait()

	created := 0
	for _, k := range rec.kinds() {
		if k == SensorCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Len(t, r.Keys(), 1)
}
