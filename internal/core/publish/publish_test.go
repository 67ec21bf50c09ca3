package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/registry"
	"github.com/pliefoog/bmad-autopilot-sub009/internal/types"
)

type fakeSink struct {
	name string
	err  error

	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Publish(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func event(kind registry.EventKind, instance uint32) registry.Event {
	return registry.Event{
		ID:         types.NewEventID(),
		Kind:       kind,
		SensorType: types.SensorDepth,
		Instance:   instance,
		Time:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		From:       types.AlarmNone,
		To:         types.AlarmNone,
	}
}

func decodeKinds(t *testing.T, payloads [][]byte) []string {
	t.Helper()
	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		var m map[string]any
		require.NoError(t, json.Unmarshal(p, &m))
		out = append(out, m["kind"].(string))
	}
	return out
}

func TestFanout_DeliversInOrderAndClosesSinks(t *testing.T) {
	a := &fakeSink{name: "a"}
	b := &fakeSink{name: "b"}
	m := NewMetrics(prometheus.NewRegistry())
	f := NewFanout([]Sink{a, b}, Options{Buffer: 8, Metrics: m})

	f.Handle(event(registry.SensorCreated, 0))
	f.Handle(event(registry.SensorUpdated, 0))
	f.Handle(event(registry.AlarmStateChanged, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	want := []string{"sensor_created", "sensor_updated", "alarm_state_changed"}
	for _, s := range []*fakeSink{a, b} {
		require.Eventually(t, func() bool { return len(s.received()) == 3 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, want, decodeKinds(t, s.received()), "sink %s", s.name)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.published.WithLabelValues("a")))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}

func TestFanout_FullQueueDrops(t *testing.T) {
	a := &fakeSink{name: "a"}
	m := NewMetrics(nil)
	f := NewFanout([]Sink{a}, Options{Buffer: 1, Metrics: m})

	for i := 0; i < 4; i++ {
		f.Handle(event(registry.SensorUpdated, 0))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.dropped.WithLabelValues("a")))
	assert.Len(t, f.lanes[0].queue, 1)
}

func TestFanout_CountsErrors(t *testing.T) {
	bad := &fakeSink{name: "bad", err: errors.New("broken pipe")}
	m := NewMetrics(nil)
	f := NewFanout([]Sink{bad}, Options{Metrics: m})

	f.Handle(event(registry.SensorUpdated, 0))
	f.Handle(event(registry.SensorUpdated, 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.errors.WithLabelValues("bad")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.published.WithLabelValues("bad")))
}

func TestFanout_AttachReceivesRegistryEvents(t *testing.T) {
	a := &fakeSink{name: "a"}
	f := NewFanout([]Sink{a}, Options{})
	reg := registry.New(registry.Options{})
	id := f.Attach(reg)

	_, err := reg.Dispatch(types.SensorUpdate{
		SensorType: types.SensorDepth,
		Instance:   2,
		Data:       types.Fields{"depth": types.Number(4.2)},
		Timestamp:  time.Now(),
		Source:     "test",
	})
	require.NoError(t, err)

	var payloads [][]byte
	for len(f.lanes[0].queue) > 0 {
		payloads = append(payloads, <-f.lanes[0].queue)
	}
	assert.Equal(t, []string{"sensor_created", "sensor_updated"}, decodeKinds(t, payloads))

	var ev map[string]any
	require.NoError(t, json.Unmarshal(payloads[1], &ev))
	assert.Equal(t, "depth", ev["sensorType"])
	assert.Equal(t, 2.0, ev["instance"])
	assert.Equal(t, []any{"depth"}, ev["changedFields"])

	assert.True(t, reg.Unsubscribe(id))
}

func TestFanout_NoSinks(t *testing.T) {
	f := NewFanout(nil, Options{})
	f.Handle(event(registry.SensorCreated, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, f.Run(ctx))
}

type fakeRedis struct {
	err      error
	channels []string
	messages []interface{}
	closed   bool
}

func (r *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if r.err != nil {
		cmd.SetErr(r.err)
		return cmd
	}
	r.channels = append(r.channels, channel)
	r.messages = append(r.messages, message)
	cmd.SetVal(1)
	return cmd
}

func (r *fakeRedis) Close() error {
	r.closed = true
	return nil
}

func TestRedisSink(t *testing.T) {
	client := &fakeRedis{}
	sink := &RedisSink{client: client, channel: "bmad.events"}

	assert.Equal(t, "redis", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), []byte(`{"kind":"sensor_created"}`)))
	assert.Equal(t, []string{"bmad.events"}, client.channels)
	assert.Equal(t, []byte(`{"kind":"sensor_created"}`), client.messages[0])

	client.err = errors.New("connection refused")
	assert.ErrorContains(t, sink.Publish(context.Background(), []byte("{}")), "connection refused")

	require.NoError(t, sink.Close())
	assert.True(t, client.closed)
}

type fakeNATS struct {
	subjects []string
	data     [][]byte
	drained  bool
}

func (n *fakeNATS) Publish(subject string, data []byte) error {
	n.subjects = append(n.subjects, subject)
	n.data = append(n.data, data)
	return nil
}

func (n *fakeNATS) Drain() error {
	n.drained = true
	return nil
}

func TestNATSSink(t *testing.T) {
	conn := &fakeNATS{}
	sink := &NATSSink{conn: conn, subject: "bmad.events"}

	assert.Equal(t, "nats", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), []byte("one")))
	require.NoError(t, sink.Publish(context.Background(), []byte("two")))
	assert.Equal(t, []string{"bmad.events", "bmad.events"}, conn.subjects)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, conn.data)

	require.NoError(t, sink.Close())
	assert.True(t, conn.drained)
}

// doneToken is an already completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes.
type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Done() <-chan struct{}          { return nil }
func (pendingToken) Error() error                   { return nil }

type fakeMQTT struct {
	token        mqtt.Token
	topics       []string
	qos          []byte
	payloads     []string
	disconnected bool
}

func (m *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	m.topics = append(m.topics, topic)
	m.qos = append(m.qos, qos)
	m.payloads = append(m.payloads, string(payload.([]byte)))
	return m.token
}

func (m *fakeMQTT) Disconnect(quiesce uint) { m.disconnected = true }

func TestMQTTSink(t *testing.T) {
	client := &fakeMQTT{token: doneToken{}}
	sink := &MQTTSink{client: client, topic: "bmad/events", qos: 1}

	assert.Equal(t, "mqtt", sink.Name())
	require.NoError(t, sink.Publish(context.Background(), []byte("one")))
	assert.Equal(t, []string{"bmad/events"}, client.topics)
	assert.Equal(t, []byte{1}, client.qos)
	assert.Equal(t, []string{"one"}, client.payloads)

	client.token = doneToken{err: errors.New("not connected")}
	assert.EqualError(t, sink.Publish(context.Background(), []byte("two")), "not connected")

	client.token = pendingToken{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sink.Publish(ctx, []byte("three")), context.DeadlineExceeded)

	require.NoError(t, sink.Close())
	assert.True(t, client.disconnected)
}

func TestNewMQTTSink_RejectsQoS(t *testing.T) {
	_, err := NewMQTTSink("tcp://127.0.0.1:1", "bmad/events", 3, nil)
	assert.Error(t, err)
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWebsocketHub_Broadcast(t *testing.T) {
	hub := NewWebsocketHub(nil, 4)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dialHub(t, srv)
	c2 := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), []byte(`{"kind":"sensor_updated"}`)))

	for _, c := range []*websocket.Conn{c1, c2} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		mt, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		assert.JSONEq(t, `{"kind":"sensor_updated"}`, string(msg))
	}
}

func TestWebsocketHub_DisconnectAndClose(t *testing.T) {
	hub := NewWebsocketHub(nil, 4)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dialHub(t, srv)
	c2 := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c1.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, c2.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c2.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	// Closed hubs refuse new clients.
	c3 := dialHub(t, srv)
	require.NoError(t, c3.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = c3.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Clients())
}

func TestWebsocketHub_SlowClientDrops(t *testing.T) {
	hub := NewWebsocketHub(nil, 1)
	c := &wsClient{send: make(chan []byte, 1), done: make(chan struct{})}
	hub.clients[c] = struct{}{}

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), []byte("x")))
	}
	assert.Equal(t, uint64(2), hub.Dropped())
}
