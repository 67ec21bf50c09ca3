package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttConnectTimeout = 5 * time.Second

// mqttClient is the subset of mqtt.Client the sink uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes every event on one topic. The client reconnects on its
// own; publishes made while disconnected fail and are counted by the fanout.
type MQTTSink struct {
	client mqttClient
	topic  string
	qos    byte
}

// NewMQTTSink connects to broker (tcp://host:1883).
func NewMQTTSink(broker, topic string, qos byte, logger *slog.Logger) (*MQTTSink, error) {
	if qos > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", qos)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("bmad-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("mqtt connected", "broker", broker)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
	}
	return &MQTTSink{client: client, topic: topic, qos: qos}, nil
}

func (m *MQTTSink) Name() string { return "mqtt" }

// Publish waits for the broker acknowledgement (QoS 1 and 2) or ctx.
func (m *MQTTSink) Publish(ctx context.Context, payload []byte) error {
	token := m.client.Publish(m.topic, m.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits up to 250ms for in-flight publishes.
func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
