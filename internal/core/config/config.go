// Package config provides configuration management for the bmad pipeline.
package config

import "time"

// Config is the full service configuration.
type Config struct {
	Pipeline PipelineConfig
	History  HistoryConfig
	Alarms   AlarmsConfig
	Input    InputConfig
	API      APIConfig
	Metrics  MetricsConfig
	Publish  PublishConfig
	DBURL    string
	Talkers  map[string]uint32 // talker ID -> instance; nil = built-in table
}

// PipelineConfig controls the input queue and dispatch loop.
type PipelineConfig struct {
	QueueSize            int
	StaleCheckInterval   time.Duration
	ClaimTTL             time.Duration
	AllowMissingChecksum bool
}

// HistoryConfig sizes the per-field history buffers.
type HistoryConfig struct {
	InitialCapacity int
	MaxCapacity     int
	Window          time.Duration
}

// AlarmsConfig holds alarm defaults and the optional YAML threshold profile.
type AlarmsConfig struct {
	DefaultStaleAfter time.Duration
	Profile           string
}

// InputConfig selects where sentences come from. Empty Path and UDPAddr = stdin.
type InputConfig struct {
	Path    string
	UDPAddr string
}

// APIConfig holds configuration for the gRPC sensor API.
type APIConfig struct {
	Enabled        bool
	Host           string
	Port           int
	RequestTimeout time.Duration
	WatchBuffer    int
}

// MetricsConfig holds the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Addr string
}

// PublishConfig enables event publishers. Empty addresses disable a publisher.
type PublishConfig struct {
	RedisAddr     string
	RedisChannel  string
	NATSURL       string
	NATSSubject   string
	MQTTBroker    string
	MQTTTopic     string
	MQTTQoS       int
	WebsocketAddr string
	Buffer        int
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			QueueSize:          1024,
			StaleCheckInterval: time.Second,
		},
		History: HistoryConfig{
			InitialCapacity: 32,
			MaxCapacity:     2048,
		},
		Alarms: AlarmsConfig{
			DefaultStaleAfter: 10 * time.Second,
		},
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
			WatchBuffer:    256,
		},
		Publish: PublishConfig{
			RedisChannel: "bmad.events",
			NATSSubject:  "bmad.events",
			MQTTTopic:    "bmad/events",
			MQTTQoS:      1,
			Buffer:       256,
		},
	}
}
