package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("pipeline.queue_size", d.Pipeline.QueueSize)
	v.SetDefault("pipeline.stale_check_interval", d.Pipeline.StaleCheckInterval.String())
	v.SetDefault("pipeline.claim_ttl", d.Pipeline.ClaimTTL.String())
	v.SetDefault("pipeline.allow_missing_checksum", false)
	v.SetDefault("history.initial_capacity", d.History.InitialCapacity)
	v.SetDefault("history.max_capacity", d.History.MaxCapacity)
	v.SetDefault("history.window", "0s")
	v.SetDefault("alarms.default_stale_after", d.Alarms.DefaultStaleAfter.String())
	v.SetDefault("alarms.profile", "")
	v.SetDefault("input.path", "")
	v.SetDefault("input.udp_addr", "")
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout.String())
	v.SetDefault("api.watch_buffer", d.API.WatchBuffer)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("publish.redis_addr", "")
	v.SetDefault("publish.redis_channel", d.Publish.RedisChannel)
	v.SetDefault("publish.nats_url", "")
	v.SetDefault("publish.nats_subject", d.Publish.NATSSubject)
	v.SetDefault("publish.mqtt_broker", "")
	v.SetDefault("publish.mqtt_topic", d.Publish.MQTTTopic)
	v.SetDefault("publish.mqtt_qos", d.Publish.MQTTQoS)
	v.SetDefault("publish.websocket_addr", "")
	v.SetDefault("publish.buffer", d.Publish.Buffer)
	v.SetDefault("db_url", "")

	// Bind environment variables with BM_ prefix
	v.SetEnvPrefix("BM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	talkers, err := parseTalkers(v.GetStringMapString("talkers"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Pipeline: PipelineConfig{
			QueueSize:            v.GetInt("pipeline.queue_size"),
			StaleCheckInterval:   v.GetDuration("pipeline.stale_check_interval"),
			ClaimTTL:             v.GetDuration("pipeline.claim_ttl"),
			AllowMissingChecksum: v.GetBool("pipeline.allow_missing_checksum"),
		},
		History: HistoryConfig{
			InitialCapacity: v.GetInt("history.initial_capacity"),
			MaxCapacity:     v.GetInt("history.max_capacity"),
			Window:          v.GetDuration("history.window"),
		},
		Alarms: AlarmsConfig{
			DefaultStaleAfter: v.GetDuration("alarms.default_stale_after"),
			Profile:           v.GetString("alarms.profile"),
		},
		Input: InputConfig{
			Path:    v.GetString("input.path"),
			UDPAddr: v.GetString("input.udp_addr"),
		},
		API: APIConfig{
			Enabled:        v.GetBool("api.enabled"),
			Host:           v.GetString("api.host"),
			Port:           v.GetInt("api.port"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			WatchBuffer:    v.GetInt("api.watch_buffer"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Publish: PublishConfig{
			RedisAddr:     v.GetString("publish.redis_addr"),
			RedisChannel:  v.GetString("publish.redis_channel"),
			NATSURL:       v.GetString("publish.nats_url"),
			NATSSubject:   v.GetString("publish.nats_subject"),
			MQTTBroker:    v.GetString("publish.mqtt_broker"),
			MQTTTopic:     v.GetString("publish.mqtt_topic"),
			MQTTQoS:       v.GetInt("publish.mqtt_qos"),
			WebsocketAddr: v.GetString("publish.websocket_addr"),
			Buffer:        v.GetInt("publish.buffer"),
		},
		DBURL:   v.GetString("db_url"),
		Talkers: talkers,
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseTalkers converts the talkers section; viper lower-cases keys so talker
// IDs are upper-cased back.
func parseTalkers(raw map[string]string) (map[string]uint32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]uint32, len(raw))
	for talker, s := range raw {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("talkers.%s: instance must be a non-negative integer, got %q", talker, s)
		}
		out[strings.ToUpper(talker)] = uint32(n)
	}
	return out, nil
}

// validateConfig checks ranges of sizes, durations and the API port.
func validateConfig(cfg *Config) error {
	if cfg.Pipeline.QueueSize <= 0 {
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.ClaimTTL < 0 {
		return fmt.Errorf("pipeline.claim_ttl must not be negative, got %v", cfg.Pipeline.ClaimTTL)
	}
	if cfg.History.InitialCapacity <= 0 {
		return fmt.Errorf("history.initial_capacity must be positive, got %d", cfg.History.InitialCapacity)
	}
	if cfg.History.MaxCapacity < cfg.History.InitialCapacity {
		return fmt.Errorf("history.max_capacity must be at least initial_capacity, got %d < %d",
			cfg.History.MaxCapacity, cfg.History.InitialCapacity)
	}
	if cfg.History.Window < 0 {
		return fmt.Errorf("history.window must not be negative, got %v", cfg.History.Window)
	}
	if cfg.Alarms.DefaultStaleAfter < 0 {
		return fmt.Errorf("alarms.default_stale_after must not be negative, got %v", cfg.Alarms.DefaultStaleAfter)
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.API.Port)
		}
		if cfg.API.RequestTimeout <= 0 {
			return fmt.Errorf("api.request_timeout must be positive, got %v", cfg.API.RequestTimeout)
		}
	}
	if cfg.API.WatchBuffer <= 0 {
		return fmt.Errorf("api.watch_buffer must be positive, got %d", cfg.API.WatchBuffer)
	}
	if cfg.Publish.Buffer <= 0 {
		return fmt.Errorf("publish.buffer must be positive, got %d", cfg.Publish.Buffer)
	}
	if cfg.Publish.MQTTQoS < 0 || cfg.Publish.MQTTQoS > 2 {
		return fmt.Errorf("publish.mqtt_qos must be 0, 1 or 2, got %d", cfg.Publish.MQTTQoS)
	}
	if cfg.Input.Path != "" && cfg.Input.UDPAddr != "" {
		return fmt.Errorf("input.path and input.udp_addr are mutually exclusive")
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets. InConfig only
// looks at the file, so BM_HMAC_SECRET in the environment is not rejected.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use BM_HMAC_SECRET environment variable)")
	}
	return nil
}
