package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA     = "0123456789abcdef0123456789abcdef"
	idB     = "fedcba9876543210fedcba9876543210"
	secretA = "dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	secretB = "YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

// clearSecrets unsets every rotation variable for the duration of the test.
func clearSecrets(t *testing.T) {
	for _, name := range []string{secretEnv, secretEnv + "_1", secretEnv + "_2", secretEnv + "_3"} {
		t.Setenv(name, "")
	}
}

func TestHMACSecrets(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantIDs []string
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"single", map[string]string{"BM_HMAC_SECRET": idA + ":" + secretA}, []string{idA}, false},
		{"rotation", map[string]string{
			"BM_HMAC_SECRET_1": idA + ":" + secretA,
			"BM_HMAC_SECRET_2": idB + ":" + secretB,
		}, []string{idA, idB}, false},
		{"numbering stops at gap", map[string]string{
			"BM_HMAC_SECRET_1": idA + ":" + secretA,
			"BM_HMAC_SECRET_3": idB + ":" + secretB,
		}, []string{idA}, false},
		{"no colon", map[string]string{"BM_HMAC_SECRET": "invalid_format"}, nil, true},
		{"short id", map[string]string{"BM_HMAC_SECRET": "short:" + secretA}, nil, true},
		{"non-hex id", map[string]string{"BM_HMAC_SECRET": "0123456789abcdefGHIJKLMNOPQRSTUV:" + secretA}, nil, true},
		{"duplicate between numbered", map[string]string{
			"BM_HMAC_SECRET_1": idA + ":" + secretA,
			"BM_HMAC_SECRET_2": idA + ":" + secretB,
		}, nil, true},
		{"duplicate between plain and numbered", map[string]string{
			"BM_HMAC_SECRET":   idA + ":" + secretA,
			"BM_HMAC_SECRET_1": idA + ":" + secretB,
		}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearSecrets(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			secrets, err := HMACSecrets()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, secrets, len(tt.wantIDs))
			for _, id := range tt.wantIDs {
				assert.Contains(t, secrets, id)
			}
		})
	}
}

func TestParseHMACSecret(t *testing.T) {
	secret, err := ParseHMACSecret(secretA)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(secret), minSecretLen)

	_, err = ParseHMACSecret("not-valid-base64!!!")
	assert.Error(t, err)
	_, err = ParseHMACSecret("c2hvcnQ=") // "short"
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestParseHMACSecretWithID(t *testing.T) {
	id, secret, err := ParseHMACSecretWithID("  " + idA + ":" + secretA + "\n")
	require.NoError(t, err)
	assert.Equal(t, idA, id)
	assert.NotEmpty(t, secret)

	for _, bad := range []string{
		idA,
		"tooshort:" + secretA,
		"0123456789ABCDEF0123456789ABCDEF:" + secretA,
		idA + ":c2hvcnQ=",
	} {
		_, _, err := ParseHMACSecretWithID(bad)
		assert.Error(t, err, bad)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bmad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 50051, cfg.API.Port)
	assert.Equal(t, 10*time.Second, cfg.Alarms.DefaultStaleAfter)
	assert.Nil(t, cfg.Talkers)
	assert.Zero(t, cfg.Pipeline.ClaimTTL, "priority claims never expire unless configured")
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `pipeline:
  claim_ttl: 5s
  allow_missing_checksum: true
history:
  window: 10m
alarms:
  default_stale_after: 0s
  profile: /etc/bmad/thresholds.yaml
input:
  udp_addr: ":10110"
publish:
  redis_addr: "localhost:6379"
talkers:
  YX: 2
  ii: 1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Pipeline.ClaimTTL)
	assert.True(t, cfg.Pipeline.AllowMissingChecksum)
	assert.Equal(t, 10*time.Minute, cfg.History.Window)
	assert.Equal(t, AlarmsConfig{Profile: "/etc/bmad/thresholds.yaml"}, cfg.Alarms)
	assert.Equal(t, ":10110", cfg.Input.UDPAddr)
	assert.Equal(t, "localhost:6379", cfg.Publish.RedisAddr)
	assert.Equal(t, "bmad.events", cfg.Publish.RedisChannel)
	assert.Equal(t, map[string]uint32{"YX": 2, "II": 1}, cfg.Talkers)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, "api:\n  port: 9090\n  host: 10.0.0.1\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.API.Port, "file over default")

	t.Setenv("BM_API_PORT", "8080")
	t.Setenv("BM_PIPELINE_QUEUE_SIZE", "64")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port, "environment over file")
	assert.Equal(t, "10.0.0.1", cfg.API.Host)
	assert.Equal(t, 64, cfg.Pipeline.QueueSize)
}

func TestLoadConfig_Secrets(t *testing.T) {
	path := writeConfig(t, "api:\n  host: localhost\n  hmac_secret: should_be_rejected\n")
	_, err := LoadConfig(path)
	assert.EqualError(t, err, "HMAC secrets not allowed in config files (use BM_HMAC_SECRET environment variable)")

	path = writeConfig(t, "hmac_secret: also_rejected\n")
	_, err = LoadConfig(path)
	assert.Error(t, err)

	clearSecrets(t)
	t.Setenv("BM_HMAC_SECRET", idA+":"+secretA)
	_, err = LoadConfig("")
	assert.NoError(t, err, "secret in the environment is fine")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{"port out of range", map[string]string{"BM_API_ENABLED": "true", "BM_API_PORT": "70000"}, ""},
		{"negative queue size", map[string]string{"BM_PIPELINE_QUEUE_SIZE": "-1"}, ""},
		{"max below initial capacity", nil, "history:\n  initial_capacity: 64\n  max_capacity: 8\n"},
		{"negative talker instance", nil, "talkers:\n  YX: -2\n"},
		{"both inputs", nil, "input:\n  path: /dev/ttyUSB0\n  udp_addr: \":10110\"\n"},
		{"missing file", nil, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			switch tt.file {
			case "":
			case "-":
				path = filepath.Join(t.TempDir(), "absent.yaml")
			default:
				path = writeConfig(t, tt.file)
			}
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}
