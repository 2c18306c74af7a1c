package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000
cors_origins = ["https://chat.example.com"]

[jwt]
secret = "s3cret"

[status]
ttl = "12h"

[presence]
verify_token = true
drop_policy = "owner"

[kafka]
brokers = ["k1:9092", "k2:9092"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 12*time.Hour, cfg.Status.TTL)
	assert.True(t, cfg.Presence.VerifyToken)
	assert.Equal(t, "owner", cfg.Presence.DropPolicy)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	// untouched sections keep their defaults
	assert.Equal(t, 10*time.Minute, cfg.Status.ReapInterval)
	assert.Equal(t, "chat.notifications", cfg.Kafka.Topic)
	assert.Equal(t, 2048, cfg.Server.MaxConcurrent)
	assert.Equal(t, int64(50), cfg.Media.MaxSizeMB)
}

func TestLoadConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "from-env")
	t.Setenv("CHAT_SERVER_PORT", "7070")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "unconditional", cfg.Presence.DropPolicy)
	assert.Equal(t, 24*time.Hour, cfg.Status.TTL)
}

func TestLoadConfig_RequiresSecret(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[server]\nport = 1\n"))
	assert.ErrorContains(t, err, "jwt.secret")
}

func TestValidate(t *testing.T) {
	valid := Config{
		JWT:      JWTConfig{Secret: "x"},
		Status:   StatusConfig{TTL: time.Hour, ReapInterval: time.Minute},
		Presence: PresenceConfig{DropPolicy: "owner"},
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Presence.DropPolicy = "sticky"
	assert.ErrorContains(t, bad.Validate(), "drop_policy")

	bad = valid
	bad.Status.TTL = 0
	assert.ErrorContains(t, bad.Validate(), "status.ttl")

	for _, interval := range []time.Duration{0, -time.Second} {
		bad = valid
		bad.Status.ReapInterval = interval
		assert.ErrorContains(t, bad.Validate(), "status.reap_interval")
	}
}

func TestLoadConfig_RejectsZeroReapInterval(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[jwt]\nsecret = \"x\"\n\n[status]\nreap_interval = \"0s\"\n"))
	assert.ErrorContains(t, err, "status.reap_interval")
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "[server\nport = "))
	assert.Error(t, err)
}
