package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FALLBACK_WINDOW", "")
	t.Setenv("RELAY_RPS", "")

	cfg := LoadConfig()

	assert.Equal(t, 3*time.Second, cfg.Client.FallbackWindow)
	assert.Equal(t, 3*time.Second, cfg.Client.IndicatorDecay)
	assert.Equal(t, 120*time.Second, cfg.Client.MaxVideoDuration)
	assert.Equal(t, 25*time.Second, cfg.Client.KeepaliveInterval)
	assert.Equal(t, 20, cfg.Relay.RPS)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("FALLBACK_WINDOW", "5s")
	t.Setenv("RELAY_PORT", "9999")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()

	assert.Equal(t, 5*time.Second, cfg.Client.FallbackWindow)
	assert.Equal(t, "9999", cfg.Relay.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestGetEnvAsDuration_RejectsGarbage(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))

	t.Setenv("SOME_DURATION", "-1s")
	assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute))
}
