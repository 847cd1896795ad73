package app

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.DBMaxRetries)
	assert.Equal(t, time.Second, cfg.DBRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "gateway_session", cfg.SessionCookie)
	assert.Equal(t, "User", cfg.DefaultRoleName)
	assert.Equal(t, MinBcryptCost, cfg.BcryptCost)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing session secret", map[string]string{"CSRF_SECRET": "c"}},
		{"weak bcrypt cost", map[string]string{"SESSION_SECRET": "s", "CSRF_SECRET": "c", "BCRYPT_COST": "4"}},
		{"no connection attempts", map[string]string{"SESSION_SECRET": "s", "CSRF_SECRET": "c", "DB_MAX_RETRIES": "0"}},
		{"negative login limit", map[string]string{"SESSION_SECRET": "s", "CSRF_SECRET": "c", "LOGIN_RATE_LIMIT": "-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("SESSION_SECRET", "")
			t.Setenv("CSRF_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf).Debug("hidden")
	newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf).Info("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])

	buf.Reset()
	newLogger(&Config{LogFormat: "pretty"}, &buf).Debug("dev")
	assert.Contains(t, buf.String(), "msg=dev")
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	assert.False(t, InTestMode(), "cached until refreshed")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
