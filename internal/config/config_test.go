package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Setenv("STREAM_HOST", "stream.example.com")
	t.Setenv("STREAM_TOKEN", "")

	cfg, err := Parse([]byte(`
endpoint: https://${STREAM_HOST}/api
room: ${STREAM_ROOM:-lobby}
transport: tcp
dispatcher: mutex
headers:
  Authorization: Bearer ${STREAM_TOKEN:-anonymous}
backoff:
  base_delay: 500ms
  max_attempts: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "https://stream.example.com/api", cfg.Endpoint)
	assert.Equal(t, "lobby", cfg.Room)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, "mutex", cfg.Dispatcher)
	assert.Equal(t, "Bearer anonymous", cfg.Headers["Authorization"])
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Backoff.MaxDelay, "default kept")
	assert.Equal(t, 3, cfg.Backoff.MaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	b := cfg.ClientBackoff()
	assert.Equal(t, 500*time.Millisecond, b.Delay(1))
	assert.Equal(t, time.Second, b.Delay(2))
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("backoff: [1, 2"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roomstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("room: r1\n"), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "r1", cfg.Room)
	assert.Equal(t, Default().Endpoint, cfg.Endpoint)

	_, err = LoadFromFile(filepath.Join(dir, "roomstream.json"))
	assert.Error(t, err)
	_, err = LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ROOMSTREAM_TEST_ROOM=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("ROOMSTREAM_TEST_ROOM") })

	LoadEnvFiles(filepath.Join(dir, "missing.env"), path)
	assert.Equal(t, "from-dotenv", os.Getenv("ROOMSTREAM_TEST_ROOM"))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ROOMSTREAM_ENDPOINT":             "http://override",
		"ROOMSTREAM_ROOM":                 "r2",
		"ROOMSTREAM_BACKOFF_MAX_DELAY":    "1m",
		"ROOMSTREAM_BACKOFF_MAX_ATTEMPTS": "4",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "http://override", cfg.Endpoint)
	assert.Equal(t, "r2", cfg.Room)
	assert.Equal(t, time.Minute, cfg.Backoff.MaxDelay)
	assert.Equal(t, 4, cfg.Backoff.MaxAttempts)
	assert.Equal(t, "sse", cfg.Transport)

	env["ROOMSTREAM_HISTORY_LIMIT"] = "many"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{name: "empty endpoint", modify: func(c *Config) { c.Endpoint = " " }},
		{name: "transport", modify: func(c *Config) { c.Transport = "websocket" }},
		{name: "dispatcher", modify: func(c *Config) { c.Dispatcher = "actor" }},
		{name: "log level", modify: func(c *Config) { c.LogLevel = "loud" }},
		{name: "base delay", modify: func(c *Config) { c.Backoff.BaseDelay = 0 }},
		{name: "max delay", modify: func(c *Config) { c.Backoff.MaxDelay = time.Millisecond }},
		{name: "attempts", modify: func(c *Config) { c.Backoff.MaxAttempts = -1 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
