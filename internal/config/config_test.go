package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.ErrorContains(t, config.Validate(), "token secret is required", "defaults must not trust unsigned tokens")
	config.Auth.TokenSecret = "s3cret"
	require.NoError(t, config.Validate())

	assert.Equal(t, BackendSQLite, config.Store.Backend)
	assert.NotEmpty(t, config.Store.Path)
	assert.Equal(t, 8080, config.HTTP.Port)
	assert.Equal(t, "0.0.0.0:8080", config.HTTP.Addr())
	assert.Equal(t, 30*time.Second, config.WebSocket.PingInterval)
	assert.Equal(t, 120, config.WebSocket.CommitsPerMinute)
	assert.False(t, config.Auth.AllowUnverified)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"memory backend ignores path", func(c *Config) { c.Store.Backend = BackendMemory; c.Store.Path = "" }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, false},
		{"sqlite needs path", func(c *Config) { c.Store.Path = "" }, false},
		{"sqlite needs timeout", func(c *Config) { c.Store.Timeout = 0 }, false},
		{"missing store", func(c *Config) { c.Store = nil }, false},
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }, false},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }, false},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, false},
		{"zero http read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }, false},
		{"missing websocket", func(c *Config) { c.WebSocket = nil }, false},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }, false},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }, false},
		{"unlimited commits", func(c *Config) { c.WebSocket.CommitsPerMinute = 0 }, true},
		{"negative commits", func(c *Config) { c.WebSocket.CommitsPerMinute = -1 }, false},
		{"missing auth", func(c *Config) { c.Auth = nil }, false},
		{"no token secret", func(c *Config) { c.Auth.TokenSecret = "" }, false},
		{"unverified tokens allowed explicitly", func(c *Config) { c.Auth.TokenSecret = ""; c.Auth.AllowUnverified = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Auth.TokenSecret = "s3cret"
			tt.mutate(config)
			err := config.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("SHARESTORE_STORE_BACKEND", "memory")
	t.Setenv("SHARESTORE_HTTP_PORT", "9090")
	t.Setenv("SHARESTORE_HTTP_HOST", "127.0.0.1")
	t.Setenv("SHARESTORE_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("SHARESTORE_WEBSOCKET_COMMITS_PER_MINUTE", "10")
	t.Setenv("SHARESTORE_AUTH_TOKEN_SECRET", "s3cret")
	t.Setenv("SHARESTORE_AUTH_ALLOW_UNVERIFIED", "true")

	config := LoadFromEnv()
	assert.Equal(t, BackendMemory, config.Store.Backend)
	assert.Equal(t, 9090, config.HTTP.Port)
	assert.Equal(t, "127.0.0.1", config.HTTP.Host)
	assert.Equal(t, 15*time.Second, config.WebSocket.PingInterval)
	assert.Equal(t, 10, config.WebSocket.CommitsPerMinute)
	assert.Equal(t, "s3cret", config.Auth.TokenSecret)
	assert.True(t, config.Auth.AllowUnverified)
}

func TestConfig_LoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("SHARESTORE_HTTP_PORT", "eighty")
	t.Setenv("SHARESTORE_STORE_TIMEOUT", "soon")
	t.Setenv("SHARESTORE_AUTH_ALLOW_UNVERIFIED", "maybe")

	config := LoadFromEnv()
	assert.Equal(t, 8080, config.HTTP.Port)
	assert.Equal(t, 30*time.Second, config.Store.Timeout)
	assert.False(t, config.Auth.AllowUnverified)
}

func TestConfig_LoadFromFileJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"store": {"backend": "sqlite", "path": "/tmp/classroom.db", "timeout": "5s"},
		"http": {"port": 3000, "host": "localhost"},
		"websocket": {"ping_interval": "10s", "read_timeout": "25s", "commits_per_minute": 0},
		"auth": {"token_secret": "from-file"}
	}`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/classroom.db", config.Store.Path)
	assert.Equal(t, 5*time.Second, config.Store.Timeout)
	assert.Equal(t, 3000, config.HTTP.Port)
	assert.Equal(t, "localhost", config.HTTP.Host)
	assert.Equal(t, 30*time.Second, config.HTTP.ReadTimeout, "unset fields keep defaults")
	assert.Equal(t, 10*time.Second, config.WebSocket.PingInterval)
	assert.Equal(t, 0, config.WebSocket.CommitsPerMinute, "an explicit zero disables the limit")
	assert.Equal(t, "from-file", config.Auth.TokenSecret)
}

func TestConfig_LoadFromFileYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
store:
  backend: memory
http:
  port: 4000
websocket:
  write_timeout: 2s
auth:
  allow_unverified: true
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, config.Store.Backend)
	assert.Equal(t, 4000, config.HTTP.Port)
	assert.Equal(t, 2*time.Second, config.WebSocket.WriteTimeout)
	assert.Empty(t, config.Auth.TokenSecret)
	assert.True(t, config.Auth.AllowUnverified)
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "broken.json", `{"http": `))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "bad-duration.yml", "store:\n  timeout: forever\n"))
	assert.ErrorContains(t, err, "store.timeout")

	_, err = LoadFromFile(writeFile(t, "invalid.json", `{"store": {"backend": "redis"}}`))
	assert.ErrorContains(t, err, "unknown store backend")

	_, err = LoadFromFile(writeFile(t, "no-secret.json", `{"store": {"backend": "memory"}}`))
	assert.ErrorContains(t, err, "token secret is required")
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("SHARESTORE_HTTP_PORT", "9090")
	t.Setenv("SHARESTORE_HTTP_HOST", "10.0.0.1")
	t.Setenv("SHARESTORE_AUTH_TOKEN_SECRET", "env-secret")

	config := LoadConfigWithPrecedence("")
	assert.Equal(t, 9090, config.HTTP.Port, "environment overrides defaults")

	path := writeFile(t, "config.json", `{"http": {"port": 7000}}`)
	config = LoadConfigWithPrecedence(path)
	assert.Equal(t, 7000, config.HTTP.Port, "file overrides environment")
	assert.Equal(t, "10.0.0.1", config.HTTP.Host, "environment still fills what the file leaves out")

	config = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 9090, config.HTTP.Port, "a missing file falls back to environment")
	require.NoError(t, config.Validate())
}
