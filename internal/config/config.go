package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"gopkg.in/yaml.v3"
)

// Backend names accepted in the store section
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// envPrefix starts every environment override
const envPrefix = "SHARESTORE_"

// Config holds every setting of the document store server
type Config struct {
	Store     *StoreConfig     `json:"store"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Auth      *AuthConfig      `json:"auth"`
}

// StoreConfig selects and tunes the document backend
// Path and Timeout only apply to the sqlite backend.
type StoreConfig struct {
	Backend string        `json:"backend"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig tunes the store protocol connections
type WebSocketConfig struct {
	PingInterval     time.Duration `json:"ping_interval"`
	ReadTimeout      time.Duration `json:"read_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	BufferSize       int           `json:"buffer_size"`
	CommitsPerMinute int           `json:"commits_per_minute"`
}

// AuthConfig holds the custom token secret
// An empty secret is only accepted with AllowUnverified, which makes the
// server trust tokens without checking their signature.
type AuthConfig struct {
	TokenSecret     string `json:"-"`
	AllowUnverified bool   `json:"allow_unverified"`
}

// Addr returns host:port for the HTTP listener
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DefaultConfig returns settings for a single classroom server
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			Backend: BackendSQLite,
			Path:    "./sharestore.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     30 * time.Second,
			ReadTimeout:      60 * time.Second,
			WriteTimeout:     10 * time.Second,
			BufferSize:       100,
			CommitsPerMinute: 120,
		},
		Auth: &AuthConfig{},
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store path cannot be empty for the sqlite backend")
		}
		if c.Store.Timeout <= 0 {
			return fmt.Errorf("store timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want %s or %s)", c.Store.Backend, BackendMemory, BackendSQLite)
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	// port 0 binds a free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}

	// pongs must be able to arrive before the read deadline
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.WebSocket.CommitsPerMinute < 0 {
		return fmt.Errorf("WebSocket commits per minute cannot be negative")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Auth.TokenSecret == "" && !c.Auth.AllowUnverified {
		return fmt.Errorf("auth token secret is required (set auth.allow_unverified for local development)")
	}

	return nil
}

// LoadFromEnv applies SHARESTORE_* variables over the defaults
// Unparseable values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("STORE_BACKEND", &config.Store.Backend)
	envString("STORE_PATH", &config.Store.Path)
	envDuration("STORE_TIMEOUT", &config.Store.Timeout)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	envInt("WEBSOCKET_COMMITS_PER_MINUTE", &config.WebSocket.CommitsPerMinute)

	envString("AUTH_TOKEN_SECRET", &config.Auth.TokenSecret)
	envBool("AUTH_ALLOW_UNVERIFIED", &config.Auth.AllowUnverified)
}

func envString(name string, dst *string) {
	if v := os.Getenv(envPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile is the on-disk form; durations are strings such as "30s"
type ConfigFile struct {
	Store     *StoreConfigFile     `json:"store" yaml:"store"`
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	Auth      *AuthConfigFile      `json:"auth" yaml:"auth"`
}

type StoreConfigFile struct {
	Backend string `json:"backend" yaml:"backend"`
	Path    string `json:"path" yaml:"path"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	Host         string `json:"host" yaml:"host"`
}

type WebSocketConfigFile struct {
	PingInterval     string `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout      string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize       int    `json:"buffer_size" yaml:"buffer_size"`
	CommitsPerMinute *int   `json:"commits_per_minute" yaml:"commits_per_minute"`
}

type AuthConfigFile struct {
	TokenSecret     string `json:"token_secret" yaml:"token_secret"`
	AllowUnverified *bool  `json:"allow_unverified" yaml:"allow_unverified"`
}

// LoadFromFile reads a JSON or YAML (.yaml, .yml) config file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if s := file.Store; s != nil {
		setString(&config.Store.Backend, s.Backend)
		setString(&config.Store.Path, s.Path)
		if err := setDuration(&config.Store.Timeout, s.Timeout, "store.timeout"); err != nil {
			return err
		}
	}

	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		setString(&config.HTTP.Host, h.Host)
		if err := setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout"); err != nil {
			return err
		}
	}

	if ws := file.WebSocket; ws != nil {
		if ws.BufferSize > 0 {
			config.WebSocket.BufferSize = ws.BufferSize
		}
		if ws.CommitsPerMinute != nil {
			config.WebSocket.CommitsPerMinute = *ws.CommitsPerMinute
		}
		if err := setDuration(&config.WebSocket.PingInterval, ws.PingInterval, "websocket.ping_interval"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.ReadTimeout, ws.ReadTimeout, "websocket.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.WriteTimeout, ws.WriteTimeout, "websocket.write_timeout"); err != nil {
			return err
		}
	}

	if a := file.Auth; a != nil {
		setString(&config.Auth.TokenSecret, a.TokenSecret)
		if a.AllowUnverified != nil {
			config.Auth.AllowUnverified = *a.AllowUnverified
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", field, err)
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence layers file over environment over defaults
// A missing or broken file is logged and skipped; the result is always usable.
func LoadConfigWithPrecedence(path string) *Config {
	config := LoadFromEnv()
	if path == "" {
		return config
	}

	layered := LoadFromEnv()
	if err := applyFile(layered, path); err != nil {
		glog.Warningf("[config] ignoring config file: %v", err)
		return config
	}
	if err := layered.Validate(); err != nil {
		glog.Warningf("[config] ignoring config file %s: %v", path, err)
		return config
	}
	return layered
}
