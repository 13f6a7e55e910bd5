package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "WA_RELAY_"

// Config is the process configuration. Everything is read once at startup
// from WA_RELAY_* environment variables over built-in defaults.
type Config struct {
	// BackendURL is the message-processing collaborator endpoint.
	BackendURL string `koanf:"backend_url"`
	// ListenAddr is the command API listen address.
	ListenAddr string `koanf:"listen_addr"`
	// KeepAliveInterval is how often the client state is probed.
	KeepAliveInterval time.Duration `koanf:"keepalive_interval"`
	// RestartTimeout bounds the readiness wait after a rebuild.
	RestartTimeout time.Duration `koanf:"restart_timeout"`
	// SessionName labels the persisted authentication session.
	SessionName string `koanf:"session_name"`
	// DBPath overrides the session store location. Defaults to a sqlite
	// file named after the session.
	DBPath   string `koanf:"db_path"`
	LogLevel string `koanf:"log_level"`
}

func Default() Config {
	return Config{
		BackendURL:        "http://localhost:3000/api/process-message",
		ListenAddr:        ":8080",
		KeepAliveInterval: 30 * time.Second,
		RestartTimeout:    60 * time.Second,
		SessionName:       "relay-bot",
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = fmt.Sprintf("file:%s.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", cfg.SessionName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend_url %q is not a valid http(s) URL", c.BackendURL)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("keepalive_interval must be positive")
	}
	if c.RestartTimeout <= 0 {
		return fmt.Errorf("restart_timeout must be positive")
	}
	if c.SessionName == "" {
		return fmt.Errorf("session_name must not be empty")
	}
	return nil
}
