// Package config loads the boardsync client configuration from the workspace
// config file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/storage"
)

// Environment variables that override the config file.
const (
	EnvHome     = "BOARDSYNC_HOME"
	EnvAPIURL   = "BOARDSYNC_API_URL"
	EnvPushURL  = "BOARDSYNC_PUSH_URL"
	EnvToken    = "BOARDSYNC_TOKEN"
	EnvUserID   = "BOARDSYNC_USER_ID"
	EnvLogLevel = "BOARDSYNC_LOG_LEVEL"
)

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type AttachmentsConfig struct {
	MaxFiles int `yaml:"max_files"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the client configuration.
type Config struct {
	APIURL         string            `yaml:"api_url"`
	PushURL        string            `yaml:"push_url"`
	Token          string            `yaml:"token,omitempty"`
	UserID         string            `yaml:"user_id"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Retry          RetryConfig       `yaml:"retry"`
	Reconnect      ReconnectConfig   `yaml:"reconnect"`
	Attachments    AttachmentsConfig `yaml:"attachments"`
	Log            LogConfig         `yaml:"log"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	return Config{
		APIURL:         "http://localhost:4000/api",
		PushURL:        "ws://localhost:4000/ws",
		RequestTimeout: 30 * time.Second,
		Retry:          RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond},
		Reconnect:      ReconnectConfig{InitialDelay: time.Second, MaxDelay: 30 * time.Second},
		Attachments:    AttachmentsConfig{MaxFiles: 5},
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

// Home returns the workspace directory: $BOARDSYNC_HOME, else ~/.boardsync.
func Home() (string, error) {
	if h := os.Getenv(EnvHome); h != "" {
		return h, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(dir, ".boardsync"), nil
}

// Load reads the config file of ws, fills unset fields from Default and
// applies environment overrides. A missing file is not an error.
func Load(ws *storage.Workspace) (Config, error) {
	cfg := Default()
	if _, err := ws.LoadYAML(storage.ConfigFile, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyEnv(os.Getenv)
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes cfg to the workspace config file.
func Save(ws *storage.Workspace, cfg Config) error {
	return ws.SaveYAML(storage.ConfigFile, cfg)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := getenv(EnvPushURL); v != "" {
		c.PushURL = v
	}
	if v := getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := getenv(EnvUserID); v != "" {
		c.UserID = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if c.Reconnect.InitialDelay <= 0 {
		c.Reconnect.InitialDelay = d.Reconnect.InitialDelay
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = d.Reconnect.MaxDelay
	}
	if c.Attachments.MaxFiles <= 0 {
		c.Attachments.MaxFiles = d.Attachments.MaxFiles
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate rejects configurations the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if err := checkURL("api_url", c.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("push_url", c.PushURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func checkURL(field, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", field, strings.Join(schemes, "/"), raw)
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(n), nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Token != "" {
		c.Token = "****"
	}
	return c
}
