package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config represents the application configuration
type Config struct {
	Strava   StravaConfig   `json:"strava"`
	Server   ServerConfig   `json:"server"`
	Sync     SyncConfig     `json:"sync"`
	Database DatabaseConfig `json:"database"`
	Log      LogConfig      `json:"log"`
}

// StravaConfig holds the process-level Strava app credentials and endpoints.
// ClientID/ClientSecret are optional: they can also come from the request
// or from the centrally stored row.
type StravaConfig struct {
	ClientID     string   `json:"client_id" env:"STRAVA_CLIENT_ID"`
	ClientSecret string   `json:"client_secret" env:"STRAVA_CLIENT_SECRET"`
	AuthURL      string   `json:"auth_url" env:"STRAVA_AUTH_URL"`
	TokenURL     string   `json:"token_url" env:"STRAVA_TOKEN_URL"`
	APIBaseURL   string   `json:"api_base_url" env:"STRAVA_API_BASE_URL"`
	HTTPTimeout  Duration `json:"http_timeout" env:"STRAVA_HTTP_TIMEOUT"`
	RefreshSkew  Duration `json:"refresh_skew" env:"STRAVA_REFRESH_SKEW"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string   `json:"addr" env:"HTTP_ADDR"`
	JWTSecret       string   `json:"jwt_secret" env:"AUTH_JWT_SECRET"`
	CronToken       string   `json:"cron_token" env:"CRON_TOKEN"`
	ShutdownTimeout Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// SyncConfig holds sync pipeline settings
type SyncConfig struct {
	ScheduleInterval Duration `json:"schedule_interval" env:"SYNC_SCHEDULE_INTERVAL"`
	Lookback         Duration `json:"lookback" env:"SYNC_LOOKBACK"`
	Concurrency      int      `json:"concurrency" env:"SYNC_CONCURRENCY"`
	LockTTL          Duration `json:"lock_ttl" env:"SYNC_LOCK_TTL"`
	RedisAddr        string   `json:"redis_addr" env:"SYNC_REDIS_ADDR"`
	Disabled         bool     `json:"disabled" env:"SYNC_SCHEDULE_DISABLED"`
}

// DatabaseConfig holds the SQLite location
type DatabaseConfig struct {
	Path string `json:"path" env:"DATABASE_PATH"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Env    string `json:"env" env:"ENV"`
}

// Duration is a time.Duration that reads "90s" style strings from JSON and env.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Strava: StravaConfig{
			AuthURL:     "https://www.strava.com/oauth/authorize",
			TokenURL:    "https://www.strava.com/oauth/token",
			APIBaseURL:  "https://www.strava.com/api/v3",
			HTTPTimeout: Duration{30 * time.Second},
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Sync: SyncConfig{
			ScheduleInterval: Duration{24 * time.Hour},
			Lookback:         Duration{7 * 24 * time.Hour},
			Concurrency:      4,
			LockTTL:          Duration{10 * time.Minute},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Env:    "prod",
		},
	}
}

// Load reads the optional config file and then applies environment overrides.
// A missing file is not an error; every setting has a default or an env var.
func Load() (*Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, ErrNoConfig) {
		defaults := DefaultConfig()
		cfg = &defaults
	} else if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.Database.Path == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.Database.Path = filepath.Join(dir, "fitsync.db")
	}

	return cfg, nil
}

// LoadFile reads a JSON config file on top of DefaultConfig
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Unmarshal over the defaults so missing keys keep their default value
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to path
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks that settings are usable
func (c *Config) Validate() error {
	if c.Strava.TokenURL == "" || c.Strava.AuthURL == "" || c.Strava.APIBaseURL == "" {
		return errors.New("strava.auth_url, strava.token_url and strava.api_base_url are required")
	}
	if c.Strava.HTTPTimeout.Duration <= 0 {
		return fmt.Errorf("strava.http_timeout must be positive, got %v", c.Strava.HTTPTimeout)
	}
	if c.Strava.RefreshSkew.Duration < 0 {
		return fmt.Errorf("strava.refresh_skew must not be negative, got %v", c.Strava.RefreshSkew)
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.ScheduleInterval.Duration <= 0 {
		return fmt.Errorf("sync.schedule_interval must be positive, got %v", c.Sync.ScheduleInterval)
	}
	if c.Sync.Lookback.Duration <= 0 {
		return fmt.Errorf("sync.lookback must be positive, got %v", c.Sync.Lookback)
	}
	if c.Sync.LockTTL.Duration <= 0 {
		return fmt.Errorf("sync.lock_ttl must be positive, got %v", c.Sync.LockTTL)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be \"json\" or \"text\", got %q", c.Log.Format)
	}

	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	if p := os.Getenv("FITSYNC_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".fitsync"), nil
}
