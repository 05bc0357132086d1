package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig contains tunables for the reconciliation engine.
type SyncConfig struct {
	FullScanStalenessHours   int     `toml:"full_scan_staleness_hours"`
	QuickScanCooldownMinutes int     `toml:"quick_scan_cooldown_minutes"`
	BlockSize                int     `toml:"block_size"`
	PageLimit                int     `toml:"page_limit"`
	MaxConcurrentUsers       int     `toml:"max_concurrent_users"`
	HTTPTimeoutSeconds       int     `toml:"http_timeout_seconds"`
	RetryAttempts            int     `toml:"retry_attempts"`
	RequestsPerSecond        float64 `toml:"requests_per_second"`
}

// FullScanStaleness returns how old a full like scan may be before another one is forced.
func (s SyncConfig) FullScanStaleness() time.Duration {
	return time.Duration(s.FullScanStalenessHours) * time.Hour
}

// QuickScanCooldown returns the minimum interval between incremental like scans.
func (s SyncConfig) QuickScanCooldown() time.Duration {
	return time.Duration(s.QuickScanCooldownMinutes) * time.Minute
}

// HTTPTimeout returns the per-request timeout for remote calls.
func (s SyncConfig) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}

// LoadEnv loads environment variables from a .env file if one exists.
//
// A missing file is not an error; shell environment always takes precedence.
func LoadEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
	}
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET environment variables override
// the credentials section so secrets can stay out of the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnvOverrides()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("SPOTIFY_CLIENT_ID"); id != "" {
		c.Credentials.Spotify.ClientID = id
	}
	if secret := os.Getenv("SPOTIFY_CLIENT_SECRET"); secret != "" {
		c.Credentials.Spotify.ClientSecret = secret
	}
}
