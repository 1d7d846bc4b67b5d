package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Gateway     GatewayConfig     `toml:"gateway"`
	Sync        SyncConfig        `toml:"sync"`
	Player      PlayerConfig      `toml:"player"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the public PKCE client settings. No client secret is stored.
type SpotifyConfig struct {
	ClientID    string `toml:"client_id" env:"SIFT_SPOTIFY_CLIENT_ID"`
	RedirectURI string `toml:"redirect_uri" env:"SIFT_SPOTIFY_REDIRECT_URI"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"SIFT_DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"SIFT_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"SIFT_DATABASE_MAX_IDLE_CONNS"`
	MaxSizeMB    int    `toml:"max_size_mb" env:"SIFT_DATABASE_MAX_SIZE_MB"`
}

// ServerConfig contains settings for the loopback OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host" env:"SIFT_SERVER_HOST"`
	Port int    `toml:"port" env:"SIFT_SERVER_PORT"`
}

// GatewayConfig tunes outbound API calls.
type GatewayConfig struct {
	BaseURL           string        `toml:"base_url" env:"SIFT_GATEWAY_BASE_URL"`
	MaxRetries        int           `toml:"max_retries" env:"SIFT_GATEWAY_MAX_RETRIES"`
	InitialDelay      time.Duration `toml:"initial_delay" env:"SIFT_GATEWAY_INITIAL_DELAY"`
	RequestsPerSecond float64       `toml:"requests_per_second" env:"SIFT_GATEWAY_REQUESTS_PER_SECOND"`
}

// SyncConfig holds collection cache policies.
type SyncConfig struct {
	PageSize          int           `toml:"page_size" env:"SIFT_SYNC_PAGE_SIZE"`
	PlaylistTTL       time.Duration `toml:"playlist_ttl" env:"SIFT_SYNC_PLAYLIST_TTL"`
	PlaylistTracksTTL time.Duration `toml:"playlist_tracks_ttl" env:"SIFT_SYNC_PLAYLIST_TRACKS_TTL"`
	SweepInterval     time.Duration `toml:"sweep_interval" env:"SIFT_SYNC_SWEEP_INTERVAL"`
}

// PlayerConfig holds playback device settings.
type PlayerConfig struct {
	DeviceName       string        `toml:"device_name" env:"SIFT_PLAYER_DEVICE_NAME"`
	ReadyTimeout     time.Duration `toml:"ready_timeout" env:"SIFT_PLAYER_READY_TIMEOUT"`
	PollInterval     time.Duration `toml:"poll_interval" env:"SIFT_PLAYER_POLL_INTERVAL"`
	FastPollInterval time.Duration `toml:"fast_poll_interval" env:"SIFT_PLAYER_FAST_POLL_INTERVAL"`
	FastPollDuration time.Duration `toml:"fast_poll_duration" env:"SIFT_PLAYER_FAST_POLL_DURATION"`
	RetryDelay       time.Duration `toml:"retry_delay" env:"SIFT_PLAYER_RETRY_DELAY"`
}

// LogConfig sets the log level name (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level" env:"SIFT_LOG_LEVEL"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults, and SIFT_* environment variables override both.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides config values from SIFT_* environment variables.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports settings that make authenticated commands impossible.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientID == "your_spotify_client_id" {
		return fmt.Errorf("%w: credentials.spotify.client_id must be set in config.toml or SIFT_SPOTIFY_CLIENT_ID", ErrMissingCredentials)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: credentials.spotify.redirect_uri is empty", ErrInvalidConfig)
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 50 {
		return fmt.Errorf("%w: sync.page_size must be between 1 and 50", ErrInvalidConfig)
	}
	return nil
}
