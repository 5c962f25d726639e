package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment override (e.g. CRATE_SPOTIFY_CLIENT_ID).
const EnvPrefix = "CRATE_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database" envPrefix:"DATABASE_"`
	Server      ServerConfig      `toml:"server" envPrefix:"SERVER_"`
	Sync        SyncConfig        `toml:"sync" envPrefix:"SYNC_"`
	UI          UIConfig          `toml:"ui" envPrefix:"UI_"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify" envPrefix:"SPOTIFY_"`
}

// SpotifyConfig contains Spotify API credentials and the most recent OAuth2 token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id" env:"CLIENT_ID"`
	ClientSecret string    `toml:"client_secret" env:"CLIENT_SECRET"`
	RedirectURI  string    `toml:"redirect_uri" env:"REDIRECT_URI"`
	AccessToken  string    `toml:"access_token" env:"ACCESS_TOKEN"`
	RefreshToken string    `toml:"refresh_token" env:"REFRESH_TOKEN"`
	TokenExpiry  time.Time `toml:"token_expiry" env:"TOKEN_EXPIRY"`
	UserID       string    `toml:"user_id" env:"USER_ID"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string `toml:"host" env:"HOST"`
	Port          int    `toml:"port" env:"PORT"`
	SessionKey    string `toml:"session_key" env:"SESSION_KEY"`
	SecureCookies bool   `toml:"secure_cookies" env:"SECURE_COOKIES"`
}

// SyncConfig tunes the remote provider client and the reconciler.
type SyncConfig struct {
	PageSize        int     `toml:"page_size" env:"PAGE_SIZE"`
	PageConcurrency int     `toml:"page_concurrency" env:"PAGE_CONCURRENCY"`
	Workers         int     `toml:"workers" env:"WORKERS"`
	RateLimit       float64 `toml:"rate_limit" env:"RATE_LIMIT"`
	RequestTimeout  string  `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	StatePath   string `toml:"state_path" env:"STATE_PATH"`
	StateMaxAge string `toml:"state_max_age" env:"STATE_MAX_AGE"`
	LogPath     string `toml:"log_path" env:"LOG_PATH"`
}

// Timeout parses RequestTimeout, falling back to 30 seconds.
func (s SyncConfig) Timeout() time.Duration {
	if d, err := time.ParseDuration(s.RequestTimeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// MaxAge parses StateMaxAge, falling back to 24 hours.
func (u UIConfig) MaxAge() time.Duration {
	if d, err := time.ParseDuration(u.StateMaxAge); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// Addr returns the host:port the web server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Map returns the credentials in the shape expected by services.NewSpotifyService.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Token returns the stored OAuth2 token, or nil when no access token has been saved.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Expiry:       s.TokenExpiry,
		TokenType:    "Bearer",
	}
}

// Update stores a freshly issued token, keeping the previous refresh token when the new one omits it.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}

	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenExpiry = token.Expiry
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overlays environment variables onto config.
//
// Each path in envFiles is loaded with godotenv first; missing files are skipped and existing variables win.
func ApplyEnv(config *Config, envFiles ...string) error {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ResolveConfig loads path when it exists (defaults otherwise) and applies environment overrides.
func ResolveConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	if err := ApplyEnv(config, ".env"); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes config to path as TOML, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
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
