// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Missing platform credentials disable the corresponding feature; only the Discord
// token is hard-required (see ValidateDiscordReady).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Discord
	DiscordToken string

	// Twitch (app access token credentials)
	TwitchClientID     string
	TwitchClientSecret string

	// YouTube Data API
	YouTubeAPIKey string

	// Polling cadence
	TwitchPollInterval  time.Duration
	YouTubePollInterval time.Duration

	// Storage
	DataDir string

	// Ops HTTP server
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail when
// Twitch or YouTube credentials are missing; the pollers check readiness per
// platform and skip work for platforms that are not configured.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")

	var err error
	cfg.TwitchPollInterval, err = intervalEnv("TWITCH_POLL_INTERVAL", 180*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.YouTubePollInterval, err = intervalEnv("YOUTUBE_POLL_INTERVAL", 300*time.Second)
	if err != nil {
		return nil, err
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

func intervalEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (want duration like 180s): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// ValidateDiscordReady checks the single hard requirement for startup.
func (c *Config) ValidateDiscordReady() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
	}
	return nil
}

// TwitchReady reports whether Twitch polling can run.
func (c *Config) TwitchReady() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// YouTubeReady reports whether YouTube polling can run.
func (c *Config) YouTubeReady() bool {
	return c.YouTubeAPIKey != ""
}

// ConfigPath, StatePath and TicketsPath locate the three persisted documents
// under DataDir.
func (c *Config) ConfigPath() string  { return filepath.Join(c.DataDir, "config.json") }
func (c *Config) StatePath() string   { return filepath.Join(c.DataDir, "state.json") }
func (c *Config) TicketsPath() string { return filepath.Join(c.DataDir, "tickets.json") }
