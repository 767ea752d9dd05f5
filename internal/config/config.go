// Package config loads application configuration from a config file
// and environment variables via viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when no ComicVine API key is configured.
var ErrMissingAPIKey = errors.New("comicvine api key not set: add ComicVineAPIKey to the config file or set LONGBOX_COMICVINE_API_KEY")

// Config holds all application settings. Every consumer receives an
// explicit instance; there is no global.
type Config struct {
	// ComicVine API settings.
	ComicVineAPIKey     string
	ComicVineBaseURL    string
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	RateLimitMinSpacing time.Duration

	// CBRO scraper settings.
	CBROBaseURL string
	CrawlDelay  time.Duration

	// Cache settings.
	CacheDBPath string
	CacheExpiry time.Duration

	// Output settings.
	OutputDir string
}

// Load reads configuration from the given config file (optional) and
// LONGBOX_* environment variables, applying defaults for everything
// but the API key.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("ComicVineBaseURL", "https://comicvine.gamespot.com/api")
	v.SetDefault("RateLimitRequests", 200)
	v.SetDefault("RateLimitWindowSeconds", 900)
	v.SetDefault("RateLimitMinSpacingSeconds", 1)
	v.SetDefault("CBROBaseURL", "https://www.comicbookreadingorders.com")
	v.SetDefault("CrawlDelaySeconds", 5)
	v.SetDefault("CacheDBPath", "comicvine_cache.db")
	v.SetDefault("CacheExpiryDays", 30)
	v.SetDefault("OutputDir", "Reading Lists")

	v.SetEnvPrefix("LONGBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The original tooling used COMICVINE_API, keep honoring it.
	_ = v.BindEnv("ComicVineAPIKey", "LONGBOX_COMICVINE_API_KEY", "COMICVINE_API")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	cfg := &Config{
		ComicVineAPIKey:     v.GetString("ComicVineAPIKey"),
		ComicVineBaseURL:    v.GetString("ComicVineBaseURL"),
		RateLimitRequests:   v.GetInt("RateLimitRequests"),
		RateLimitWindow:     time.Duration(v.GetInt("RateLimitWindowSeconds")) * time.Second,
		RateLimitMinSpacing: time.Duration(v.GetInt("RateLimitMinSpacingSeconds")) * time.Second,
		CBROBaseURL:         v.GetString("CBROBaseURL"),
		CrawlDelay:          time.Duration(v.GetInt("CrawlDelaySeconds")) * time.Second,
		CacheDBPath:         v.GetString("CacheDBPath"),
		CacheExpiry:         time.Duration(v.GetInt("CacheExpiryDays")) * 24 * time.Hour,
		OutputDir:           v.GetString("OutputDir"),
	}

	return cfg, nil
}

// RequireAPIKey returns ErrMissingAPIKey when the ComicVine key is
// absent. Commands that never touch the catalog skip this check.
func (c *Config) RequireAPIKey() error {
	if c.ComicVineAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
