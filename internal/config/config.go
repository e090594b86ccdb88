package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "5m"-style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full service configuration. Every field has a sane default
// and may come from an optional YAML file; environment variables override
// the file, which keeps container deployments file-free.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// FeedURL is the upstream ICS endpoint. Required.
	FeedURL string `yaml:"feed_url"`

	// Timezone is the IANA zone anchoring the "today" boundary for the
	// date-window filter.
	Timezone string `yaml:"timezone"`

	// IncludeToday cuts the date window at start of day (keeping events
	// from earlier today) instead of at the request instant.
	IncludeToday bool `yaml:"include_today"`

	// FreshFor is how long a fetched event list is served without any
	// refresh activity.
	FreshFor Duration `yaml:"fresh_for"`

	// StaleFor is how long the list remains servable at all; between
	// FreshFor and StaleFor reads trigger a background refresh.
	StaleFor Duration `yaml:"stale_for"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		Listen:       ":8080",
		Timezone:     "Europe/Rome",
		IncludeToday: true,
		FreshFor:     Duration(5 * time.Minute),
		StaleFor:     Duration(15 * time.Minute),
	}
}

// Load reads the optional YAML file at path (skipped when path is empty or
// missing), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to env-only configuration.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.FeedURL == "" {
		return cfg, fmt.Errorf("feed URL is not configured (set FEED_URL or feed_url)")
	}
	if cfg.StaleFor < cfg.FreshFor {
		return cfg, fmt.Errorf("stale_for (%s) must be at least fresh_for (%s)", time.Duration(cfg.StaleFor), time.Duration(cfg.FreshFor))
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.FeedURL = v
	}
	if v := os.Getenv("FEED_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("FEED_INCLUDE_TODAY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeToday = b
		}
	}
	if v := os.Getenv("FEED_FRESH_FOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FreshFor = Duration(d)
		}
	}
	if v := os.Getenv("FEED_STALE_FOR"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StaleFor = Duration(d)
		}
	}
}
