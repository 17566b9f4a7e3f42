// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Library  LibraryConfig  `yaml:"library"`
	Repo     RepoConfig     `yaml:"repo"`
	Resolver ResolverConfig `yaml:"resolver"`
	Player   PlayerConfig   `yaml:"player"`
	MPD      MPDConfig      `yaml:"mpd"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// LibraryConfig represents the file store configuration.
type LibraryConfig struct {
	Root string `yaml:"root" default:"library" validate:"required"`
}

// RepoConfig represents the metadata database configuration.
type RepoConfig struct {
	Path string `yaml:"path" default:"library/retrobox.db" validate:"required"`
}

// ResolverConfig represents remote-source resolution configuration.
type ResolverConfig struct {
	PollIntervalMs int              `yaml:"poll_interval_ms" default:"50" validate:"gte=10,lte=5000"`
	TimeoutMs      int              `yaml:"timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	Providers      []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single remote-source provider configuration.
type ProviderConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Name     string         `yaml:"name" validate:"required"`
	Settings map[string]any `yaml:"settings" validate:"required"`
}

// PlayerConfig represents playback engine configuration.
type PlayerConfig struct {
	TickIntervalMs int `yaml:"tick_interval_ms" default:"200" validate:"gte=50,lte=2000"`
}

// MPDConfig represents the playback device configuration. MusicDir
// must cover the library root so store paths resolve as MPD URIs;
// empty means "use the library root".
type MPDConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6600" validate:"required"`
	MusicDir string `yaml:"music_dir"`
}

// LoggerConfig represents logging configuration.
type LoggerConfig struct {
	Output string `yaml:"output" default:"stderr"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file. A missing file yields
// the defaults. Environment variables take precedence over file
// values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Run on defaults.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RETROBOX_ROOT"); v != "" {
		c.Library.Root = v
	}
	if v := os.Getenv("RETROBOX_DB"); v != "" {
		c.Repo.Path = v
	}
	if v := os.Getenv("RETROBOX_MPD_ADDR"); v != "" {
		c.MPD.Addr = v
	}
	if v := os.Getenv("RETROBOX_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// PollInterval returns the resolver poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Resolver.PollIntervalMs) * time.Millisecond
}

// ResolveTimeout returns the resolver deadline.
func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutMs) * time.Millisecond
}

// TickInterval returns the playback progress refresh period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Player.TickIntervalMs) * time.Millisecond
}

// MusicDir returns MPD's music directory, falling back to the library
// root when unset.
func (c *Config) MusicDir() string {
	if c.MPD.MusicDir != "" {
		return c.MPD.MusicDir
	}
	return c.Library.Root
}
