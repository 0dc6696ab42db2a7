package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/shuttle-schedule/internal/fetch"
	"github.com/pfrederiksen/shuttle-schedule/internal/freshness"
	"github.com/pfrederiksen/shuttle-schedule/internal/parser"
)

// DefaultDataDir is where snapshots are kept when no directory is configured
const DefaultDataDir = "~/.local/share/shuttle-schedule"

// Cache backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type SourceConfig struct {
	URL           string `yaml:"url" validate:"required,url"`
	UserAgent     string `yaml:"user_agent"`
	TimeHeader    string `yaml:"time_header" validate:"required"`
	MinBodyLength int    `yaml:"min_body_length" validate:"gte=0"`
	Permissive    bool   `yaml:"permissive"` // also take bus numbers from route and description
}

type StrategyConfig struct {
	Label         string `yaml:"label" validate:"required"`
	Template      string `yaml:"template" validate:"required"` // {target} is replaced by source.url
	Escape        bool   `yaml:"escape"`
	EnvelopeField string `yaml:"envelope_field"`
}

type FetchConfig struct {
	Timeout    time.Duration    `yaml:"timeout" validate:"gte=0"`
	Strategies []StrategyConfig `yaml:"strategies" validate:"dive"`
}

type FreshnessConfig struct {
	MaxAge time.Duration `yaml:"max_age" validate:"gte=0"`
}

type CacheConfig struct {
	Backend string `yaml:"backend" validate:"oneof=file postgres memory"`
	Dir     string `yaml:"dir" validate:"required_if=Backend file"`
	DSN     string `yaml:"dsn" validate:"required_if=Backend postgres"`
}

type BundleConfig struct {
	Path string `yaml:"path"` // local file or http(s) URL; empty disables the bundle
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// Config is the application configuration
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Freshness FreshnessConfig `yaml:"freshness"`
	Cache     CacheConfig     `yaml:"cache"`
	Bundle    BundleConfig    `yaml:"bundle"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns a working configuration that needs no file
func Default() *Config {
	templates := fetch.DefaultTemplates()
	strategies := make([]StrategyConfig, 0, len(templates))
	for _, t := range templates {
		strategies = append(strategies, StrategyConfig{
			Label:         t.Label,
			Template:      t.Pattern,
			Escape:        t.Escape,
			EnvelopeField: t.EnvelopeField,
		})
	}

	return &Config{
		Source: SourceConfig{
			URL:           fetch.DefaultTargetURL,
			UserAgent:     fetch.UserAgent,
			TimeHeader:    parser.DefaultTimeHeader,
			MinBodyLength: fetch.DefaultMinBodyLength,
		},
		Fetch: FetchConfig{
			Timeout:    fetch.DefaultTimeout,
			Strategies: strategies,
		},
		Freshness: FreshnessConfig{MaxAge: freshness.DefaultMaxAge},
		Cache: CacheConfig{
			Backend: BackendFile,
			Dir:     DefaultDataDir,
		},
		Bundle: BundleConfig{Path: "data/schedule.json"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (optional),
// a .env file in the working directory (optional) and SHUTTLE_* variables, in
// increasing priority. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// Existing environment variables take precedence over .env entries
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Source.URL = getEnv("SHUTTLE_URL", c.Source.URL)
	c.Source.UserAgent = getEnv("SHUTTLE_USER_AGENT", c.Source.UserAgent)
	c.Source.TimeHeader = getEnv("SHUTTLE_TIME_HEADER", c.Source.TimeHeader)
	c.Cache.Backend = getEnv("SHUTTLE_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Dir = getEnv("SHUTTLE_DATA_DIR", c.Cache.Dir)
	c.Cache.DSN = getEnv("SHUTTLE_DSN", c.Cache.DSN)
	c.Bundle.Path = getEnv("SHUTTLE_BUNDLE", c.Bundle.Path)
	c.Log.Level = getEnv("SHUTTLE_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("SHUTTLE_LOG_FILE", c.Log.File)

	var err error
	if c.Source.MinBodyLength, err = getIntEnv("SHUTTLE_MIN_BODY_LENGTH", c.Source.MinBodyLength); err != nil {
		return err
	}
	if c.Fetch.Timeout, err = getDurationEnv("SHUTTLE_FETCH_TIMEOUT", c.Fetch.Timeout); err != nil {
		return err
	}
	if c.Freshness.MaxAge, err = getDurationEnv("SHUTTLE_MAX_AGE", c.Freshness.MaxAge); err != nil {
		return err
	}
	return nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Templates returns the configured strategy templates, or the defaults when none are set
func (c *Config) Templates() []fetch.Template {
	if len(c.Fetch.Strategies) == 0 {
		return fetch.DefaultTemplates()
	}
	templates := make([]fetch.Template, 0, len(c.Fetch.Strategies))
	for _, s := range c.Fetch.Strategies {
		templates = append(templates, fetch.Template{
			Label:         s.Label,
			Pattern:       s.Template,
			Escape:        s.Escape,
			EnvelopeField: s.EnvelopeField,
		})
	}
	return templates
}

// Strategies expands the templates against the source URL
func (c *Config) Strategies() []fetch.Strategy {
	return fetch.ExpandAll(c.Source.URL, c.Templates())
}

// ChainConfig returns the fetch chain limits
func (c *Config) ChainConfig() fetch.Config {
	return fetch.Config{
		Timeout:       c.Fetch.Timeout,
		MinBodyLength: c.Source.MinBodyLength,
	}
}

// ParserOptions returns the parser settings
func (c *Config) ParserOptions() parser.Options {
	return parser.Options{
		TimeHeader: c.Source.TimeHeader,
		Permissive: c.Source.Permissive,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
