package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gookit/validate"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"roast-telegram-bot/bot"
)

// DefaultRoast is used when the roast source is missing or empty.
const DefaultRoast = "has an IQ so low, even a potato looks like a genius."

// Config holds all application configuration.
type Config struct {
	BotToken         string `yaml:"bot_token" validate:"required"`
	APIID            int    `yaml:"api_id" validate:"required|min:1"`
	APIHash          string `yaml:"api_hash" validate:"required"`
	RoastSource      string `yaml:"roast_source" validate:"required"`
	DefaultRoast     string `yaml:"default_roast"`
	RoastTemplate    string `yaml:"roast_template"`
	ReloadSchedule   string `yaml:"reload_schedule"`
	CooldownSecs     int    `yaml:"cooldown_secs" validate:"min:1"`
	StatsBackend     string `yaml:"stats_backend" validate:"in:json,sqlite"`
	StatsFile        string `yaml:"stats_file"`
	DBPath           string `yaml:"db_path"`
	Port             int    `yaml:"port" validate:"min:1|max:65535"`
	MetricsEnabled   bool   `yaml:"metrics_enabled"`
	DirectorySizeMB  int    `yaml:"directory_size_mb" validate:"min:1"`
	DirectoryTTLMins int    `yaml:"directory_ttl_mins" validate:"min:1"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" validate:"min:1"`
	LogLevel         string `yaml:"log_level" validate:"in:debug,info,warn,error"`
}

// Load reads configuration from an optional YAML file, applies defaults and
// environment overrides, and validates the result. A missing file is not an
// error: credentials usually come from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyDefaults(cfg)
	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("ROAST_BOT_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

func applyDefaults(cfg *Config) {
	if cfg.RoastSource == "" {
		cfg.RoastSource = "roasts.txt"
	}
	if cfg.DefaultRoast == "" {
		cfg.DefaultRoast = DefaultRoast
	}
	if cfg.RoastTemplate == "" {
		cfg.RoastTemplate = bot.DefaultTemplate
	}
	if cfg.ReloadSchedule == "" {
		cfg.ReloadSchedule = "@every 1h"
	}
	if cfg.CooldownSecs == 0 {
		cfg.CooldownSecs = 5
	}
	if cfg.StatsBackend == "" {
		cfg.StatsBackend = "json"
	}
	if cfg.StatsFile == "" {
		cfg.StatsFile = "stats.json"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./roast-bot.db"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.DirectorySizeMB == 0 {
		cfg.DirectorySizeMB = 8
	}
	if cfg.DirectoryTTLMins == 0 {
		cfg.DirectoryTTLMins = 24 * 60
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.BotToken = v
	}
	if v := os.Getenv("API_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("API_ID must be an integer, got %q", v)
		}
		cfg.APIID = id
	}
	if v := os.Getenv("API_HASH"); v != "" {
		cfg.APIHash = v
	}
	if v := os.Getenv("ROAST_SOURCE"); v != "" {
		cfg.RoastSource = v
	}
	if v := os.Getenv("STATS_FILE"); v != "" {
		cfg.StatsFile = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT must be an integer, got %q", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func validateConfig(cfg *Config) error {
	// Report the credentials explicitly; they are the usual failure.
	if cfg.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.APIID == 0 {
		return fmt.Errorf("API_ID is required")
	}
	if cfg.APIHash == "" {
		return fmt.Errorf("API_HASH is required")
	}

	v := validate.Struct(cfg)
	if !v.Validate() {
		return v.Errors
	}

	if _, err := cron.ParseStandard(cfg.ReloadSchedule); err != nil {
		return fmt.Errorf("invalid reload_schedule %q: %w", cfg.ReloadSchedule, err)
	}
	return nil
}
