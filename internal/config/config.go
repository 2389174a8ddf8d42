// Package config loads ccsync settings from flags, environment variables,
// an optional config file and an optional dotenv file.
//
// Precedence, highest first: flags bound by the caller, environment
// (CCSYNC_* and PG_DATABASE_URL), config file, local.env, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Keys understood by Load.
const (
	KeyDatabaseURL    = "database_url"
	KeyDefinitionsDir = "definitions_dir"
	KeyDefaultModel   = "default_model"
	KeyLogFile        = "log_file"
	KeyLogLevel       = "log_level"
)

// EnvFile is the dotenv file read from the working directory when present.
const EnvFile = "local.env"

// ErrConfiguration is returned when required settings are missing or
// malformed.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError names the offending setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Config holds resolved settings.
type Config struct {
	DatabaseURL    string `mapstructure:"database_url"`
	DefinitionsDir string `mapstructure:"definitions_dir"`
	DefaultModel   string `mapstructure:"default_model"`
	LogFile        string `mapstructure:"log_file"`
	LogLevel       string `mapstructure:"log_level"`

	// Source is the config file used, if any.
	Source string `mapstructure:"-"`
}

// New returns a viper instance with defaults and environment bindings set.
// Callers bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDefinitionsDir, "definitions")
	v.SetDefault(KeyDefaultModel, "gpt-4")
	v.SetDefault(KeyLogFile, "ccsync.log")
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix("CCSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// The database URL also answers to the unprefixed name used by
	// existing deployments.
	_ = v.BindEnv(KeyDatabaseURL, "CCSYNC_DATABASE_URL", "PG_DATABASE_URL")
	return v
}

// Load reads the optional dotenv file and config file into v and returns
// the resolved settings. configFile may be empty, in which case ccsync.yaml
// is searched in the working directory and $HOME/.config/ccsync.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if err := loadEnvFile(v, EnvFile); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("ccsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ccsync"))
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:    strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		DefinitionsDir: v.GetString(KeyDefinitionsDir),
		DefaultModel:   v.GetString(KeyDefaultModel),
		LogFile:        v.GetString(KeyLogFile),
		LogLevel:       v.GetString(KeyLogLevel),
		Source:         v.ConfigFileUsed(),
	}
	return cfg, nil
}

// loadEnvFile merges a dotenv file as the lowest-priority config layer.
// PG_DATABASE_URL in the file maps to database_url. A missing file is not
// an error.
func loadEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("dotenv")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, key := range env.AllKeys() {
		value := env.GetString(key)
		switch key {
		case "pg_database_url", "ccsync_database_url":
			v.SetDefault(KeyDatabaseURL, value)
		default:
			v.SetDefault(strings.TrimPrefix(key, "ccsync_"), value)
		}
	}
	return nil
}

// Validate checks the settings every storage command needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return &ConfigurationError{
			Key:    KeyDatabaseURL,
			Reason: "not set (use --database-url, CCSYNC_DATABASE_URL, PG_DATABASE_URL or " + EnvFile + ")",
		}
	}
	if c.DefinitionsDir == "" {
		return &ConfigurationError{Key: KeyDefinitionsDir, Reason: "must not be empty"}
	}
	return nil
}
