// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads cachesweep settings from defaults, config files,
// the environment and command-line flags, in increasing precedence.
package config // import "github.com/toeirei/cachesweep/internal/config"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	fileName  = "cachesweep"
	envPrefix = "cachesweep"
	// DefaultDBFile is the sqlite file created under the data directory.
	DefaultDBFile = "cache_cleaner.db"
)

type Database struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
}

type HTTP struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type Engine struct {
	ExclusiveRuns bool `mapstructure:"exclusive_runs" yaml:"exclusive_runs"`
	MaxParallel   int  `mapstructure:"max_parallel" yaml:"max_parallel"`
}

type Scheduler struct {
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// Config is the full application configuration.
type Config struct {
	DataDir   string    `mapstructure:"data_dir" yaml:"data_dir"`
	AdminPIN  string    `mapstructure:"admin_pin" yaml:"admin_pin,omitempty"`
	Database  Database  `mapstructure:"database" yaml:"database"`
	HTTP      HTTP      `mapstructure:"http" yaml:"http"`
	Log       Log       `mapstructure:"log" yaml:"log"`
	Engine    Engine    `mapstructure:"engine" yaml:"engine"`
	Scheduler Scheduler `mapstructure:"scheduler" yaml:"scheduler"`
}

// Defaults returns the built-in value of every key.
func Defaults() map[string]any {
	return map[string]any{
		"data_dir":              "/data",
		"admin_pin":             "",
		"database.type":         "sqlite",
		"database.dsn":          "",
		"http.listen":           ":5001",
		"log.level":             "info",
		"log.format":            "text",
		"engine.exclusive_runs": false,
		"engine.max_parallel":   8,
		"scheduler.timezone":    "",
	}
}

// FlagKeys maps command-line flag names onto configuration keys.
var FlagKeys = map[string]string{
	"data-dir":       "data_dir",
	"db-type":        "database.type",
	"dsn":            "database.dsn",
	"listen":         "http.listen",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"exclusive-runs": "engine.exclusive_runs",
	"max-parallel":   "engine.max_parallel",
	"timezone":       "scheduler.timezone",
}

// legacyEnv lists unprefixed variables that are still honoured.
var legacyEnv = map[string]string{
	"data_dir":  "DATA_DIR",
	"admin_pin": "ADMIN_PIN",
}

// ConfigPath returns the full path of the user or system configuration file.
func ConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "cachesweep")
		default:
			configDir = "/etc/cachesweep"
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, "cachesweep")
	}
	return filepath.Join(configDir, fileName+".yaml"), nil
}

// LoadConfig resolves T from defaults, the first cachesweep.yaml found (or
// configFile when set), CACHESWEEP_* variables and the flags of cmd listed
// in FlagKeys.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, configFile *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	if configFile != nil && *configFile != "" {
		v.SetConfigFile(*configFile)
	}
	if userPath, err := ConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userPath))
	}
	if systemPath, err := ConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return c, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := strings.ToUpper(envPrefix + "_" + key)
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return c, err
		}
	}

	if cmd != nil {
		for name, key := range FlagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return c, err
				}
			}
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Load resolves the application Config and normalizes it.
func Load(cmd *cobra.Command, configFile *string) (Config, error) {
	c, err := LoadConfig[Config](cmd, Defaults(), configFile)
	if err != nil {
		return c, err
	}
	return c, c.Normalize()
}

// Normalize fills derived values and rejects unusable ones.
func (c *Config) Normalize() error {
	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Type != "sqlite" {
			return fmt.Errorf("database.dsn is required for %s", c.Database.Type)
		}
		c.Database.DSN = filepath.Join(c.DataDir, DefaultDBFile)
	}
	if c.Engine.MaxParallel < 0 {
		return fmt.Errorf("engine.max_parallel must not be negative, got %d", c.Engine.MaxParallel)
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the zone cron expressions are evaluated in.
func (s Scheduler) Location() (*time.Location, error) {
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.AdminPIN != "" {
		c.AdminPIN = "********"
	}
	return c
}

// Marshal renders c as YAML.
func Marshal[T any](c *T) ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteConfigFile writes c to the user or system configuration path and
// returns that path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := ConfigPath(system)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	// The file may hold the admin PIN.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
