// Package config loads expense store settings from defaults, an optional
// TOML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBbolt  = "bbolt"

	defaultDriver       = DriverSQLite
	defaultDBPath       = "expenses.db"
	defaultBusyTimeout  = 5 * time.Second
	defaultLogLevel     = "info"
	defaultLogMaxSizeMB = 10
	defaultLogMaxFiles  = 5
)

// ErrInvalidConfig is returned when a config layer cannot be parsed or the
// merged result fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the merged configuration for one process.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig selects and tunes the storage backend.
type StorageConfig struct {
	Driver      string        `toml:"driver" env:"EXPENSE_DRIVER"`
	Path        string        `toml:"path" env:"EXPENSE_DB_PATH"`
	BusyTimeout time.Duration `toml:"busy_timeout" env:"EXPENSE_BUSY_TIMEOUT"`
}

// LoggingConfig controls log level and the optional rotating log file.
type LoggingConfig struct {
	Level     string `toml:"level" env:"EXPENSE_LOG_LEVEL"`
	File      string `toml:"file" env:"EXPENSE_LOG_FILE"`
	MaxSizeMB int    `toml:"max_size_mb" env:"EXPENSE_LOG_MAX_SIZE_MB"`
	MaxFiles  int    `toml:"max_files" env:"EXPENSE_LOG_MAX_FILES"`
}

// LoadOptions controls where configuration comes from. Layers apply in
// order: defaults, ConfigPath, Env (or the process environment when nil),
// then Flags.
type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

// FlagOverrides holds command-line values. Nil or empty values leave the
// lower layers in place.
type FlagOverrides struct {
	Driver *string
	DBPath *string
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Driver:      defaultDriver,
			Path:        defaultDBPath,
			BusyTimeout: defaultBusyTimeout,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load merges every layer named by opts over DefaultConfig and validates the
// result. A missing config file is not an error.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	if err := loadAndApplyFile(opts.ConfigPath, &cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg, opts.Env); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type rawConfig struct {
	Storage *rawStorage `toml:"storage"`
	Logging *rawLogging `toml:"logging"`
}

type rawStorage struct {
	Driver      *string `toml:"driver"`
	Path        *string `toml:"path"`
	BusyTimeout *string `toml:"busy_timeout"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}

	if raw.Storage != nil {
		setString(raw.Storage.Driver, &cfg.Storage.Driver)
		setString(raw.Storage.Path, &cfg.Storage.Path)
		if err := setDuration("storage.busy_timeout", raw.Storage.BusyTimeout, &cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if raw.Logging != nil {
		setString(raw.Logging.Level, &cfg.Logging.Level)
		setString(raw.Logging.File, &cfg.Logging.File)
		setInt(raw.Logging.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		setInt(raw.Logging.MaxFiles, &cfg.Logging.MaxFiles)
	}
	return nil
}

func applyEnvOverrides(cfg *Config, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	if flags.Driver != nil && *flags.Driver != "" {
		cfg.Storage.Driver = *flags.Driver
	}
	if flags.DBPath != nil && *flags.DBPath != "" {
		cfg.Storage.Path = *flags.DBPath
	}
}

// Validate reports the first invalid setting as ErrInvalidConfig.
func Validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case DriverSQLite, DriverBbolt:
	default:
		return fmt.Errorf("%w: storage.driver must be %q or %q, got %q", ErrInvalidConfig, DriverSQLite, DriverBbolt, cfg.Storage.Driver)
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("%w: storage.path must not be empty", ErrInvalidConfig)
	}
	if cfg.Storage.BusyTimeout < 0 {
		return fmt.Errorf("%w: storage.busy_timeout must not be negative", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxFiles < 0 {
		return fmt.Errorf("%w: logging rotation limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

func setString(value *string, target *string) {
	if value != nil {
		*target = *value
	}
}

func setInt(value *int, target *int) {
	if value != nil {
		*target = *value
	}
}

func setDuration(key string, value *string, target *time.Duration) error {
	if value == nil {
		return nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	*target = d
	return nil
}
