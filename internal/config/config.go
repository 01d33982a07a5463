// Package config loads the operator-facing settings for an anydb database:
// the data directory, default vector codec, stamp retention, and whether
// Prometheus metrics are registered. It follows the marmos91-dittofs
// layered-precedence pattern (env over file over defaults) using viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration surface for anydb and anydbctl.
type Config struct {
	// Dir is the directory holding anydb.data and its metadata file.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DefaultCodec names a vector codec: "raw", "zerocopy", "lz4", "zstd",
	// or "pco". Validate checks it; nothing in this module reads it when a
	// vector is created (vec.Import takes the codec id from its caller).
	DefaultCodec string `mapstructure:"default_codec" yaml:"default_codec"`
	// BlockSize is an element count per compressed block. ApplyDefaults and
	// Validate handle it; nothing in this module passes it to vec.Import.
	BlockSize int `mapstructure:"block_size" yaml:"block_size"`
	// StampRetention is K, a count of stamped change records per vector.
	// ApplyDefaults and Validate handle it; nothing in this module passes it
	// to vec.Import.
	StampRetention int `mapstructure:"stamp_retention" yaml:"stamp_retention"`
	// MetricsEnabled registers Prometheus collectors on Database.Open.
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// GetDefaultConfig returns the configuration used when no file or
// environment override is present.
func GetDefaultConfig() *Config {
	return &Config{
		Dir:            "./anydb-data",
		DefaultCodec:   "raw",
		BlockSize:      1024,
		StampRetention: 8,
		MetricsEnabled: false,
	}
}

// ApplyDefaults fills zero-valued fields of cfg from GetDefaultConfig.
func ApplyDefaults(cfg *Config) {
	def := GetDefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.DefaultCodec == "" {
		cfg.DefaultCodec = def.DefaultCodec
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.StampRetention == 0 {
		cfg.StampRetention = def.StampRetention
	}
}

// Validate rejects configurations that would fail later in confusing ways.
func Validate(cfg *Config) error {
	if cfg.Dir == "" {
		return fmt.Errorf("config: dir must not be empty")
	}
	switch cfg.DefaultCodec {
	case "raw", "zerocopy", "lz4", "zstd", "pco":
	default:
		return fmt.Errorf("config: unknown default_codec %q", cfg.DefaultCodec)
	}
	if cfg.BlockSize < 0 {
		return fmt.Errorf("config: block_size must be >= 0, got %d", cfg.BlockSize)
	}
	if cfg.StampRetention < 1 {
		return fmt.Errorf("config: stamp_retention must be >= 1, got %d", cfg.StampRetention)
	}
	return nil
}

// Load loads configuration from environment (ANYDB_* prefix), file, and
// defaults, in that order of precedence (highest first). A missing config
// file is not an error: environment and defaults still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	def := GetDefaultConfig()
	v.SetDefault("dir", def.Dir)
	v.SetDefault("default_codec", def.DefaultCodec)
	v.SetDefault("block_size", def.BlockSize)
	v.SetDefault("stamp_retention", def.StampRetention)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("ANYDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(".")
	v.SetConfigName("anydb")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}
