package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	SourceServerURL     string        `mapstructure:"SOURCE_SERVER_URL"`
	SourceServerID      int           `mapstructure:"SOURCE_SERVER_ID"`
	SourceTimeout       time.Duration `mapstructure:"SOURCE_TIMEOUT"`
	ResourceTypes       []string      `mapstructure:"RESOURCE_TYPES"`
	BatchSize           int           `mapstructure:"BATCH_SIZE"`
	MaxConcurrent       int           `mapstructure:"MAX_CONCURRENT"`
	CheckpointEvery     int           `mapstructure:"CHECKPOINT_EVERY_PAGES"`
	CleanupInterval     time.Duration `mapstructure:"CLEANUP_INTERVAL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SOURCE_SERVER_ID", 1)
	v.SetDefault("SOURCE_TIMEOUT", "30s")
	v.SetDefault("BATCH_SIZE", 100)
	v.SetDefault("MAX_CONCURRENT", 5)
	v.SetDefault("CHECKPOINT_EVERY_PAGES", 5)
	v.SetDefault("CLEANUP_INTERVAL", "1h")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SOURCE_SERVER_URL")
	v.BindEnv("SOURCE_SERVER_ID")
	v.BindEnv("SOURCE_TIMEOUT")
	v.BindEnv("RESOURCE_TYPES")
	v.BindEnv("BATCH_SIZE")
	v.BindEnv("MAX_CONCURRENT")
	v.BindEnv("CHECKPOINT_EVERY_PAGES")
	v.BindEnv("CLEANUP_INTERVAL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ResourceTypes == nil {
		if types := v.GetString("RESOURCE_TYPES"); types != "" {
			cfg.ResourceTypes = strings.Split(types, ",")
		}
	}

	if cfg.SourceServerURL == "" {
		return nil, fmt.Errorf("SOURCE_SERVER_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("BATCH_SIZE must be between 1 and 1000, got %d", c.BatchSize)
	}
	if c.MaxConcurrent < 1 || c.MaxConcurrent > 50 {
		return fmt.Errorf("MAX_CONCURRENT must be between 1 and 50, got %d", c.MaxConcurrent)
	}
	if c.SourceServerID < 1 {
		return fmt.Errorf("SOURCE_SERVER_ID must be a positive integer, got %d", c.SourceServerID)
	}
	if c.CheckpointEvery < 1 {
		return fmt.Errorf("CHECKPOINT_EVERY_PAGES must be at least 1, got %d", c.CheckpointEvery)
	}
	for _, rt := range c.ResourceTypes {
		if strings.TrimSpace(rt) == "" {
			return fmt.Errorf("RESOURCE_TYPES must not contain empty entries")
		}
	}
	return nil
}
