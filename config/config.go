// Package config loads server configuration from defaults, an optional TOML
// file and BILLENGINE_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port     int
	Database DatabaseConfig
	Schedule ScheduleConfig
	LogLevel string
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ScheduleConfig holds generation settings.
type ScheduleConfig struct {
	HorizonMonths int
	Cron          string
}

// Load reads configuration. Env overrides use prefix BILLENGINE_, e.g.
// BILLENGINE_SCHEDULE_HORIZON_MONTHS=6. A config file is optional; its path
// comes from BILLENGINE_CONFIG or ./billengine.toml.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "billengine.db")
	v.SetDefault("schedule.horizon_months", 3)
	v.SetDefault("schedule.cron", "@hourly")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")
	v.SetConfigName("billengine")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Port: v.GetInt("port"),
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Schedule: ScheduleConfig{
			HorizonMonths: v.GetInt("schedule.horizon_months"),
			Cron:          v.GetString("schedule.cron"),
		},
		LogLevel: v.GetString("log.level"),
	}

	if cfg.Schedule.HorizonMonths < 1 {
		return Config{}, fmt.Errorf("schedule.horizon_months must be >= 1, got %d", cfg.Schedule.HorizonMonths)
	}
	return cfg, nil
}
