package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram struct {
		Token string `yaml:"token"`
	} `yaml:"telegram"`
	Server struct {
		Port string `yaml:"port" validate:"required,numeric"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path" validate:"required"`
	} `yaml:"database"`
	Scheduler struct {
		Timezone     string `yaml:"timezone" validate:"required"`
		RiskSpec     string `yaml:"risk_spec" validate:"required"`
		UnfreezeSpec string `yaml:"unfreeze_spec" validate:"required"`
	} `yaml:"scheduler"`
	Streak struct {
		ScanCapDays int `yaml:"scan_cap_days" validate:"min=1,max=3650"`
	} `yaml:"streak"`
	Log struct {
		Debug bool   `yaml:"debug"`
		Dir   string `yaml:"dir"`
	} `yaml:"log"`
}

var validate = validator.New()

// Load builds the configuration from environment variables and, when
// STREAKGUARD_CONFIG is set, overlays the YAML file it points to.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.Telegram.Token = getEnv("TG_TOKEN", "")
	cfg.Server.Port = getEnv("PORT", "8080")
	cfg.Database.Path = getEnv("DB_PATH", "./streakguard.db")
	cfg.Scheduler.Timezone = getEnv("TZ_NAME", "UTC")
	cfg.Scheduler.RiskSpec = getEnv("RISK_CRON", "* * * * *")
	cfg.Scheduler.UnfreezeSpec = getEnv("UNFREEZE_CRON", "5 0 * * *")
	cfg.Log.Dir = getEnv("LOG_DIR", "./logs")

	scanCap, err := strconv.Atoi(getEnv("STREAK_SCAN_CAP", "400"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAK_SCAN_CAP: %w", err)
	}
	cfg.Streak.ScanCapDays = scanCap

	cfg.Log.Debug, err = strconv.ParseBool(getEnv("DEBUG", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEBUG: %w", err)
	}

	if path := os.Getenv("STREAKGUARD_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the scheduler timezone used for "today" and for
// per-user notification times.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
