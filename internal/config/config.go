// Package config provides YAML-based configuration loading for Trellis.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Trellis configuration, loaded from config.yaml.
type Config struct {
	ExpertID     string             `yaml:"expert_id"`
	Database     DatabaseConfig     `yaml:"database"`
	Cache        CacheConfig        `yaml:"cache"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Engine       EngineConfig       `yaml:"engine"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Notify       NotifyConfig       `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the backing database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, mysql, or sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"` // sqlite only
}

// CacheConfig selects and configures the read-path cache backend.
type CacheConfig struct {
	Backend string `yaml:"backend"` // memory or redis
	Addr    string `yaml:"addr"`    // redis only
	TTLSec  int    `yaml:"ttl_sec"`
}

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // used by the chat client to reach the gateway
}

// EngineConfig tunes the sync engine.
type EngineConfig struct {
	RetryDelaySec int `yaml:"retry_delay_sec"` // channel reconnect delay
}

// HousekeepingConfig schedules the idle-conversation sweep.
type HousekeepingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Cron         string `yaml:"cron"`
	IdleAfterHrs int    `yaml:"idle_after_hrs"`
}

// NotifyConfig configures expert notification delivery.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack notifier settings.
type SlackConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord notifier settings.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = 5432
		case "mysql":
			c.Database.Port = 3306
		}
	}
	if c.Database.Name == "" {
		c.Database.Name = "trellis"
	}
	if c.Database.Path == "" {
		c.Database.Path = "trellis.db"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Addr == "" {
		c.Cache.Addr = "127.0.0.1:6379"
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 300
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8795
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", c.Gateway.Port)
	}
	if c.Engine.RetryDelaySec == 0 {
		c.Engine.RetryDelaySec = 5
	}
	if c.Housekeeping.Cron == "" {
		c.Housekeeping.Cron = "0 3 * * *"
	}
	if c.Housekeeping.IdleAfterHrs == 0 {
		c.Housekeeping.IdleAfterHrs = 14 * 24
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.ExpertID == "" {
		errs = append(errs, "expert_id is required")
	}
	switch c.Database.Driver {
	case "postgres", "mysql":
		if c.Database.User == "" {
			errs = append(errs, "database.user is required for "+c.Database.Driver)
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("cache.backend %q is not supported", c.Cache.Backend))
	}
	if c.Notify.Slack.Enabled {
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required when slack is enabled")
		}
		if c.Notify.Slack.ChannelID == "" {
			errs = append(errs, "notify.slack.channel_id is required when slack is enabled")
		}
	}
	if c.Notify.Discord.Enabled {
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required when discord is enabled")
		}
		if c.Notify.Discord.ChannelID == "" {
			errs = append(errs, "notify.discord.channel_id is required when discord is enabled")
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN builds the GORM connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return c.Path
	}
}

// RetryDelay returns the engine reconnect delay as a duration.
func (c *EngineConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// TTL returns the cache entry lifetime as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// IdleAfter returns the housekeeping idle window as a duration.
func (c *HousekeepingConfig) IdleAfter() time.Duration {
	return time.Duration(c.IdleAfterHrs) * time.Hour
}
