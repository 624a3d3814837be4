// Package config loads the engine configuration from YAML with env
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML scalars like "5m" or "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", n.Value, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full engine configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Prices   PricesConfig   `yaml:"prices"`
	Feed     FeedConfig     `yaml:"feed"`
	Broker   BrokerConfig   `yaml:"broker"`
	Engine   EngineConfig   `yaml:"engine"`
	Ops      OpsConfig      `yaml:"ops"`
	LogLevel string         `yaml:"log_level"`
}

// DatabaseConfig configures the Postgres store.
type DatabaseConfig struct {
	DSN     string   `yaml:"dsn"`
	Timeout Duration `yaml:"timeout"`
}

// RedisConfig configures the warm quote cache. An empty Addr disables the
// warm tier.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PricesConfig configures the live price cache.
type PricesConfig struct {
	FeedURL     string   `yaml:"feed_url"`
	FeedKey     string   `yaml:"feed_key"`
	FeedSecret  string   `yaml:"feed_secret"`
	MaxSymbols  int      `yaml:"max_symbols"`
	PullTTL     Duration `yaml:"pull_ttl"`
	PullTimeout Duration `yaml:"pull_timeout"`
	PullRPS     float64  `yaml:"pull_rps"`
	PullBurst   int      `yaml:"pull_burst"`
	HistoryDays int      `yaml:"history_days"`
}

// FeedConfig configures the article feed and sentiment scorer collaborators.
type FeedConfig struct {
	ArticlesURL  string   `yaml:"articles_url"`
	SentimentURL string   `yaml:"sentiment_url"`
	Window       Duration `yaml:"window"`
	Timeout      Duration `yaml:"timeout"`
}

// BrokerConfig configures the order-submission collaborator.
type BrokerConfig struct {
	BaseURL   string   `yaml:"base_url"`
	APIKey    string   `yaml:"api_key"`
	APISecret string   `yaml:"api_secret"`
	Timeout   Duration `yaml:"timeout"`
}

// EngineConfig configures the strategy run and sweep cadence.
type EngineConfig struct {
	RunInterval         Duration `yaml:"run_interval"`
	SweepInterval       Duration `yaml:"sweep_interval"`
	MinConfidence       float64  `yaml:"min_confidence"`
	RequiredAcceptances int      `yaml:"required_acceptances"`
	DefaultAmount       float64  `yaml:"default_amount"`
	ShortTermTTL        Duration `yaml:"short_term_ttl"`
	LongTermTTL         Duration `yaml:"long_term_ttl"`
}

// OpsConfig configures the operational HTTP server.
type OpsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads the YAML config at path, applies defaults and env overrides.
// A missing file is fatal; this is startup configuration, not a cache.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("config: database.dsn is required (or STOCKPULSE_DB_DSN)")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = Duration(5 * time.Second)
	}
	if c.Prices.MaxSymbols == 0 {
		c.Prices.MaxSymbols = 30
	}
	if c.Prices.PullTTL == 0 {
		c.Prices.PullTTL = Duration(15 * time.Minute)
	}
	if c.Prices.PullTimeout == 0 {
		c.Prices.PullTimeout = Duration(10 * time.Second)
	}
	if c.Prices.PullRPS == 0 {
		c.Prices.PullRPS = 2
	}
	if c.Prices.PullBurst == 0 {
		c.Prices.PullBurst = 5
	}
	if c.Prices.HistoryDays == 0 {
		c.Prices.HistoryDays = 6
	}
	if c.Feed.Window == 0 {
		c.Feed.Window = Duration(30 * time.Minute)
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = Duration(10 * time.Second)
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = Duration(15 * time.Second)
	}
	if c.Engine.RunInterval == 0 {
		c.Engine.RunInterval = Duration(5 * time.Minute)
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = Duration(time.Minute)
	}
	if c.Engine.MinConfidence == 0 {
		c.Engine.MinConfidence = 0.7
	}
	if c.Engine.RequiredAcceptances == 0 {
		c.Engine.RequiredAcceptances = 2
	}
	if c.Engine.DefaultAmount == 0 {
		c.Engine.DefaultAmount = 100
	}
	if c.Engine.ShortTermTTL == 0 {
		c.Engine.ShortTermTTL = Duration(time.Hour)
	}
	if c.Engine.LongTermTTL == 0 {
		c.Engine.LongTermTTL = Duration(7 * 24 * time.Hour)
	}
	if c.Ops.Listen == "" {
		c.Ops.Listen = ":8090"
	}
}

// applyEnv lets secrets come from the environment instead of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("STOCKPULSE_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("STOCKPULSE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("STOCKPULSE_FEED_KEY"); v != "" {
		c.Prices.FeedKey = v
	}
	if v := os.Getenv("STOCKPULSE_FEED_SECRET"); v != "" {
		c.Prices.FeedSecret = v
	}
	if v := os.Getenv("STOCKPULSE_BROKER_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("STOCKPULSE_BROKER_SECRET"); v != "" {
		c.Broker.APISecret = v
	}
}
