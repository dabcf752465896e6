package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPollInterval    = 60
	DefaultRequestTimeout  = 10
	DefaultValidateTimeout = 5
)

type Config struct {
	WebHost            string `mapstructure:"web_host"`
	WebPort            string `mapstructure:"web_port"`
	PollIntervalSec    int    `mapstructure:"poll_interval"`
	DBPath             string `mapstructure:"db_path"`
	RequestTimeoutSec  int    `mapstructure:"request_timeout"`
	ValidateTimeoutSec int    `mapstructure:"validate_timeout"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	ChipTablePath      string `mapstructure:"chip_table_path"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console

	TrapTarget    string `mapstructure:"trap_target"`
	TrapPort      int    `mapstructure:"trap_port"`
	TrapCommunity string `mapstructure:"trap_community"`
}

// LoadConfig reads defaults, then the optional YAML file at path, then the
// environment (WEB_PORT, POLL_INTERVAL, ...), later sources winning.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("web_host", "0.0.0.0")
	v.SetDefault("web_port", "8080")
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("db_path", "gocoax.db")
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("validate_timeout", DefaultValidateTimeout)
	v.SetDefault("insecure_skip_verify", true)
	v.SetDefault("chip_table_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("trap_target", "")
	v.SetDefault("trap_port", 162)
	v.SetDefault("trap_community", "public")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PollIntervalSec < 1 {
		cfg.PollIntervalSec = DefaultPollInterval
	}
	if cfg.RequestTimeoutSec <= 0 {
		cfg.RequestTimeoutSec = DefaultRequestTimeout
	}
	if cfg.ValidateTimeoutSec <= 0 {
		cfg.ValidateTimeoutSec = DefaultValidateTimeout
	}
	if cfg.TrapPort <= 0 || cfg.TrapPort > 65535 {
		cfg.TrapPort = 162
	}
	return &cfg, nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) ValidateTimeout() time.Duration {
	return time.Duration(c.ValidateTimeoutSec) * time.Second
}

func (c *Config) ListenAddr() string {
	return c.WebHost + ":" + c.WebPort
}
