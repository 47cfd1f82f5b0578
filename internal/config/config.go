package config

import (
	"fmt"
	"strings"
	"time"

	"actiongate/internal/dispatcher"
	"actiongate/internal/logger"
	"actiongate/internal/validator"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	// AppName names the binary, the config file and the default sink prefixes
	AppName = "actiongate"

	// EnvPrefix prefixes environment overrides, e.g. ACTIONGATE_SERVER_ADDRESS
	EnvPrefix = "ACTIONGATE"
)

// searchPaths are tried in order when no config file is given
var searchPaths = []string{
	".",
	"$HOME/.config/" + AppName,
	"$HOME/." + AppName,
	"/etc/" + AppName,
}

// LogConfig is the logger section of the service configuration
type LogConfig = logger.Config

// Config represents the complete service configuration
type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	Log    LogConfig     `mapstructure:"log"`
	Groups []GroupConfig `mapstructure:"groups" validate:"required,min=1,dive"`
	Sinks  SinkConfig    `mapstructure:"sinks"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	Mode            string        `mapstructure:"mode" validate:"omitempty,oneof=debug release test"` // gin mode
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// GroupConfig describes one dispatcher: a set of debounced channels sharing
// a window and policy, and the actions bound behind them.
type GroupConfig struct {
	Name     string         `mapstructure:"name" validate:"required,channel"`
	Channels []string       `mapstructure:"channels" validate:"required,min=1,dive,channel"`
	Duration time.Duration  `mapstructure:"duration" validate:"gte=0"` // plain numbers are milliseconds
	Type     string         `mapstructure:"type" validate:"policy"`
	Actions  []string       `mapstructure:"actions" validate:"dive,channel"` // names bound to sinks
	Metadata map[string]any `mapstructure:"metadata"`
}

// Dispatcher returns the dispatcher configuration of the group
func (g GroupConfig) Dispatcher() dispatcher.Config {
	return dispatcher.Config{
		Channels: append([]string(nil), g.Channels...),
		Duration: g.Duration,
		Type:     dispatcher.Policy(g.Type),
	}
}

// LoadConfig loads the service configuration. An empty path searches the
// default locations for actiongate.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		dispatcher.MillisecondsHook,
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults registers default values so environment overrides apply to them
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)

	v.SetDefault("sinks.queue_size", 100)
	v.SetDefault("sinks.timeout", 10*time.Second)
	v.SetDefault("sinks.log.enabled", true)
	v.SetDefault("sinks.log.level", "info")
	v.SetDefault("sinks.webhook.timeout", 10*time.Second)
	v.SetDefault("sinks.webhook.retry.enable", true)
	v.SetDefault("sinks.webhook.retry.attempts", 3)
	v.SetDefault("sinks.webhook.retry.interval", 500*time.Millisecond)
	v.SetDefault("sinks.webhook.retry.max_interval", 30*time.Second)
	v.SetDefault("sinks.slack.username", AppName)
	v.SetDefault("sinks.redis.prefix", AppName+".")
	v.SetDefault("sinks.redis.dial_timeout", 5*time.Second)
	v.SetDefault("sinks.redis.read_timeout", 3*time.Second)
	v.SetDefault("sinks.redis.write_timeout", 3*time.Second)
	v.SetDefault("sinks.kafka.batch_timeout", 10*time.Millisecond)
	v.SetDefault("sinks.rabbitmq.exchange", AppName)
	v.SetDefault("sinks.rabbitmq.heartbeat", 10*time.Second)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		if _, ok := seen[g.Name]; ok {
			return fmt.Errorf("duplicate group name: %s", g.Name)
		}
		seen[g.Name] = struct{}{}

		// Surface dispatcher configuration errors at startup, not at first trigger
		if _, err := dispatcher.Resolve(g.Dispatcher()); err != nil {
			return fmt.Errorf("invalid group %s: %w", g.Name, err)
		}
	}

	if c.Sinks.Webhook.Enabled {
		if err := c.Sinks.Webhook.Retry.Validate(); err != nil {
			return fmt.Errorf("invalid webhook retry config: %w", err)
		}
	}

	return nil
}
