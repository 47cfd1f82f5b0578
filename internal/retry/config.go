package retry

import (
	"encoding/json"
	"errors"
	"time"
)

// Config defines the configuration for the retry mechanism.
type Config struct {
	Enable      bool          `mapstructure:"enable" json:"enable"`             // Enable retry
	Attempts    int           `mapstructure:"attempts" json:"attempts"`         // Total attempts, the first one included
	Interval    time.Duration `mapstructure:"interval" json:"interval"`         // Base wait between attempts
	MaxInterval time.Duration `mapstructure:"max_interval" json:"max_interval"` // Upper bound for a single wait
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *Config {
	return &Config{
		Enable:      true,
		Attempts:    3,
		Interval:    500 * time.Millisecond,
		MaxInterval: 30 * time.Second,
	}
}

// Validate validates the retry configuration.
func (cfg *Config) Validate() error {
	if cfg == nil || !cfg.Enable {
		return nil
	}
	if cfg.Attempts <= 0 {
		return errors.New("attempts must be greater than zero")
	}
	if cfg.Interval < 0 || cfg.MaxInterval < 0 {
		return errors.New("intervals cannot be negative")
	}
	if cfg.MaxInterval > 0 && cfg.Interval > cfg.MaxInterval {
		return errors.New("max_interval must be greater than interval")
	}
	return nil
}

// Backoff returns the wait after the given failed attempt (1-based).
// The wait grows quadratically and is capped by MaxInterval.
func (cfg *Config) Backoff(attempt int) time.Duration {
	backoff := time.Duration(attempt*attempt) * cfg.Interval
	if cfg.MaxInterval > 0 && backoff > cfg.MaxInterval {
		backoff = cfg.MaxInterval
	}
	return backoff
}

// String returns a JSON string representation of the Config.
func (cfg *Config) String() string {
	data, _ := json.Marshal(cfg)
	return string(data)
}
