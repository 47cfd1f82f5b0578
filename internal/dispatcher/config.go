package dispatcher

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultDuration is the window used when none is configured
	DefaultDuration = 1000 * time.Millisecond
	// DefaultPolicy is the policy used when none is configured
	DefaultPolicy = LeadingEdge
)

// channelsAlias is accepted in raw maps alongside "channels"
const channelsAlias = "propTypesToDebounce"

// Config is the resolved configuration of one dispatcher.
// It is immutable once the dispatcher is built.
type Config struct {
	Channels []string      `mapstructure:"channels" json:"channels"`
	Duration time.Duration `mapstructure:"duration" json:"duration"`
	Type     Policy        `mapstructure:"type" json:"type"`
}

// Resolve validates and normalizes raw configuration.
//
// raw may be a bare channel name, a Config, a *Config, or a map as produced
// by viper/JSON decoding. In maps an integer duration is read as milliseconds
// and a string duration as either milliseconds or a Go duration ("250ms").
func Resolve(raw any) (Config, error) {
	var cfg Config

	switch v := raw.(type) {
	case string:
		cfg = Config{Channels: []string{v}}
	case Config:
		cfg = v
	case *Config:
		if v == nil {
			return Config{}, &ConfigError{Err: ErrInvalidConfigType}
		}
		cfg = *v
	case map[string]any:
		decoded, err := decodeMap(v)
		if err != nil {
			return Config{}, err
		}
		cfg = decoded
	default:
		return Config{}, &ConfigError{Err: fmt.Errorf("%w: %T", ErrInvalidConfigType, raw)}
	}

	return normalize(cfg)
}

func normalize(cfg Config) (Config, error) {
	names := make([]string, 0, len(cfg.Channels))
	seen := make(map[string]struct{}, len(cfg.Channels))
	for _, name := range cfg.Channels {
		name = strings.TrimSpace(name)
		if name == "" {
			return Config{}, &ConfigError{Field: "channels", Err: ErrMissingField}
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return Config{}, &ConfigError{Field: "channels", Err: ErrMissingField}
	}

	duration := cfg.Duration
	switch {
	case duration < 0:
		return Config{}, &ConfigError{Field: "duration", Err: ErrInvalidDuration}
	case duration == 0:
		duration = DefaultDuration
	}

	policy := DefaultPolicy
	if cfg.Type != "" {
		p, err := ParsePolicy(string(cfg.Type))
		if err != nil {
			return Config{}, err
		}
		policy = p
	}

	return Config{
		Channels: names,
		Duration: duration,
		Type:     policy,
	}, nil
}

func decodeMap(m map[string]any) (Config, error) {
	input := make(map[string]any, len(m))
	for k, v := range m {
		input[k] = v
	}
	if _, ok := input["channels"]; !ok {
		alias, ok := input[channelsAlias]
		if !ok {
			return Config{}, &ConfigError{Field: "channels", Err: ErrMissingField}
		}
		input["channels"] = alias
	}
	delete(input, channelsAlias)

	var raw struct {
		Channels []string      `mapstructure:"channels"`
		Duration time.Duration `mapstructure:"duration"`
		Type     string        `mapstructure:"type"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       MillisecondsHook,
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return Config{}, &ConfigError{Err: err}
	}
	if err := dec.Decode(input); err != nil {
		return Config{}, &ConfigError{Err: fmt.Errorf("%w: %v", ErrInvalidConfigType, err)}
	}

	return Config{
		Channels: raw.Channels,
		Duration: raw.Duration,
		Type:     Policy(raw.Type),
	}, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// MillisecondsHook is a mapstructure decode hook that reads plain numbers as
// milliseconds when decoding into time.Duration. Other strings are parsed
// with time.ParseDuration.
func MillisecondsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType || from == durationType {
		return data, nil
	}

	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Millisecond, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
	case reflect.String:
		s := strings.TrimSpace(reflect.ValueOf(data).String())
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return d, nil
	default:
		return data, nil
	}
}
