// Package config loads process-wide defaults from the environment and the
// optional YAML config file used by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/apiguard/model"
)

// Defaults are read from the environment. They seed every other layer.
type Defaults struct {
	// ThrowErrors. ENV: APIGUARD_THROW_ERRORS
	ThrowErrors bool `env:"APIGUARD_THROW_ERRORS,default=false"`
	// Debug. ENV: APIGUARD_DEBUG
	Debug bool `env:"APIGUARD_DEBUG,default=false"`
	// StrictTypes. ENV: APIGUARD_STRICT_TYPES
	StrictTypes bool `env:"APIGUARD_STRICT_TYPES,default=false"`
	// Timeout bounds each HTTP call. ENV: APIGUARD_TIMEOUT
	Timeout time.Duration `env:"APIGUARD_TIMEOUT,default=30s"`
	// RedisAddr enables event forwarding when set. ENV: APIGUARD_REDIS_ADDR
	RedisAddr string `env:"APIGUARD_REDIS_ADDR"`
	// RedisChannel. ENV: APIGUARD_REDIS_CHANNEL
	RedisChannel string `env:"APIGUARD_REDIS_CHANNEL,default=apiguard:events"`
	// Metrics prints validation counters after a call. ENV: APIGUARD_METRICS
	Metrics bool `env:"APIGUARD_METRICS,default=false"`
}

// FromEnv decodes Defaults from the environment.
func FromEnv() (Defaults, error) {
	var d Defaults
	if err := envdecode.Decode(&d); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Defaults{}, fmt.Errorf("config: environment: %w", err)
	}
	return d, nil
}

// Options returns the validation options the defaults describe.
func (d Defaults) Options() model.Options {
	return model.Options{ThrowErrors: d.ThrowErrors, Debug: d.Debug, StrictTypes: d.StrictTypes}
}

// File is the CLI config file. Unset fields are nil or empty so callers can
// layer it over Defaults.
type File struct {
	Input        string
	BaseURL      string
	Operation    string
	Headers      map[string]string
	IncludeTags  []string
	ExcludeTags  []string
	ThrowErrors  *bool
	Debug        *bool
	StrictTypes  *bool
	Timeout      time.Duration
	RedisAddr    string
	RedisChannel string
	Metrics      *bool
	Verbose      *bool
}

// Override returns the validation overrides the file sets.
func (f File) Override() model.Override {
	return model.Override{ThrowErrors: f.ThrowErrors, Debug: f.Debug, StrictTypes: f.StrictTypes}
}

// LoadFile reads a YAML (or JSON) config file. Keys are matched ignoring
// case, dashes and underscores; unknown keys are rejected.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return f, fmt.Errorf("parse config file %q: %w", path, err)
	}

	for key, value := range raw {
		if err := f.set(NormalizeKey(key), value); err != nil {
			if errors.Is(err, errUnknownField) {
				return File{}, fmt.Errorf("config file %q: unknown field %q", path, key)
			}
			return File{}, fmt.Errorf("config field %q: %w", key, err)
		}
	}
	return f, nil
}

var errUnknownField = errors.New("unknown field")

func (f *File) set(key string, value any) error {
	var err error
	switch key {
	case "input":
		f.Input, err = valueAsString(value)
	case "baseurl":
		f.BaseURL, err = valueAsString(value)
	case "operation":
		f.Operation, err = valueAsString(value)
	case "headers":
		f.Headers, err = valueAsStringMap(value)
	case "includetags":
		f.IncludeTags, err = valueAsStringSlice(value)
	case "excludetags":
		f.ExcludeTags, err = valueAsStringSlice(value)
	case "throwerrors":
		f.ThrowErrors, err = valueAsBoolPtr(value)
	case "debug":
		f.Debug, err = valueAsBoolPtr(value)
	case "stricttypes", "strict":
		f.StrictTypes, err = valueAsBoolPtr(value)
	case "timeout":
		f.Timeout, err = valueAsDuration(value)
	case "redisaddr":
		f.RedisAddr, err = valueAsString(value)
	case "redischannel":
		f.RedisChannel, err = valueAsString(value)
	case "metrics":
		f.Metrics, err = valueAsBoolPtr(value)
	case "verbose":
		f.Verbose, err = valueAsBoolPtr(value)
	default:
		return errUnknownField
	}
	return err
}

// NormalizeKey lowercases key and strips dashes and underscores.
func NormalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return SplitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsStringMap(v any) (map[string]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		out := make(map[string]string, len(val))
		for k, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = str
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected mapping, got %T", v)
	}
}

// ParseBool accepts the spellings config files and flags commonly use.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true, nil
	case "false", "f", "0", "no", "n", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", s)
	}
}

func valueAsBoolPtr(v any) (*bool, error) {
	switch val := v.(type) {
	case bool:
		return &val, nil
	case string:
		b, err := ParseBool(val)
		if err != nil {
			return nil, err
		}
		return &b, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	case int:
		return time.Duration(val) * time.Second, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

// SplitAndTrim splits a comma-separated list, dropping empty items.
func SplitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}
