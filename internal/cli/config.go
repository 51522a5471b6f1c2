package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mark3labs/apiguard/internal/config"
	"github.com/mark3labs/apiguard/internal/spec"
	"github.com/mark3labs/apiguard/model"
)

// CallConfig captures all inputs that influence a command after merging
// environment defaults, config file values, and CLI overrides.
type CallConfig struct {
	Input        string
	BaseURL      string
	Operation    string
	Params       map[string]string
	Headers      map[string]string
	Body         string
	Status       int
	IncludeTags  []string
	ExcludeTags  []string
	Options      model.Options
	Timeout      time.Duration
	RedisAddr    string
	RedisChannel string
	Metrics      bool
	ConfigPath   string
	Verbose      bool

	Out    io.Writer
	ErrOut io.Writer
}

func defaultCallConfig(env config.Defaults) CallConfig {
	return CallConfig{
		Status:       200,
		Options:      env.Options(),
		Timeout:      env.Timeout,
		RedisAddr:    env.RedisAddr,
		RedisChannel: env.RedisChannel,
		Metrics:      env.Metrics,
		Out:          os.Stdout,
		ErrOut:       os.Stderr,
	}
}

func addInputFlags(flags *pflag.FlagSet) {
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document")
	flags.StringSlice("include-tags", nil, "Only include operations with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude operations with these tags")
}

func addValidationFlags(flags *pflag.FlagSet) {
	flags.String("operation", "", "operationId (or \"<method> <path>\") to use")
	flags.Bool("strict", false, "Reject or strip properties the model does not declare")
	flags.Bool("throw", false, "Fail on the first validation error instead of logging it")
	flags.Bool("debug", false, "Log validation results")
}

func resolveCallConfig(cmd *cobra.Command) (*CallConfig, error) {
	env, err := config.FromEnv()
	if err != nil {
		return nil, newUsageError(err.Error())
	}
	cfg := defaultCallConfig(env)
	cfg.Out = cmd.OutOrStdout()
	cfg.ErrOut = cmd.ErrOrStderr()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		file, err := config.LoadFile(configPath)
		if err != nil {
			return nil, newUsageError(err.Error())
		}
		cfg.applyFile(file)
	}

	if err := applyCallFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return &cfg, nil
}

func (c *CallConfig) applyFile(f config.File) {
	if f.Input != "" {
		c.Input = f.Input
	}
	if f.BaseURL != "" {
		c.BaseURL = f.BaseURL
	}
	if f.Operation != "" {
		c.Operation = f.Operation
	}
	if len(f.Headers) > 0 {
		c.Headers = mergeMaps(c.Headers, f.Headers)
	}
	if f.IncludeTags != nil {
		c.IncludeTags = f.IncludeTags
	}
	if f.ExcludeTags != nil {
		c.ExcludeTags = f.ExcludeTags
	}
	c.Options = c.Options.Merge(f.Override())
	if f.Timeout > 0 {
		c.Timeout = f.Timeout
	}
	if f.RedisAddr != "" {
		c.RedisAddr = f.RedisAddr
	}
	if f.RedisChannel != "" {
		c.RedisChannel = f.RedisChannel
	}
	if f.Metrics != nil {
		c.Metrics = *f.Metrics
	}
	if f.Verbose != nil {
		c.Verbose = *f.Verbose
	}
}

func applyCallFlagOverrides(flags *pflag.FlagSet, cfg *CallConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"base-url", &cfg.BaseURL},
		{"operation", &cfg.Operation},
		{"body", &cfg.Body},
		{"data", &cfg.Body},
		{"redis-addr", &cfg.RedisAddr},
		{"redis-channel", &cfg.RedisChannel},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"strict", &cfg.Options.StrictTypes},
		{"throw", &cfg.Options.ThrowErrors},
		{"debug", &cfg.Options.Debug},
		{"metrics", &cfg.Metrics},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	if flags.Changed("param") {
		value, err := flags.GetStringToString("param")
		if err != nil {
			return err
		}
		cfg.Params = mergeMaps(cfg.Params, value)
	}
	if flags.Changed("header") {
		value, err := flags.GetStringToString("header")
		if err != nil {
			return err
		}
		cfg.Headers = mergeMaps(cfg.Headers, value)
	}
	if flags.Changed("include-tags") {
		value, err := flags.GetStringSlice("include-tags")
		if err != nil {
			return err
		}
		cfg.IncludeTags = sanitizeTags(value)
	}
	if flags.Changed("exclude-tags") {
		value, err := flags.GetStringSlice("exclude-tags")
		if err != nil {
			return err
		}
		cfg.ExcludeTags = sanitizeTags(value)
	}
	if flags.Changed("timeout") {
		value, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = value
	}
	if flags.Changed("status") {
		value, err := flags.GetInt("status")
		if err != nil {
			return err
		}
		cfg.Status = value
	}
	return nil
}

func (c *CallConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Operation = strings.TrimSpace(c.Operation)
	c.IncludeTags = sanitizeTags(c.IncludeTags)
	c.ExcludeTags = sanitizeTags(c.ExcludeTags)
}

func (c *CallConfig) validate(command string, needOperation bool) error {
	if c.Input == "" {
		return newUsageError(command + ": --input is required (set via flag or config file)")
	}
	if needOperation && c.Operation == "" {
		return newUsageError(command + ": --operation is required (set via flag or config file)")
	}
	if overlap := intersect(c.IncludeTags, c.ExcludeTags); len(overlap) > 0 {
		return newUsageError(fmt.Sprintf("%s: include/exclude tags overlap: %s", command, strings.Join(overlap, ", ")))
	}
	return nil
}

func (c *CallConfig) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	} else if c.Options.Debug {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(c.ErrOut, &slog.HandlerOptions{Level: level}))
}

// loadDocument loads and builds the document named by cfg.Input.
func loadDocument(ctx context.Context, cfg *CallConfig, logger *slog.Logger) (*spec.Document, error) {
	doc, err := spec.Load(ctx, cfg.Input, spec.WithLoaderLogger(logger))
	if err != nil {
		// Map structured spec errors into friendly messages
		var se *spec.SpecError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("spec: %s", se.Message)
			if se.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, se.Location)
			}
			if se.JSONPointer != "" {
				msg = fmt.Sprintf("%s\nPointer: %s", msg, se.JSONPointer)
			}
			return nil, newUsageError(msg)
		}
		return nil, err
	}

	built, err := spec.Build(ctx, doc,
		spec.WithIncludeTags(cfg.IncludeTags),
		spec.WithExcludeTags(cfg.ExcludeTags),
	)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	return built, nil
}

func findEndpoint(command string, doc *spec.Document, id string) (*spec.Endpoint, error) {
	if ep, ok := doc.Endpoint(id); ok {
		return ep, nil
	}
	ids := make([]string, 0, len(doc.Endpoints))
	for _, ep := range doc.Endpoints {
		ids = append(ids, ep.ID)
	}
	sort.Strings(ids)
	return nil, newUsageError(fmt.Sprintf("%s: unknown operation %q (available: %s)", command, id, strings.Join(ids, ", ")))
}

// readJSONArg decodes a JSON flag value. A leading "@" names a file.
func readJSONArg(name, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		var err error
		data, err = os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, newUsageError(fmt.Sprintf("--%s: %v", name, err))
		}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, newUsageError(fmt.Sprintf("--%s: invalid JSON: %v", name, err))
	}
	return v, nil
}

func mergeMaps(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func sanitizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[item] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[item]; ok {
			result = append(result, item)
		}
	}
	return result
}
