package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mark3labs/apiguard/events"
	"github.com/mark3labs/apiguard/internal/spec"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/observe"
	"github.com/mark3labs/apiguard/operation"
	"github.com/mark3labs/apiguard/transport"
)

var callRunner = runCall

func newCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Execute one operation and validate its response",
		Long: "Execute one operation from an OpenAPI/Swagger document. The request body is validated " +
			"against the declared payload and the response against the model declared for its status. " +
			"Options can be provided via flags, config files, environment, or defaults.",
		Example: strings.TrimSpace(`  apiguard call --input openapi.yaml --operation getPet --param petId=7
  apiguard --config apiguard.yaml call --operation createPet --body @pet.json --strict --throw`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveCallConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate("call", true); err != nil {
				return err
			}
			return callRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addInputFlags(flags)
	addValidationFlags(flags)
	flags.String("base-url", "", "Base URL of the API (first server of the document when omitted)")
	flags.StringToString("param", nil, "Path, query or header parameter values (name=value)")
	flags.StringToString("header", nil, "Extra request headers (Name=value)")
	flags.String("body", "", "JSON request body, or @file to read it from a file")
	flags.Duration("timeout", 0, "Timeout for the HTTP call")
	flags.String("redis-addr", "", "Forward validation events to Redis at this address")
	flags.String("redis-channel", "", "Redis channel for forwarded events")
	flags.Bool("metrics", false, "Print validation counters in Prometheus text format to stderr after the call")

	return cmd
}

// callOutput is what call prints on success.
type callOutput struct {
	Operation string `json:"operation"`
	Status    int    `json:"status"`
	Data      any    `json:"data"`
}

func runCall(ctx context.Context, cfg *CallConfig) error {
	logger := cfg.logger()

	doc, err := loadDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ep, err := findEndpoint("call", doc, cfg.Operation)
	if err != nil {
		return err
	}

	body, err := readJSONArg("body", cfg.Body)
	if err != nil {
		return err
	}
	in := spec.Input{Params: cfg.Params, Body: body}
	if missing := ep.MissingParams(in); len(missing) > 0 {
		return newUsageError(fmt.Sprintf("call: missing required parameters: %s (use --param name=value)", strings.Join(missing, ", ")))
	}

	base, err := resolveBaseURL(cfg.BaseURL, doc)
	if err != nil {
		return err
	}

	emitter := events.New()
	if cfg.RedisAddr != "" {
		client, err := observe.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("call: %w", err)
		}
		defer client.Close()
		fwd := observe.NewRedisForwarder(client,
			observe.WithChannel(cfg.RedisChannel),
			observe.WithForwarderLogger(logger))
		fwd.Attach(emitter)
		logger.Debug("forwarding validation events", "addr", cfg.RedisAddr, "channel", fwd.Channel())
	}
	var registry *prometheus.Registry
	if cfg.Metrics {
		registry = prometheus.NewRegistry()
		observe.NewMetrics(registry).Attach(emitter)
	}

	var httpOpts []transport.HTTPOption
	if cfg.Timeout > 0 {
		httpOpts = append(httpOpts, transport.WithTimeout(cfg.Timeout))
	}
	exec := operation.NewExecutor(base,
		operation.WithTransport(transport.NewHTTP(httpOpts...)),
		operation.WithValidator(model.NewValidator(emitter, model.WithLogger(logger))),
		operation.WithHeaders(cfg.Headers),
		operation.WithLogger(logger),
	)

	resource := "api"
	if len(ep.Tags) > 0 {
		resource = ep.Tags[0]
	}
	client := operation.NewClient(exec, cfg.Options)
	endpoint := operation.Register(client.Resource(resource, ""), ep.ID, ep.Operation())

	res, err := endpoint.Call(ctx, in, model.Override{})
	if registry != nil {
		if werr := observe.WriteText(cfg.ErrOut, registry); werr != nil {
			logger.Warn("metrics not written", "error", werr)
		}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cfg.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(callOutput{Operation: endpoint.Op.Name(), Status: res.Status, Data: res.Data})
}

func resolveBaseURL(raw string, doc *spec.Document) (*url.URL, error) {
	if raw == "" && len(doc.Servers) > 0 {
		raw = doc.Servers[0]
	}
	if raw == "" {
		return nil, newUsageError("call: --base-url is required when the document declares no servers")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, newUsageError(fmt.Sprintf("call: invalid base URL %q", raw))
	}
	return u, nil
}
