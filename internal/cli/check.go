package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
)

var checkRunner = runCheck

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a recorded response body offline",
		Long: "Resolve the model an operation declares for --status and validate --data against it " +
			"without sending any request. Failures are always reported as errors.",
		Example: strings.TrimSpace(`  apiguard check --input openapi.yaml --operation getPet --status 200 --data @pet.json
  apiguard check --input openapi.yaml --operation getPet --data '{"id":1,"name":"Rex"}' --strict`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveCallConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate("check", true); err != nil {
				return err
			}
			return checkRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	addInputFlags(flags)
	addValidationFlags(flags)
	flags.Int("status", 200, "Response status to resolve the model for")
	flags.String("data", "", "JSON response body, or @file to read it from a file")

	return cmd
}

func runCheck(ctx context.Context, cfg *CallConfig) error {
	logger := cfg.logger()

	doc, err := loadDocument(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ep, err := findEndpoint("check", doc, cfg.Operation)
	if err != nil {
		return err
	}
	data, err := readJSONArg("data", cfg.Body)
	if err != nil {
		return err
	}

	catalog.Label(ep.ID, ep.Responses)
	cat := catalog.Catalog{Operation: ep.ID, Declared: ep.Responses}
	resolved, err := cat.Resolve(cfg.Status, data)
	if err != nil {
		return err
	}

	opts := cfg.Options
	opts.ThrowErrors = true
	validated, err := model.NewValidator(nil, model.WithLogger(logger)).Validate(ctx, resolved.Model, data, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(cfg.Out, "%s %d: valid against %s\n", ep.ID, cfg.Status, resolved.Model.Name)
	if opts.StrictTypes {
		enc := json.NewEncoder(cfg.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(validated)
	}
	return nil
}
