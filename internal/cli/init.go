package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/apiguard/internal/spec"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
	// Input, when set, is loaded so the file can be seeded from it.
	Input     string
	BaseURL   string
	Operation string

	Out    io.Writer
	ErrOut io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold an apiguard configuration file",
		Long: "Scaffold a commented apiguard configuration file. With --input the document is loaded, " +
			"input, baseURL and operation are filled in and the declared operations are listed for reference.",
		Example: strings.TrimSpace(`  apiguard init
  apiguard init --input openapi.yaml --operation getPet --out apiguard.yaml`),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg := &InitConfig{Out: cmd.OutOrStdout(), ErrOut: cmd.ErrOrStderr()}
			var err error
			if cfg.OutputPath, err = flags.GetString("out"); err != nil {
				return err
			}
			if cfg.Force, err = flags.GetBool("force"); err != nil {
				return err
			}
			if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
				return err
			}
			if cfg.Input, err = flags.GetString("input"); err != nil {
				return err
			}
			if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
				return err
			}
			if cfg.Operation, err = flags.GetString("operation"); err != nil {
				return err
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", "apiguard.yaml", "Where to write the config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")
	cmd.Flags().String("input", "", "Swagger/OpenAPI document to seed the config from")
	cmd.Flags().String("base-url", "", "Base URL to record (first server of the document when omitted)")
	cmd.Flags().String("operation", "", "Default operation to record; must be declared by --input")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "apiguard.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	seed, doc, err := seedFromDocument(ctx, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := renderConfig(seed, doc)

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}

	w := cfg.Out
	if w == nil {
		w = os.Stdout
	}
	if doc != nil {
		fmt.Fprintf(w, "Wrote config for %d operations to %s\n", len(doc.Endpoints), absPath)
	} else {
		fmt.Fprintf(w, "Wrote sample config to %s\n", absPath)
	}
	return nil
}

// seedFromDocument loads cfg.Input and returns the values to write
// uncommented. Without an input only an explicit base URL is seeded.
func seedFromDocument(ctx context.Context, cfg *InitConfig) (map[string]string, *spec.Document, error) {
	seed := make(map[string]string)
	if v := strings.TrimSpace(cfg.BaseURL); v != "" {
		seed["baseURL"] = v
	}
	input := strings.TrimSpace(cfg.Input)
	if input == "" {
		if strings.TrimSpace(cfg.Operation) != "" {
			return nil, nil, newUsageError("init: --operation needs --input to check it against")
		}
		return seed, nil, nil
	}

	errOut := cfg.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	loadCfg := &CallConfig{Input: input, Verbose: cfg.Verbose, ErrOut: errOut}
	doc, err := loadDocument(ctx, loadCfg, loadCfg.logger())
	if err != nil {
		return nil, nil, err
	}
	seed["input"] = input
	if _, ok := seed["baseURL"]; !ok && len(doc.Servers) > 0 {
		seed["baseURL"] = doc.Servers[0]
	}
	if id := strings.TrimSpace(cfg.Operation); id != "" {
		if _, err := findEndpoint("init", doc, id); err != nil {
			return nil, nil, err
		}
		seed["operation"] = id
	}
	return seed, doc, nil
}

type sampleOption struct {
	key     string
	doc     string
	example string
}

var sampleOptions = []sampleOption{
	{"input", "Path or URL to the Swagger/OpenAPI document (http/https or local file).", "input: ./openapi.yaml"},
	{"baseURL", "Base URL of the API. Defaults to the first server in the document.", "baseURL: http://localhost:8080"},
	{"operation", "operationId to call or check.", "operation: getPet"},
	{"headers", "Headers sent with every request.", "headers:\n#   Authorization: Bearer <token>"},
	{"includeTags", "Only include operations with these tags (comma-separated or list).", "includeTags: [public,read]"},
	{"excludeTags", "Exclude operations with these tags (comma-separated or list).", "excludeTags: [internal]"},
	{"throwErrors", "Fail on the first validation error instead of logging it.", "throwErrors: false"},
	{"debug", "Log validation results.", "debug: false"},
	{"strictTypes", "Reject (with throwErrors) or strip properties the model does not declare.", "strictTypes: false"},
	{"timeout", "Timeout for each HTTP call.", "timeout: 30s"},
	{"redisAddr", "Forward validation events to Redis.", "redisAddr: localhost:6379\n# redisChannel: apiguard:events"},
	{"metrics", "Print validation counters in Prometheus text format after each call.", "metrics: false"},
	{"verbose", "Enable verbose logging.", "verbose: false"},
}

// renderConfig writes every option, uncommenting the seeded ones, and lists
// the operations doc declares.
func renderConfig(seed map[string]string, doc *spec.Document) string {
	var b strings.Builder
	b.WriteString("# apiguard configuration (YAML)\n")
	b.WriteString("# All fields are optional. Command-line flags override config values,\n")
	b.WriteString("# config values override APIGUARD_* environment variables.\n")

	for _, opt := range sampleOptions {
		b.WriteString("\n# " + opt.doc + "\n")
		if v, ok := seed[opt.key]; ok {
			b.WriteString(yamlEntry(opt.key, v))
			continue
		}
		b.WriteString("# " + opt.example + "\n")
	}

	if doc != nil && len(doc.Endpoints) > 0 {
		title := doc.Title
		if title == "" {
			title = "the document"
		}
		fmt.Fprintf(&b, "\n# Operations declared by %s:\n", title)
		for _, ep := range doc.Endpoints {
			statuses := make([]string, 0, len(ep.Responses))
			for _, r := range ep.Responses {
				statuses = append(statuses, strconv.Itoa(r.Status))
			}
			fmt.Fprintf(&b, "#   %s (%s %s) responses: %s\n", ep.ID, ep.Method, ep.Path, strings.Join(statuses, ","))
		}
	}
	return b.String()
}

func yamlEntry(key, value string) string {
	out, err := yaml.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Sprintf("%s: %q\n", key, value)
	}
	return string(out)
}
