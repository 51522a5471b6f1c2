package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listRunner = runList

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the operations a document declares",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveCallConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.validate("list", false); err != nil {
				return err
			}
			return listRunner(cmd.Context(), cfg)
		},
	}
	addInputFlags(cmd.Flags())
	return cmd
}

func runList(ctx context.Context, cfg *CallConfig) error {
	doc, err := loadDocument(ctx, cfg, cfg.logger())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cfg.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tMETHOD\tPATH\tRESPONSES")
	for _, ep := range doc.Endpoints {
		statuses := make([]string, 0, len(ep.Responses)+len(ep.Skipped))
		for _, r := range ep.Responses {
			statuses = append(statuses, strconv.Itoa(r.Status))
		}
		statuses = append(statuses, ep.Skipped...)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ep.ID, ep.Method, ep.Path, strings.Join(statuses, ","))
	}
	return w.Flush()
}
