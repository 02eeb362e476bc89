package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provision/pkg/engine"
)

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var (
		state       string
		limit       int
		resolutions bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show installed artifacts or recent resolution runs",
		Example: `  provision status
  provision status --state started
  provision status --resolutions --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

			if resolutions {
				runs, err := store.ListResolutions(ctx, limit, 0)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(out, runs)
				}
				fmt.Fprintln(tw, "ID\tSTATUS\tARTIFACTS\tSTARTED\tSPEC")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.ArtifactCount, r.StartedAt.Local().Format(time.RFC3339), r.Spec)
				}
				return tw.Flush()
			}

			var filter *engine.State
			if state != "" {
				s := engine.State(state)
				if err := s.Validate(); err != nil {
					return err
				}
				filter = &s
			}
			installs, err := store.ListInstallations(ctx, filter, limit, 0)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(out, installs)
			}
			fmt.Fprintln(tw, "STATE\tPRIORITY\tMODIFIED\tLOCATION")
			for _, inst := range installs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.State, optional(inst.Priority), inst.LastModified.Local().Format(time.RFC3339), inst.Location)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "only show artifacts in this state (pending, installed, started)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows, 0 for all")
	cmd.Flags().BoolVar(&resolutions, "resolutions", false, "list resolution runs instead of artifacts")
	return cmd
}
