package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provision/pkg/spec"
)

func newParseCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <spec>",
		Short: "Parse a specification and print its parts",
		Example: `  provision parse 'scan-dir:/opt/bundles#*.jar@5@start'
  provision parse --json 'scan-bundle:file:/opt/a.jar@noupdate'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := spec.Parse(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, d)
			}

			fmt.Fprintf(out, "canonical:  %s\n", d)
			fmt.Fprintf(out, "scheme:     %s\n", d.Scheme)
			fmt.Fprintf(out, "path:       %s\n", d.Path)
			if d.HasFilter() {
				fmt.Fprintf(out, "filter:     %s\n", d.Filter)
			}
			fmt.Fprintf(out, "priority:   %s\n", optional(d.Priority))
			fmt.Fprintf(out, "autostart:  %s\n", optional(d.AutoStart))
			fmt.Fprintf(out, "autoupdate: %s\n", optional(d.AutoUpdate))
			return nil
		},
	}
}

func optional[T any](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
