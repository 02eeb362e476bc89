package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCommand(opts *globalOptions) *cobra.Command {
	var showProperties bool

	cmd := &cobra.Command{
		Use:   "resolve <spec>",
		Short: "Resolve a specification into an ordered artifact list",
		Example: `  provision resolve scan-file:profiles/base.txt
  provision resolve --json 'scan-features:https://repo.example.org/features.yaml#web'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			res, err := a.dispatcher.Scan(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSON(out, res)
			}
			for _, artifact := range res.Artifacts {
				fmt.Fprintln(out, artifact)
			}
			if showProperties {
				for _, k := range sortedKeys(res.Properties) {
					fmt.Fprintf(out, "# %s=%s\n", k, res.Properties[k])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProperties, "properties", false, "also print the property bindings of the run")
	return cmd
}
