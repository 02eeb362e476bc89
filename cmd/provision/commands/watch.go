package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provision/pkg/config"
	"github.com/openfroyo/provision/pkg/runtime"
)

func newWatchCommand(opts *globalOptions) *cobra.Command {
	var install bool

	cmd := &cobra.Command{
		Use:   "watch [spec]",
		Short: "Follow configuration changes and re-resolve on every push",
		Long: `Watch keeps the configuration file under observation. Every change pushes the
new defaults and properties into the resolver; when a specification is given
it is resolved again with the new configuration, and with --install the
result is installed.`,
		Example: `  provision watch -c provision.yaml
  provision watch -c provision.yaml --install scan-dir:/opt/bundles`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return fmt.Errorf("watch requires --config")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			w := config.NewWatcher(opts.configPath, a.logger, a.telemetry)
			w.Register(a.dispatcher)
			var rt *runtime.Local
			if install {
				if rt, err = a.newRuntime(ctx); err != nil {
					return err
				}
				w.Register(rt)
			}

			pushes := make(chan struct{}, 1)
			w.OnReload(func(cfg *config.Config) {
				if cfg == nil {
					cfg = config.Default()
				}
				a.dispatcher.SetProperties(cfg.Properties)
				select {
				case pushes <- struct{}{}:
				default:
				}
			})

			if err := w.Watch(ctx); err != nil {
				return err
			}
			a.logger.Info().Str("config", opts.configPath).Msg("Watching configuration")

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-pushes:
					if len(args) == 0 {
						continue
					}
					a.rerun(ctx, cmd, rt, args[0])
				}
			}
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "install the resolved artifacts after every push")
	return cmd
}

// rerun resolves raw again, installing the result when rt is non-nil.
func (a *app) rerun(ctx context.Context, cmd *cobra.Command, rt *runtime.Local, raw string) {
	if rt != nil {
		if err := a.install(ctx, cmd, rt, raw, false, false); err != nil {
			a.logger.Error().Err(err).Msg("Install after configuration push failed")
		}
		return
	}
	res, err := a.dispatcher.Scan(ctx, raw)
	if err != nil {
		a.logger.Error().Err(err).Msg("Resolution after configuration push failed")
		return
	}
	out := cmd.OutOrStdout()
	if a.opts.jsonOutput {
		_ = writeJSON(out, res)
		return
	}
	for _, artifact := range res.Artifacts {
		fmt.Fprintln(out, artifact)
	}
}
