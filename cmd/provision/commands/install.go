package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/lifecycle"
	"github.com/openfroyo/provision/pkg/stores"
)

func newInstallCommand(opts *globalOptions) *cobra.Command {
	var (
		start    bool
		noPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "install <spec>",
		Short: "Resolve a specification and install its artifacts",
		Long: `Resolve a specification and install every artifact into the local runtime,
in resolution order. Each artifact is checked against the admission policies
before it is installed. The first failure stops the batch.`,
		Example: `  provision install scan-dir:/opt/bundles
  provision install --start -c provision.yaml scan-file:profile.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			rt, err := a.newRuntime(ctx)
			if err != nil {
				return err
			}
			return a.install(ctx, cmd, rt, args[0], start, noPolicy)
		},
	}

	cmd.Flags().BoolVar(&start, "start", false, "start every artifact after the batch is installed")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip admission policies")
	return cmd
}

func (a *app) install(ctx context.Context, cmd *cobra.Command, rt engine.Runtime, raw string, start, noPolicy bool) error {
	started := time.Now().UTC()
	res, err := a.dispatcher.Scan(ctx, raw)
	if err != nil {
		return err
	}
	run := &stores.Resolution{ID: res.ID, Spec: raw, StartedAt: started}
	if err := a.store.CreateResolution(ctx, run); err != nil {
		return err
	}

	bopts := lifecycle.Options{Runtime: rt, Logger: a.logger, Telemetry: a.telemetry}
	if !noPolicy {
		gate, err := a.newGate(ctx)
		if err != nil {
			_ = a.finish(ctx, run, res, err)
			return err
		}
		bopts.Admitter = gate
	}

	batch := lifecycle.NewBatch(res.Artifacts, bopts)
	err = batch.InstallAll(ctx)
	if err == nil && start {
		err = batch.StartAll(ctx)
	}

	if ferr := a.finish(ctx, run, res, err); ferr != nil && err == nil {
		return ferr
	}

	out := cmd.OutOrStdout()
	if a.opts.jsonOutput {
		type row struct {
			Location string       `json:"location"`
			State    engine.State `json:"state"`
		}
		rows := make([]row, 0, batch.Len())
		for _, m := range batch.Members() {
			rows = append(rows, row{Location: m.Artifact().Location, State: m.State()})
		}
		if werr := writeJSON(out, map[string]interface{}{"resolution": res.ID, "batch": batch.ID(), "artifacts": rows}); werr != nil {
			return werr
		}
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tLOCATION")
	for _, m := range batch.Members() {
		fmt.Fprintf(tw, "%s\t%s\n", m.State(), m.Artifact().Location)
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	return err
}

// finish records the outcome of an install run.
func (a *app) finish(ctx context.Context, run *stores.Resolution, res *engine.Resolution, err error) error {
	run.ArtifactCount = len(res.Artifacts)
	if data, merr := json.Marshal(res.Artifacts); merr == nil {
		run.Artifacts = string(data)
	}
	if data, merr := json.Marshal(res.Properties); merr == nil {
		run.Properties = string(data)
	}
	run.Status = stores.ResolutionStatusCompleted
	if err != nil {
		msg := err.Error()
		run.Status = stores.ResolutionStatusFailed
		run.Error = &msg
	}
	if serr := a.store.CompleteResolution(context.WithoutCancel(ctx), run); serr != nil {
		a.logger.Error().Err(serr).Str("resolution_id", run.ID).Msg("Failed to record resolution")
		return serr
	}
	return nil
}
