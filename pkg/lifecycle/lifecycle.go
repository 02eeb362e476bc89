// Package lifecycle drives resolved artifacts through install and start
// against a runtime.
//
// Each artifact moves Pending -> Installed -> Started and never back. A failed
// transition leaves the state unchanged and is reported as an installation
// error; nothing is retried.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/telemetry"
)

// Options configure the lifecycles of a batch.
type Options struct {
	Runtime engine.Runtime

	// Assigner sets priorities. When nil and Runtime implements
	// engine.PriorityAssigner, the runtime is used.
	Assigner engine.PriorityAssigner

	// Admitter vets each artifact before its first install. Optional.
	Admitter Admitter

	Logger    zerolog.Logger
	Telemetry *telemetry.Telemetry

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Assigner == nil {
		if a, ok := o.Runtime.(engine.PriorityAssigner); ok {
			o.Assigner = a
		}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Lifecycle is the state machine of one resolved artifact.
type Lifecycle struct {
	artifact engine.ResolvedArtifact
	batchID  string
	opts     Options
	logger   zerolog.Logger

	mu     sync.Mutex
	state  engine.State
	handle *engine.ArtifactHandle
}

// New creates a pending lifecycle for artifact.
func New(artifact engine.ResolvedArtifact, opts Options) *Lifecycle {
	return newLifecycle(artifact, "", opts.withDefaults())
}

func newLifecycle(artifact engine.ResolvedArtifact, batchID string, opts Options) *Lifecycle {
	return &Lifecycle{
		artifact: artifact,
		batchID:  batchID,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "lifecycle").Str("location", artifact.Location).Logger(),
		state:    engine.StatePending,
	}
}

// Artifact returns the artifact this lifecycle drives.
func (l *Lifecycle) Artifact() engine.ResolvedArtifact {
	return l.artifact
}

// State returns the current state.
func (l *Lifecycle) State() engine.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Handle returns the runtime handle, or nil before a successful install.
func (l *Lifecycle) Handle() *engine.ArtifactHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

// Install installs a pending artifact. A pre-existing installation older than
// this attempt is updated first when autoupdate is set. With autostart set the
// artifact is started right after. Any other state makes Install a no-op.
func (l *Lifecycle) Install(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.install(ctx)
}

// Start starts an installed artifact, installing a pending one first.
// Starting a started artifact is a no-op.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.start(ctx)
}

func (l *Lifecycle) install(ctx context.Context) error {
	if l.state.IsInstalled() {
		return nil
	}
	location := l.artifact.Location
	if location == "" {
		return l.fail(engine.TransitionInstall, engine.NewInstallationError("artifact location is empty", nil), time.Now())
	}

	began := l.opts.Clock()
	started := time.Now()
	op := l.opts.Telemetry.StartTransition(ctx, string(engine.TransitionInstall), location)
	err := l.installLocked(op.Ctx, began)
	op.End(err)
	if err != nil {
		return l.fail(engine.TransitionInstall, err, started)
	}
	l.succeed(engine.TransitionInstall, started)

	if l.artifact.ShouldStart() {
		return l.start(ctx)
	}
	return nil
}

func (l *Lifecycle) installLocked(ctx context.Context, began time.Time) error {
	location := l.artifact.Location
	handle, err := l.opts.Runtime.Install(ctx, location)
	if err != nil {
		return engine.NewInstallationError("runtime rejected install", err).WithLocation(location)
	}
	if handle == nil {
		return engine.NewInstallationError("runtime returned no handle", nil).
			WithLocation(location).WithCode(engine.ErrCodeNoHandle)
	}

	if l.artifact.ShouldUpdate() && handle.LastModified.Before(began) {
		updated := time.Now()
		if err := l.opts.Runtime.Update(ctx, handle); err != nil {
			l.record(engine.TransitionUpdate, telemetry.StatusFailure, updated)
			return engine.NewInstallationError("runtime rejected update", err).WithLocation(location)
		}
		l.record(engine.TransitionUpdate, telemetry.StatusSuccess, updated)
		l.publish(telemetry.EventTypeArtifactUpdated)
		l.logger.Info().Msg("Updated pre-existing artifact")
	}

	if l.artifact.Priority != nil && l.opts.Assigner != nil {
		if err := l.opts.Assigner.AssignPriority(ctx, handle, *l.artifact.Priority); err != nil {
			return engine.NewInstallationError("failed to assign priority", err).
				WithLocation(location).WithDetail("priority", *l.artifact.Priority)
		}
	}

	l.handle = handle
	l.state = engine.StateInstalled
	return nil
}

func (l *Lifecycle) start(ctx context.Context) error {
	if l.state.IsTerminal() {
		return nil
	}
	if !l.state.IsInstalled() {
		if err := l.install(ctx); err != nil {
			return err
		}
		// install may already have started an autostart artifact.
		if l.state.IsTerminal() {
			return nil
		}
	}

	started := time.Now()
	if l.handle == nil {
		return l.fail(engine.TransitionStart, engine.NewInstallationError("artifact has no runtime handle", nil).
			WithLocation(l.artifact.Location).WithCode(engine.ErrCodeNoHandle), started)
	}

	op := l.opts.Telemetry.StartTransition(ctx, string(engine.TransitionStart), l.artifact.Location)
	err := l.opts.Runtime.Start(op.Ctx, l.handle)
	op.End(err)
	if err != nil {
		return l.fail(engine.TransitionStart, engine.NewInstallationError("runtime rejected start", err).
			WithLocation(l.artifact.Location), started)
	}

	l.state = engine.StateStarted
	l.succeed(engine.TransitionStart, started)
	return nil
}

func (l *Lifecycle) succeed(t engine.Transition, started time.Time) {
	l.record(t, telemetry.StatusSuccess, started)
	if t == engine.TransitionStart {
		l.publish(telemetry.EventTypeArtifactStarted)
	} else {
		l.publish(telemetry.EventTypeArtifactInstalled)
	}
	l.logger.Info().Str("transition", string(t)).Str("state", string(l.state)).Msg("Artifact transition complete")
}

func (l *Lifecycle) fail(t engine.Transition, err error, started time.Time) error {
	l.record(t, telemetry.StatusFailure, started)
	l.opts.Telemetry.MetricsOrNil().RecordError(string(engine.ClassOf(err)))
	if pub := l.opts.Telemetry.EventsOrNil(); pub != nil {
		_ = pub.PublishArtifactFailed(l.batchID, l.artifact.Location, err)
	}
	l.logger.Error().Err(err).Str("transition", string(t)).Msg("Artifact transition failed")
	return err
}

func (l *Lifecycle) record(t engine.Transition, status string, started time.Time) {
	l.opts.Telemetry.MetricsOrNil().RecordTransition(string(t), status, time.Since(started))
}

func (l *Lifecycle) publish(eventType string) {
	if pub := l.opts.Telemetry.EventsOrNil(); pub != nil {
		_ = pub.PublishTransition(eventType, l.batchID, l.artifact.Location)
	}
}
