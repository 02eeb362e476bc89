package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
)

// Admitter decides whether an artifact may be installed.
type Admitter interface {
	Admit(ctx context.Context, artifact engine.ResolvedArtifact) error
}

// AdmitterFunc adapts a function to Admitter.
type AdmitterFunc func(ctx context.Context, artifact engine.ResolvedArtifact) error

// Admit calls f.
func (f AdmitterFunc) Admit(ctx context.Context, artifact engine.ResolvedArtifact) error {
	return f(ctx, artifact)
}

// Batch is the ordered set of lifecycles for one resolution's output.
// Transitions are applied in resolution order and stop at the first failure.
type Batch struct {
	id      string
	members []*Lifecycle
	opts    Options
	logger  zerolog.Logger
}

// NewBatch creates one pending lifecycle per artifact.
func NewBatch(artifacts []engine.ResolvedArtifact, opts Options) *Batch {
	opts = opts.withDefaults()
	id := uuid.New().String()
	b := &Batch{
		id:      id,
		members: make([]*Lifecycle, 0, len(artifacts)),
		opts:    opts,
		logger:  opts.Logger.With().Str("component", "batch").Str("batch_id", id).Logger(),
	}
	for _, a := range artifacts {
		b.members = append(b.members, newLifecycle(a, id, opts))
	}
	return b
}

// ID returns the batch ID attached to published events.
func (b *Batch) ID() string { return b.id }

// Len returns the number of members.
func (b *Batch) Len() int { return len(b.members) }

// Members returns the lifecycles in resolution order.
func (b *Batch) Members() []*Lifecycle {
	return append([]*Lifecycle(nil), b.members...)
}

// States returns the state of every member in resolution order.
func (b *Batch) States() []engine.State {
	states := make([]engine.State, len(b.members))
	for i, m := range b.members {
		states[i] = m.State()
	}
	return states
}

// InstallAll installs every member, starting those marked autostart.
func (b *Batch) InstallAll(ctx context.Context) error {
	return b.apply(ctx, engine.TransitionInstall, (*Lifecycle).Install)
}

// StartAll starts every member, installing pending ones first.
func (b *Batch) StartAll(ctx context.Context) error {
	return b.apply(ctx, engine.TransitionStart, (*Lifecycle).Start)
}

func (b *Batch) apply(ctx context.Context, t engine.Transition, step func(*Lifecycle, context.Context) error) error {
	b.logger.Info().Str("transition", string(t)).Int("artifacts", len(b.members)).Msg("Applying batch")

	for i, m := range b.members {
		if err := ctx.Err(); err != nil {
			return engine.NewInstallationError("batch cancelled", err).
				WithLocation(m.artifact.Location).WithDetail("index", i)
		}
		if err := b.admit(ctx, m); err != nil {
			return err
		}
		if err := step(m, ctx); err != nil {
			b.logger.Error().Err(err).Int("index", i).Msg("Batch aborted")
			return withIndex(err, i)
		}
	}

	b.logger.Info().Str("transition", string(t)).Msg("Batch complete")
	return nil
}

func (b *Batch) admit(ctx context.Context, m *Lifecycle) error {
	if b.opts.Admitter == nil || m.State() != engine.StatePending {
		return nil
	}
	if err := b.opts.Admitter.Admit(ctx, m.artifact); err != nil {
		e := engine.NewInstallationError("artifact not admitted", err).
			WithLocation(m.artifact.Location).WithCode(engine.ErrCodePolicyDenied)
		return m.fail(engine.TransitionInstall, e, m.opts.Clock())
	}
	return nil
}

func withIndex(err error, i int) error {
	var e *engine.Error
	if errors.As(err, &e) {
		e.WithDetail("index", i)
		return err
	}
	return fmt.Errorf("batch member %d: %w", i, err)
}
