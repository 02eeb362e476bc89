// Package scanner expands provisioning specifications into ordered lists of
// resolved artifacts.
//
// A Dispatcher maps schemes to resolvers and is the single re-entry point for
// nested resolution: composite manifests and feature dependencies call back
// into it through the Session so every nested spec sees the full scheme table.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
	"github.com/openfroyo/provision/pkg/telemetry"
)

// Resolver resolves one descriptor into artifacts. Implementations apply the
// precedence rule descriptor value, then session defaults, then unset.
type Resolver interface {
	Resolve(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	return f(ctx, s, d)
}

// ErrConflictingResolver is returned when a scheme already has a different resolver.
var ErrConflictingResolver = errors.New("scanner: scheme already has a resolver")

// ErrNoSession is returned when Resolve is called without a session.
var ErrNoSession = errors.New("scanner: no session")

// Dispatcher routes descriptors to resolvers by scheme.
type Dispatcher struct {
	parser    *spec.Parser
	logger    zerolog.Logger
	telemetry *telemetry.Telemetry

	mu         sync.RWMutex
	resolvers  map[string]Resolver
	defaults   engine.Defaults
	properties map[string]string
}

// NewDispatcher creates a dispatcher with no resolvers. parser may be nil for
// the built-in scheme table; tel may be nil.
func NewDispatcher(parser *spec.Parser, logger zerolog.Logger, tel *telemetry.Telemetry) *Dispatcher {
	if parser == nil {
		parser = spec.NewParser(nil)
	}
	return &Dispatcher{
		parser:     parser,
		logger:     logger.With().Str("component", "scanner").Logger(),
		telemetry:  tel,
		resolvers:  make(map[string]Resolver),
		defaults:   engine.DefaultDefaults(),
		properties: make(map[string]string),
	}
}

// Register binds a resolver to scheme.
func (d *Dispatcher) Register(scheme string, r Resolver) error {
	if scheme == "" || r == nil {
		return fmt.Errorf("scanner: scheme and resolver are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.resolvers[scheme]; ok {
		return fmt.Errorf("%w: %s", ErrConflictingResolver, scheme)
	}
	d.resolvers[scheme] = r
	return nil
}

// SetDefaults is the configuration push entry point. A nil push restores the
// built-in defaults. Running sessions keep the snapshot they started with.
func (d *Dispatcher) SetDefaults(defaults *engine.Defaults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if defaults == nil {
		d.defaults = engine.DefaultDefaults()
	} else {
		d.defaults = *defaults
	}
	d.logger.Debug().
		Interface("priority", d.defaults.Priority).
		Interface("autostart", d.defaults.AutoStart).
		Interface("autoupdate", d.defaults.AutoUpdate).
		Bool("certificate_check", d.defaults.CertificateCheck).
		Msg("Defaults updated")
}

// Defaults returns the current defaults.
func (d *Dispatcher) Defaults() engine.Defaults {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaults
}

// SetProperties replaces the process-wide bindings seeded into each session.
func (d *Dispatcher) SetProperties(properties map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties = make(map[string]string, len(properties))
	maps.Copy(d.properties, properties)
}

// NewSession starts a session with the current defaults and properties.
func (d *Dispatcher) NewSession() *Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return newSession(d, d.defaults, d.properties)
}

// Resolve looks up the resolver for desc.Scheme and returns its output unchanged.
// s must be a session started by Scan; resolvers reach it through Session.Dispatch.
func (d *Dispatcher) Resolve(ctx context.Context, s *Session, desc spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	if s == nil {
		return nil, engine.NewScannerError("resolve called without a session", ErrNoSession).WithSpec(desc.String())
	}
	d.mu.RLock()
	r, ok := d.resolvers[desc.Scheme]
	d.mu.RUnlock()
	if !ok {
		return nil, engine.NewUnsupportedSchemeError(desc.Scheme).WithSpec(desc.String())
	}
	return r.Resolve(ctx, s, desc)
}

// Scan parses raw and resolves it in a fresh session.
func (d *Dispatcher) Scan(ctx context.Context, raw string) (*engine.Resolution, error) {
	desc, err := d.parser.Parse(raw)
	if err != nil {
		d.telemetry.MetricsOrNil().RecordError(string(engine.ClassOf(err)))
		return nil, err
	}

	s := d.NewSession()
	logger := s.Logger().With().Str("spec", raw).Logger()
	events := d.telemetry.EventsOrNil()
	_ = events.PublishResolutionStarted(s.ID, raw)

	op := d.telemetry.StartResolution(ctx, s.ID, desc.Scheme, raw)
	artifacts, err := d.Resolve(op.Ctx, s, desc)
	op.End(err)

	metrics := d.telemetry.MetricsOrNil()
	if err != nil {
		metrics.RecordResolution(desc.Scheme, telemetry.StatusFailure, 0, op.Timer.Duration())
		metrics.RecordError(string(engine.ClassOf(err)))
		_ = events.PublishResolutionFailed(s.ID, err)
		logger.Error().Err(err).Msg("Resolution failed")
		return nil, err
	}

	metrics.RecordResolution(desc.Scheme, telemetry.StatusSuccess, len(artifacts), op.Timer.Duration())
	_ = events.PublishResolutionCompleted(s.ID, len(artifacts), op.Timer.Duration())
	logger.Info().Int("artifacts", len(artifacts)).Dur("duration", op.Timer.Duration()).Msg("Resolution completed")

	if artifacts == nil {
		artifacts = []engine.ResolvedArtifact{}
	}
	return &engine.Resolution{
		ID:         s.ID,
		Spec:       raw,
		Artifacts:  artifacts,
		Properties: s.Properties(),
	}, nil
}

// Close releases resources held by registered resolvers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for scheme, r := range d.resolvers {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s resolver: %w", scheme, err))
			}
		}
	}
	return errors.Join(errs...)
}
