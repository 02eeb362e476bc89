package scanner

import (
	"context"
	"maps"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// Session is the state of one top-level resolution. It is threaded through
// every nested resolve call.
//
// Property assignments made by manifests are written to the session and are
// visible to every later sibling and nested resolution in the same run. They
// are not rolled back when the run fails.
type Session struct {
	ID string

	dispatcher *Dispatcher
	defaults   engine.Defaults
	properties map[string]string
	logger     zerolog.Logger

	manifests *engine.ReferenceStack
	features  *engine.ReferenceStack
	catalogs  map[string]engine.FeatureCatalog
}

func newSession(d *Dispatcher, defaults engine.Defaults, properties map[string]string) *Session {
	id := uuid.New().String()
	props := make(map[string]string, len(properties))
	maps.Copy(props, properties)
	return &Session{
		ID:         id,
		dispatcher: d,
		defaults:   defaults,
		properties: props,
		logger:     d.logger.With().Str("resolution_id", id).Logger(),
		manifests:  engine.NewReferenceStack("manifest"),
		features:   engine.NewReferenceStack("feature"),
		catalogs:   make(map[string]engine.FeatureCatalog),
	}
}

// Defaults returns the defaults snapshot taken when the session started.
func (s *Session) Defaults() engine.Defaults {
	return s.defaults
}

// Property returns the value bound to key.
func (s *Session) Property(key string) (string, bool) {
	v, ok := s.properties[key]
	return v, ok
}

// SetProperty binds key for the rest of the run. Last writer wins.
func (s *Session) SetProperty(key, value string) {
	s.properties[key] = value
}

// Properties returns a copy of the current bindings.
func (s *Session) Properties() map[string]string {
	out := make(map[string]string, len(s.properties))
	maps.Copy(out, s.properties)
	return out
}

// Logger returns the session logger.
func (s *Session) Logger() *zerolog.Logger {
	return &s.logger
}

// Dispatch resolves a nested descriptor through the full scheme table.
func (s *Session) Dispatch(ctx context.Context, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.NewScannerError("resolution cancelled", err).WithSpec(d.String())
	}
	return s.dispatcher.Resolve(ctx, s, d)
}

// Parser returns the dispatcher's parser.
func (s *Session) Parser() *spec.Parser {
	return s.dispatcher.parser
}

func (s *Session) lookup() Lookup {
	return mapLookup(s.properties)
}
