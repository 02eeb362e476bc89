package scanner

import (
	"context"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// EntrySeparator joins an artifact location and the entry named by its filter.
const EntrySeparator = "!/"

// BundleResolver resolves a single artifact reference. It does no I/O.
type BundleResolver struct{}

// NewBundleResolver creates a file-variant resolver.
func NewBundleResolver() *BundleResolver {
	return &BundleResolver{}
}

// Resolve returns exactly one artifact for d.
func (r *BundleResolver) Resolve(_ context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	s.Logger().Debug().Str("path", d.Path).Msg("Scanning artifact")

	u, err := toLocation(d.Path)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}
	location := u.String()
	if d.HasFilter() {
		location += EntrySeparator + d.Filter
	}

	return []engine.ResolvedArtifact{{
		Location: location,
		Settings: d.Settings.Or(s.Defaults().Settings),
	}}, nil
}
