package scanner

import (
	"context"
	"errors"
	"strings"

	"github.com/gobwas/glob"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// DefaultDirectoryFilter matches every entry.
const DefaultDirectoryFilter = "*"

// DirectoryResolver resolves every file below a root location.
type DirectoryResolver struct {
	lister engine.Lister
}

// NewDirectoryResolver creates a directory-variant resolver.
func NewDirectoryResolver(lister engine.Lister) *DirectoryResolver {
	return &DirectoryResolver{lister: lister}
}

// Resolve lists the root and returns one artifact per visible entry matching
// the descriptor's glob filter, in listing order.
func (r *DirectoryResolver) Resolve(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	s.Logger().Debug().Str("path", d.Path).Msg("Scanning directory")

	pattern := DefaultDirectoryFilter
	if d.HasFilter() {
		pattern = d.Filter
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, engine.NewMalformedSpecificationError("invalid directory filter", err).WithSpec(d.String())
	}

	root, err := toLocation(d.Path)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}
	rootLocation := strings.TrimSuffix(root.String(), "/")

	entries, err := r.lister.List(ctx, rootLocation)
	if err != nil {
		var classified *engine.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, engine.NewListingError("cannot read directory root", err).
			WithSpec(d.String()).WithLocation(rootLocation)
	}

	settings := d.Settings.Or(s.Defaults().Settings)
	var artifacts []engine.ResolvedArtifact
	for _, entry := range entries {
		if IsHidden(entry) || !matcher.Match(entry) {
			continue
		}
		artifacts = append(artifacts, engine.ResolvedArtifact{
			Location: rootLocation + "/" + entry,
			Settings: settings,
		})
	}
	return artifacts, nil
}

// IsHidden reports whether any segment of a relative path is dot-prefixed.
func IsHidden(relative string) bool {
	for _, segment := range strings.Split(relative, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
