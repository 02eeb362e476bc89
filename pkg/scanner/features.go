package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// FeatureResolver resolves feature references against a feature repository.
// The descriptor path is the repository location and the filter lists the
// features as name[/version],...
type FeatureResolver struct {
	loader engine.CatalogLoader
}

// NewFeatureResolver creates a feature-variant resolver.
func NewFeatureResolver(loader engine.CatalogLoader) *FeatureResolver {
	return &FeatureResolver{loader: loader}
}

// Resolve returns, for each listed feature in order, the artifacts of its
// dependencies (depth first) followed by its own artifacts.
func (r *FeatureResolver) Resolve(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	s.Logger().Debug().Str("path", d.Path).Str("features", d.Filter).Msg("Scanning features")

	refs, err := spec.ParseFeatureList(d.Filter)
	if err != nil {
		return nil, engine.NewMalformedSpecificationError("invalid feature list", err).WithSpec(d.String())
	}

	repo, err := toLocation(d.Path)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}

	catalog, err := r.catalog(ctx, s, repo.String())
	if err != nil {
		return nil, err
	}

	settings := d.Settings.Or(s.Defaults().Settings)
	var artifacts []engine.ResolvedArtifact
	for _, ref := range refs {
		resolved, err := r.resolveFeature(ctx, s, catalog, d, repo.String(), ref, settings)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, resolved...)
	}
	return artifacts, nil
}

func (r *FeatureResolver) resolveFeature(
	ctx context.Context,
	s *Session,
	catalog engine.FeatureCatalog,
	d spec.Descriptor,
	repo string,
	ref engine.FeatureRef,
	settings engine.Settings,
) ([]engine.ResolvedArtifact, error) {
	feature, found, err := catalog.Lookup(ctx, ref.Name, ref.Version)
	if err != nil {
		return nil, engine.NewScannerError(fmt.Sprintf("feature lookup failed for %s", ref), err).
			WithSpec(d.String()).WithLocation(repo)
	}
	if !found {
		return nil, engine.NewScannerError(fmt.Sprintf("could not find feature %s", ref), nil).
			WithCode(engine.ErrCodeNotFound).
			WithSpec(d.String()).
			WithLocation(repo).
			WithDetail("name", ref.Name).
			WithDetail("version", ref.Version)
	}

	key := feature.Name + "/" + feature.Version
	if err := s.features.Enter(key); err != nil {
		var classified *engine.Error
		if errors.As(err, &classified) {
			classified.WithSpec(d.String())
		}
		return nil, err
	}
	defer s.features.Leave()

	var artifacts []engine.ResolvedArtifact
	for _, dep := range feature.Dependencies {
		// Dependencies go back through the dispatcher under the same scheme.
		nested := spec.Descriptor{
			Scheme:   d.Scheme,
			Path:     repo,
			Filter:   dep.String(),
			Settings: settings,
		}
		resolved, err := s.Dispatch(ctx, nested)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, resolved...)
	}

	base, err := toLocation(repo)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}
	for _, location := range feature.Artifacts {
		abs, err := resolveAgainst(base, location)
		if err != nil {
			return nil, engine.NewScannerError(fmt.Sprintf("invalid artifact location in feature %s", key), err).
				WithLocation(location)
		}
		artifacts = append(artifacts, engine.ResolvedArtifact{Location: abs, Settings: settings})
	}
	return artifacts, nil
}

// catalog loads the repository once per session.
func (r *FeatureResolver) catalog(ctx context.Context, s *Session, repo string) (engine.FeatureCatalog, error) {
	if c, ok := s.catalogs[repo]; ok {
		return c, nil
	}
	c, err := r.loader.LoadCatalog(ctx, repo, s.Defaults().CertificateCheck)
	if err != nil {
		var classified *engine.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, engine.NewScannerError("could not load feature repository", err).
			WithCode(engine.ErrCodeIOFailure).WithLocation(repo)
	}
	s.catalogs[repo] = c
	return c, nil
}
