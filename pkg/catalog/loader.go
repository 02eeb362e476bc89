package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
)

// MaxRepositorySize bounds the size of a repository document.
const MaxRepositorySize = 16 << 20

// Loader fetches and parses feature repositories. It implements engine.CatalogLoader.
type Loader struct {
	fetcher engine.Fetcher
	logger  zerolog.Logger
}

// NewLoader creates a repository loader on top of fetcher.
func NewLoader(fetcher engine.Fetcher, logger zerolog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "catalog").Logger(),
	}
}

// LoadCatalog fetches the repository at repositoryURL.
func (l *Loader) LoadCatalog(ctx context.Context, repositoryURL string, verifyCertificate bool) (engine.FeatureCatalog, error) {
	return l.Load(ctx, repositoryURL, verifyCertificate)
}

// Load is LoadCatalog with the concrete return type.
func (l *Loader) Load(ctx context.Context, repositoryURL string, verifyCertificate bool) (*Repository, error) {
	in, err := l.fetcher.Fetch(ctx, repositoryURL, verifyCertificate)
	if err != nil {
		return nil, engine.NewScannerError("could not open feature repository", err).
			WithCode(engine.ErrCodeIOFailure).
			WithLocation(repositoryURL)
	}
	defer in.Close()

	data, err := io.ReadAll(io.LimitReader(in, MaxRepositorySize+1))
	if err != nil {
		return nil, engine.NewScannerError("could not read feature repository", err).
			WithCode(engine.ErrCodeIOFailure).
			WithLocation(repositoryURL)
	}
	if len(data) > MaxRepositorySize {
		return nil, engine.NewScannerError(fmt.Sprintf("feature repository exceeds %d bytes", MaxRepositorySize), nil).
			WithLocation(repositoryURL)
	}

	repo, err := Parse(data, repositoryURL)
	if err != nil {
		return nil, engine.NewScannerError("invalid feature repository", err).WithLocation(repositoryURL)
	}

	l.logger.Debug().
		Str("repository", repositoryURL).
		Int("features", repo.Len()).
		Msg("Loaded feature repository")
	return repo, nil
}
