package engine

import (
	"context"
	"io"
)

// Fetcher opens a readable stream for a manifest or artifact location.
type Fetcher interface {
	// Fetch opens location. verifyCertificate controls TLS verification for https.
	Fetch(ctx context.Context, location string, verifyCertificate bool) (io.ReadCloser, error)
}

// Lister enumerates the files below a directory root.
type Lister interface {
	// List returns the relative paths of all files under root, segments joined with "/".
	// Unreadable subdirectories contribute nothing; only an unreadable root is an error.
	List(ctx context.Context, root string) ([]string, error)
}

// FeatureCatalog looks features up by name and optional version.
type FeatureCatalog interface {
	// Lookup returns the feature, or found=false when no feature matches.
	// An empty version selects the highest available version.
	Lookup(ctx context.Context, name, version string) (feature *Feature, found bool, err error)
}

// CatalogLoader opens the feature catalog published at a repository location.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context, repositoryURL string, verifyCertificate bool) (FeatureCatalog, error)
}

// FilterValidator checks the syntax of catalog attribute filters.
type FilterValidator interface {
	ValidFilter(expression string) bool
}

// Runtime is the target the lifecycle installs artifacts into.
type Runtime interface {
	// Install installs the artifact at location. Installing a location that is
	// already present returns the existing handle unchanged.
	Install(ctx context.Context, location string) (*ArtifactHandle, error)

	// Update refreshes an installed artifact from its location.
	Update(ctx context.Context, handle *ArtifactHandle) error

	// Start starts an installed artifact.
	Start(ctx context.Context, handle *ArtifactHandle) error
}

// PriorityAssigner sets the run priority of an installed artifact.
type PriorityAssigner interface {
	AssignPriority(ctx context.Context, handle *ArtifactHandle, level int) error
}

// DefaultsReceiver accepts configuration pushes. A nil push restores built-in defaults.
type DefaultsReceiver interface {
	SetDefaults(defaults *Defaults)
}
