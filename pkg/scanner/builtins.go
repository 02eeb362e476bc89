package scanner

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
	"github.com/openfroyo/provision/pkg/telemetry"
)

// Dependencies are the capabilities the built-in resolvers need.
type Dependencies struct {
	Fetcher   engine.Fetcher
	Lister    engine.Lister
	Catalogs  engine.CatalogLoader
	Validator engine.FilterValidator
	OBR       OBRConfig
}

// NewDefaultDispatcher builds a dispatcher with all six built-in schemes registered.
func NewDefaultDispatcher(deps Dependencies, logger zerolog.Logger, tel *telemetry.Telemetry) (*Dispatcher, error) {
	if deps.Fetcher == nil || deps.Lister == nil || deps.Catalogs == nil || deps.Validator == nil {
		return nil, fmt.Errorf("scanner: fetcher, lister, catalog loader and filter validator are required")
	}

	d := NewDispatcher(spec.NewParser(nil), logger, tel)
	resolvers := map[string]Resolver{
		spec.SchemeBundle:    NewBundleResolver(),
		spec.SchemeFile:      NewFileListResolver(deps.Fetcher),
		spec.SchemeDir:       NewDirectoryResolver(deps.Lister),
		spec.SchemeFeatures:  NewFeatureResolver(deps.Catalogs),
		spec.SchemeOBR:       NewOBRResolver(deps.Fetcher, deps.Validator, deps.OBR, logger),
		spec.SchemeComposite: NewCompositeResolver(deps.Fetcher),
	}
	for scheme, r := range resolvers {
		if err := d.Register(scheme, r); err != nil {
			return nil, err
		}
	}
	return d, nil
}
