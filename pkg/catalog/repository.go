// Package catalog loads feature repositories and validates catalog filters.
//
// A feature repository is a YAML document listing named, versioned features.
// Each feature names the features it depends on and the artifacts it
// contributes:
//
//	apiVersion: provision/v1
//	features:
//	  - name: web
//	    version: 1.2.0
//	    dependencies: [http/2.0.0, logging]
//	    artifacts:
//	      - bundles/web-1.2.0.jar
//
// Artifact locations may be relative to the repository location.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// APIVersion is the repository document version understood by this package.
const APIVersion = "provision/v1"

// Document is the on-disk form of a feature repository.
type Document struct {
	APIVersion string            `yaml:"apiVersion" validate:"required,eq=provision/v1"`
	Features   []FeatureDocument `yaml:"features" validate:"dive"`
}

// FeatureDocument is one feature entry of a repository document.
type FeatureDocument struct {
	Name         string   `yaml:"name" validate:"required,excludesall=/#@0x2C"`
	Version      string   `yaml:"version" validate:"required,excludesall=/#@0x2C"`
	Dependencies []string `yaml:"dependencies,omitempty" validate:"dive,required"`
	Artifacts    []string `yaml:"artifacts,omitempty" validate:"dive,required"`
}

// Repository is an immutable, indexed feature repository. It implements
// engine.FeatureCatalog.
type Repository struct {
	location string
	byName   map[string][]*engine.Feature
}

// Parse decodes and validates a repository document. location is only used
// in error messages.
func Parse(data []byte, location string) (*Repository, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feature repository %s: %w", location, err)
	}
	return FromDocument(&doc, location)
}

// FromDocument validates doc and indexes its features.
func FromDocument(doc *Document, location string) (*Repository, error) {
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid feature repository %s: %w", location, err)
	}

	repo := &Repository{location: location, byName: make(map[string][]*engine.Feature)}
	seen := make(map[string]bool)
	for _, fd := range doc.Features {
		key := fd.Name + "/" + fd.Version
		if seen[key] {
			return nil, fmt.Errorf("invalid feature repository %s: duplicate feature %s", location, key)
		}
		seen[key] = true

		feature := &engine.Feature{
			Name:      fd.Name,
			Version:   fd.Version,
			Artifacts: append([]string(nil), fd.Artifacts...),
		}
		for _, dep := range fd.Dependencies {
			refs, err := spec.ParseFeatureList(dep)
			if err != nil || len(refs) != 1 {
				return nil, fmt.Errorf("invalid feature repository %s: feature %s: bad dependency %q", location, key, dep)
			}
			feature.Dependencies = append(feature.Dependencies, refs[0])
		}
		repo.byName[fd.Name] = append(repo.byName[fd.Name], feature)
	}

	for _, versions := range repo.byName {
		sort.SliceStable(versions, func(i, j int) bool {
			return compareVersions(versions[i].Version, versions[j].Version) > 0
		})
	}
	return repo, nil
}

// Location returns where the repository was loaded from.
func (r *Repository) Location() string {
	return r.location
}

// Len returns the number of features across all versions.
func (r *Repository) Len() int {
	n := 0
	for _, versions := range r.byName {
		n += len(versions)
	}
	return n
}

// Lookup finds a feature by name. An empty version selects the highest
// version; otherwise the version must match exactly or be semver-equal.
func (r *Repository) Lookup(_ context.Context, name, version string) (*engine.Feature, bool, error) {
	versions := r.byName[name]
	if len(versions) == 0 {
		return nil, false, nil
	}
	if version == "" {
		return versions[0], true, nil
	}
	for _, f := range versions {
		if f.Version == version {
			return f, true, nil
		}
	}
	if v := canonical(version); v != "" {
		for _, f := range versions {
			if canonical(f.Version) == v {
				return f, true, nil
			}
		}
	}
	return nil, false, nil
}

// compareVersions orders semantic versions by precedence. Versions that are
// not valid semver sort below valid ones and lexically among themselves.
func compareVersions(a, b string) int {
	ca, cb := canonical(a), canonical(b)
	switch {
	case ca != "" && cb != "":
		return semver.Compare(ca, cb)
	case ca != "":
		return 1
	case cb != "":
		return -1
	default:
		return strings.Compare(a, b)
	}
}

// canonical returns the canonical "vX.Y.Z" form of v, or "" when v is not semver.
func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

var validate = validator.New()
