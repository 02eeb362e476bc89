package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// Manifest line markers.
const (
	CommentPrefix  = "#"
	PropertyPrefix = "-D"
)

// maxLineSize bounds a single manifest line.
const maxLineSize = 1 << 20

// CompositeResolver reads a line-oriented manifest and resolves every spec
// line through the dispatcher. The composite's own explicit settings override
// whatever the nested resolution produced.
type CompositeResolver struct {
	fetcher engine.Fetcher

	// defaultScheme is applied to lines that carry no registered scheme.
	// Empty means every line must be a full specification.
	defaultScheme string
}

// NewCompositeResolver creates a resolver for manifests of full specification lines.
func NewCompositeResolver(fetcher engine.Fetcher) *CompositeResolver {
	return &CompositeResolver{fetcher: fetcher}
}

// NewFileListResolver creates a resolver for manifests of plain artifact
// references; lines without a scheme are read as scan-bundle specs.
func NewFileListResolver(fetcher engine.Fetcher) *CompositeResolver {
	return &CompositeResolver{fetcher: fetcher, defaultScheme: spec.SchemeBundle}
}

// Resolve expands the manifest at d.Path.
func (r *CompositeResolver) Resolve(ctx context.Context, s *Session, d spec.Descriptor) ([]engine.ResolvedArtifact, error) {
	s.Logger().Debug().Str("path", d.Path).Msg("Scanning manifest")

	base, err := toLocation(d.Path)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}
	location := base.String()

	if err := s.manifests.Enter(location); err != nil {
		var classified *engine.Error
		if errors.As(err, &classified) {
			classified.WithSpec(d.String())
		}
		return nil, err
	}
	defer s.manifests.Leave()

	in, err := r.fetcher.Fetch(ctx, location, s.Defaults().CertificateCheck)
	if err != nil {
		return nil, ioFailure("could not open manifest", err, d, location)
	}
	defer in.Close()

	relative, absolute := placeholderBases(base)
	lookup := chain(mapLookup(map[string]string{
		PropertyThisRelative: relative,
		PropertyThisAbsolute: absolute,
	}), s.lookup())

	var artifacts []engine.ResolvedArtifact
	lines := bufio.NewScanner(in)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for lines.Scan() {
		lineNo++
		line := strings.TrimSpace(lines.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		if strings.HasPrefix(line, PropertyPrefix) {
			if err := applyProperty(s, line, lookup, d); err != nil {
				return nil, err
			}
			continue
		}

		nested, err := s.Parser().ParseLine(ResolvePlaceholders(line, lookup), r.defaultScheme)
		if err != nil {
			var classified *engine.Error
			if errors.As(err, &classified) {
				classified.WithLocation(location).WithDetail("line", lineNo)
			}
			return nil, err
		}
		path, err := resolveAgainst(base, nested.Path)
		if err != nil {
			return nil, engine.NewMalformedSpecificationError("nested path cannot be resolved", err).
				WithSpec(line).WithLocation(location).WithDetail("line", lineNo)
		}

		resolved, err := s.Dispatch(ctx, nested.WithPath(path))
		if err != nil {
			return nil, err
		}
		for i := range resolved {
			resolved[i].Settings = resolved[i].Settings.OverriddenBy(d.Settings)
		}
		artifacts = append(artifacts, resolved...)
	}
	if err := lines.Err(); err != nil {
		return nil, ioFailure("could not read manifest", err, d, location)
	}

	return artifacts, nil
}

// applyProperty handles a -Dkey=value line.
func applyProperty(s *Session, line string, lookup Lookup, d spec.Descriptor) error {
	key, value, ok := strings.Cut(strings.TrimPrefix(line, PropertyPrefix), "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return engine.NewScannerError(fmt.Sprintf("invalid property: %s", line), nil).
			WithCode(engine.ErrCodeInvalidProperty).
			WithSpec(d.String())
	}
	value = ResolvePlaceholders(value, lookup)
	s.SetProperty(key, value)
	s.Logger().Debug().Str("key", key).Str("value", value).Msg("Property set")
	return nil
}
