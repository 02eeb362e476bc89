package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

// Session properties set by the catalog-filter resolver.
const (
	PropertyOBRScript        = "provision.obr.script"
	PropertyOBRRepositoryURL = "obr.repository.url"
)

// DefaultBootstrapArtifacts are the companion artifacts emitted ahead of the
// filter script when none are configured.
var DefaultBootstrapArtifacts = []string{
	"mvn:org.apache.felix/org.apache.felix.bundlerepository",
	"mvn:org.ops4j.pax.runner/pax-runner-scanner-obr-script",
}

// OBRConfig configures the catalog-filter resolver.
type OBRConfig struct {
	// RepositoryURL is published as obr.repository.url when non-empty.
	RepositoryURL string

	// BootstrapArtifacts are emitted before anything else. Nil means DefaultBootstrapArtifacts.
	BootstrapArtifacts []string

	// ScriptDir is where the filter script is created. Empty means os.TempDir().
	ScriptDir string
}

// OBRResolver reads a list of symbolicname[/version] shorthands, translates
// each into a catalog filter and writes them, one per line, to a script
// resource owned by the resolver. The script location is published as a
// session property; the resolver's artifacts are the bootstrap artifacts.
type OBRResolver struct {
	fetcher   engine.Fetcher
	validator engine.FilterValidator
	config    OBRConfig
	logger    zerolog.Logger

	mu         sync.Mutex
	scriptPath string
}

// NewOBRResolver creates a catalog-filter resolver.
func NewOBRResolver(fetcher engine.Fetcher, validator engine.FilterValidator, cfg OBRConfig, logger zerolog.Logger) *OBRResolver {
	if cfg.BootstrapArtifacts == nil {
		cfg.BootstrapArtifacts = DefaultBootstrapArtifacts
	}
	return &OBRResolver{
		fetcher:   fetcher,
		validator: validator,
		config:    cfg,
		logger:    logger.With().Str("component", "obr").Logger(),
	}
}

// Resolve rewrites the filter script from the list at d.Path.
func (r *OBRResolver) Resolve(ctx context.Context, s *Session, d spec.Descriptor) (artifacts []engine.ResolvedArtifact, err error) {
	s.Logger().Debug().Str("path", d.Path).Msg("Scanning catalog filters")

	u, err := toLocation(d.Path)
	if err != nil {
		return nil, malformedPath(d.String(), err)
	}
	location := u.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	in, err := r.fetcher.Fetch(ctx, location, s.Defaults().CertificateCheck)
	if err != nil {
		return nil, ioFailure("could not open catalog filter list", err, d, location)
	}
	defer in.Close()

	scriptPath, err := r.ensureScript()
	if err != nil {
		return nil, ioFailure("could not create filter script", err, d, location)
	}
	out, err := os.Create(scriptPath)
	if err != nil {
		return nil, ioFailure("could not open filter script", err, d, location)
	}
	w := bufio.NewWriter(out)
	defer func() {
		flushErr := w.Flush()
		closeErr := out.Close()
		if err == nil {
			if ioErr := errors.Join(flushErr, closeErr); ioErr != nil {
				artifacts = nil
				err = ioFailure("could not write filter script", ioErr, d, location)
			}
		}
	}()

	relative, absolute := placeholderBases(u)
	lookup := chain(mapLookup(map[string]string{
		PropertyThisRelative: relative,
		PropertyThisAbsolute: absolute,
	}), s.lookup())

	lines := bufio.NewScanner(in)
	for lines.Scan() {
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
		filter, err := r.Filter(ResolvePlaceholders(line, lookup))
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Fprintln(w, filter); err != nil {
			return nil, ioFailure("could not write filter script", err, d, location)
		}
	}
	if err := lines.Err(); err != nil {
		return nil, ioFailure("could not read catalog filter list", err, d, location)
	}

	s.SetProperty(PropertyOBRScript, (&url.URL{Scheme: "file", Path: filepath.ToSlash(scriptPath)}).String())
	if r.config.RepositoryURL != "" {
		s.SetProperty(PropertyOBRRepositoryURL, r.config.RepositoryURL)
	}

	settings := d.Settings.Or(s.Defaults().Settings)
	for _, b := range r.config.BootstrapArtifacts {
		artifacts = append(artifacts, engine.ResolvedArtifact{Location: b, Settings: settings})
	}
	return artifacts, nil
}

// Filter translates symbolicname[/version] into a catalog attribute filter.
func (r *OBRResolver) Filter(shorthand string) (string, error) {
	s := strings.TrimSpace(shorthand)
	if s == "" {
		return "", engine.NewMalformedSpecificationError("catalog filter shorthand cannot be empty", nil)
	}
	segments := strings.Split(s, "/")
	if len(segments) > 2 {
		return "", engine.NewMalformedSpecificationError("catalog filter shorthand cannot contain more than one '/'", nil).
			WithSpec(shorthand)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return "", engine.NewMalformedSpecificationError("catalog filter shorthand has an empty segment", nil).
				WithSpec(shorthand)
		}
	}

	name := "(symbolicname=" + segments[0] + ")"
	if !r.validator.ValidFilter(name) {
		return "", engine.NewMalformedSpecificationError("invalid symbolic name", nil).WithSpec(shorthand)
	}
	if len(segments) == 1 {
		return name, nil
	}

	version := "(version=" + segments[1] + ")"
	if !r.validator.ValidFilter(version) {
		return "", engine.NewMalformedSpecificationError("invalid version", nil).WithSpec(shorthand)
	}
	filter := "(&" + name + version + ")"
	if !r.validator.ValidFilter(filter) {
		return "", engine.NewMalformedSpecificationError("invalid catalog filter", nil).WithSpec(shorthand)
	}
	return filter, nil
}

// ScriptPath returns the script location, or "" before the first resolve.
func (r *OBRResolver) ScriptPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scriptPath
}

// Close removes the script resource.
func (r *OBRResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scriptPath == "" {
		return nil
	}
	path := r.scriptPath
	r.scriptPath = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	r.logger.Debug().Str("script", path).Msg("Removed filter script")
	return nil
}

// ensureScript creates the script file on first use. Callers hold r.mu.
func (r *OBRResolver) ensureScript() (string, error) {
	if r.scriptPath != "" {
		r.logger.Debug().Str("script", r.scriptPath).Msg("Using filter script")
		return r.scriptPath, nil
	}
	f, err := os.CreateTemp(r.config.ScriptDir, "provision.obr.script-*.txt")
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	path, err := filepath.Abs(f.Name())
	if err != nil {
		return "", err
	}
	r.scriptPath = path
	r.logger.Debug().Str("script", r.scriptPath).Msg("Created filter script")
	return r.scriptPath, nil
}

func ioFailure(message string, err error, d spec.Descriptor, location string) *engine.Error {
	return engine.NewScannerError(message, err).
		WithCode(engine.ErrCodeIOFailure).
		WithSpec(d.String()).
		WithLocation(location)
}
