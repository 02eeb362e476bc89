package scanner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
)

// memFetcher serves manifests from memory and counts open streams.
type memFetcher struct {
	mu      sync.Mutex
	files   map[string]string
	opened  int
	closed  int
	fetched []string
}

func newMemFetcher(files map[string]string) *memFetcher {
	return &memFetcher{files: files}
}

func (f *memFetcher) Fetch(_ context.Context, location string, _ bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[location]
	if !ok {
		return nil, fmt.Errorf("%s: not found", location)
	}
	f.opened++
	f.fetched = append(f.fetched, location)
	return &trackedReader{Reader: strings.NewReader(content), onClose: func() {
		f.mu.Lock()
		f.closed++
		f.mu.Unlock()
	}}, nil
}

func (f *memFetcher) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened - f.closed
}

type trackedReader struct {
	*strings.Reader
	onClose func()
}

func (r *trackedReader) Close() error {
	r.onClose()
	return nil
}

// memLister returns fixed listings per root.
type memLister struct {
	entries map[string][]string
}

func (l *memLister) List(_ context.Context, root string) ([]string, error) {
	entries, ok := l.entries[root]
	if !ok {
		return nil, fmt.Errorf("%s: permission denied", root)
	}
	return entries, nil
}

// memCatalog is a feature catalog keyed by name/version.
type memCatalog struct {
	features map[string]*engine.Feature
	latest   map[string]string
}

func newMemCatalog(features ...*engine.Feature) *memCatalog {
	c := &memCatalog{features: map[string]*engine.Feature{}, latest: map[string]string{}}
	for _, f := range features {
		c.features[f.Name+"/"+f.Version] = f
		if f.Version > c.latest[f.Name] {
			c.latest[f.Name] = f.Version
		}
	}
	return c
}

func (c *memCatalog) Lookup(_ context.Context, name, version string) (*engine.Feature, bool, error) {
	if version == "" {
		version = c.latest[name]
	}
	f, ok := c.features[name+"/"+version]
	return f, ok, nil
}

type memCatalogLoader struct {
	catalogs map[string]*memCatalog
	loads    int
}

func (l *memCatalogLoader) LoadCatalog(_ context.Context, repositoryURL string, _ bool) (engine.FeatureCatalog, error) {
	l.loads++
	c, ok := l.catalogs[repositoryURL]
	if !ok {
		return nil, fmt.Errorf("%s: not found", repositoryURL)
	}
	return c, nil
}

// parenValidator accepts balanced, whitespace-free expressions.
type parenValidator struct{}

func (parenValidator) ValidFilter(expr string) bool {
	return strings.Count(expr, "(") == strings.Count(expr, ")") &&
		!strings.ContainsAny(expr, " \t") &&
		!strings.Contains(expr, "=)")
}

type fixture struct {
	fetcher  *memFetcher
	lister   *memLister
	loader   *memCatalogLoader
	dispatch *Dispatcher
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: newMemFetcher(files),
		lister:  &memLister{entries: map[string][]string{}},
		loader:  &memCatalogLoader{catalogs: map[string]*memCatalog{}},
	}
	d, err := NewDefaultDispatcher(Dependencies{
		Fetcher:   f.fetcher,
		Lister:    f.lister,
		Catalogs:  f.loader,
		Validator: parenValidator{},
		OBR: OBRConfig{
			RepositoryURL: "http://obr.test/repository.xml",
			ScriptDir:     t.TempDir(),
		},
	}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("Expected dispatcher, got error: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	f.dispatch = d
	return f
}

func (f *fixture) scan(t *testing.T, raw string) *engine.Resolution {
	t.Helper()
	res, err := f.dispatch.Scan(context.Background(), raw)
	if err != nil {
		t.Fatalf("Expected %q to resolve, got: %v", raw, err)
	}
	return res
}

func locations(artifacts []engine.ResolvedArtifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Location
	}
	return out
}

func assertLocations(t *testing.T, artifacts []engine.ResolvedArtifact, want ...string) {
	t.Helper()
	got := locations(artifacts)
	if len(got) != len(want) {
		t.Fatalf("Expected %d artifacts %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Artifact %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func assertSettings(t *testing.T, a engine.ResolvedArtifact, priority *int, start, update *bool) {
	t.Helper()
	if (priority == nil) != (a.Priority == nil) || (priority != nil && *priority != *a.Priority) {
		t.Errorf("%s: unexpected priority %v", a.Location, fmtInt(a.Priority))
	}
	if (start == nil) != (a.AutoStart == nil) || (start != nil && *start != *a.AutoStart) {
		t.Errorf("%s: unexpected autostart %v", a.Location, fmtBool(a.AutoStart))
	}
	if (update == nil) != (a.AutoUpdate == nil) || (update != nil && *update != *a.AutoUpdate) {
		t.Errorf("%s: unexpected autoupdate %v", a.Location, fmtBool(a.AutoUpdate))
	}
}

func fmtInt(v *int) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprint(*v)
}

func fmtBool(v *bool) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprint(*v)
}
