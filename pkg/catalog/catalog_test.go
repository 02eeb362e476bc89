package catalog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
)

const repoYAML = `apiVersion: provision/v1
features:
  - name: web
    version: 1.2.0
    dependencies: [http/2.0.0, logging]
    artifacts:
      - bundles/web-1.2.0.jar
  - name: web
    version: 1.10.0
    artifacts:
      - bundles/web-1.10.0.jar
  - name: http
    version: 2.0.0
  - name: logging
    version: "1.0"
`

type stubFetcher map[string]string

func (s stubFetcher) Fetch(_ context.Context, location string, _ bool) (io.ReadCloser, error) {
	content, ok := s[location]
	if !ok {
		return nil, fmt.Errorf("%s: no such file", location)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func TestParse(t *testing.T) {
	repo, err := Parse([]byte(repoYAML), "mem")
	if err != nil {
		t.Fatalf("Failed to parse repository: %v", err)
	}
	if repo.Len() != 4 {
		t.Errorf("Expected 4 features, got %d", repo.Len())
	}

	f, ok, err := repo.Lookup(context.Background(), "web", "1.2.0")
	if err != nil || !ok {
		t.Fatalf("Expected web/1.2.0, got %v %v", ok, err)
	}
	if len(f.Dependencies) != 2 {
		t.Fatalf("Expected 2 dependencies, got %d", len(f.Dependencies))
	}
	if f.Dependencies[0] != (engine.FeatureRef{Name: "http", Version: "2.0.0"}) {
		t.Errorf("Unexpected first dependency: %v", f.Dependencies[0])
	}
	if f.Dependencies[1] != (engine.FeatureRef{Name: "logging"}) {
		t.Errorf("Unexpected second dependency: %v", f.Dependencies[1])
	}
}

func TestLookup_VersionSelection(t *testing.T) {
	repo, err := Parse([]byte(repoYAML), "mem")
	if err != nil {
		t.Fatalf("Failed to parse repository: %v", err)
	}

	tests := []struct {
		name, version string
		want          string
		found         bool
	}{
		{"web", "", "1.10.0", true},
		{"web", "1.2.0", "1.2.0", true},
		{"logging", "1.0.0", "1.0", true},
		{"web", "3.0.0", "", false},
		{"missing", "", "", false},
	}
	for _, tt := range tests {
		f, found, err := repo.Lookup(context.Background(), tt.name, tt.version)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if found != tt.found {
			t.Errorf("Lookup(%s, %q): found=%v, want %v", tt.name, tt.version, found, tt.found)
			continue
		}
		if found && f.Version != tt.want {
			t.Errorf("Lookup(%s, %q) = %s, want %s", tt.name, tt.version, f.Version, tt.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "features: [",
		"wrong version":  "apiVersion: v0\nfeatures: []\n",
		"missing name":   "apiVersion: provision/v1\nfeatures:\n  - version: 1.0.0\n",
		"slash in name":  "apiVersion: provision/v1\nfeatures:\n  - name: a/b\n    version: 1.0.0\n",
		"duplicate":      "apiVersion: provision/v1\nfeatures:\n  - {name: a, version: 1.0.0}\n  - {name: a, version: 1.0.0}\n",
		"bad dependency": "apiVersion: provision/v1\nfeatures:\n  - name: a\n    version: 1.0.0\n    dependencies: [\"x/1/2\"]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), "mem"); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.10.0", "1.2.0", 1},
		{"1.0", "1.0.0", 0},
		{"v2.0.0", "1.9.9", 1},
		{"1.0.0", "snapshot", 1},
		{"alpha", "beta", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLoader(t *testing.T) {
	l := NewLoader(stubFetcher{"http://repo.test/features.yml": repoYAML}, zerolog.Nop())

	c, err := l.LoadCatalog(context.Background(), "http://repo.test/features.yml", true)
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	if _, ok, _ := c.Lookup(context.Background(), "http", ""); !ok {
		t.Error("Expected http feature")
	}

	_, err = l.LoadCatalog(context.Background(), "http://repo.test/none.yml", true)
	if !engine.IsScanner(err) || engine.CodeOf(err) != engine.ErrCodeIOFailure {
		t.Errorf("Expected I/O failure, got %v", err)
	}
}

func TestLDAPFilterValidator(t *testing.T) {
	v := LDAPFilterValidator{}

	valid := []string{
		"(symbolicname=org.example.api)",
		"(&(symbolicname=org.example.api)(version=1.0))",
	}
	for _, expr := range valid {
		if !v.ValidFilter(expr) {
			t.Errorf("Expected %q to be valid", expr)
		}
	}

	invalid := []string{"", "symbolicname=a", "(symbolicname=a", "(&(a=b)"}
	for _, expr := range invalid {
		if v.ValidFilter(expr) {
			t.Errorf("Expected %q to be invalid", expr)
		}
	}
}
