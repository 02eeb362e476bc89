package spec

import (
	"testing"

	"github.com/openfroyo/provision/pkg/engine"
)

func TestParse_ValidSpecs(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		scheme     string
		path       string
		filter     string
		priority   *int
		autostart  *bool
		autoupdate *bool
	}{
		{
			name:   "bare path",
			raw:    "scan-bundle:file:/tmp/a.jar",
			scheme: SchemeBundle,
			path:   "file:/tmp/a.jar",
		},
		{
			name:       "all options",
			raw:        "scan-composite:http://repo/profile.txt@5@start@update",
			scheme:     SchemeComposite,
			path:       "http://repo/profile.txt",
			priority:   engine.Int(5),
			autostart:  engine.Bool(true),
			autoupdate: engine.Bool(true),
		},
		{
			name:       "options in any order",
			raw:        "scan-file:file:/m.txt@noupdate@nostart@12",
			scheme:     SchemeFile,
			path:       "file:/m.txt",
			priority:   engine.Int(12),
			autostart:  engine.Bool(false),
			autoupdate: engine.Bool(false),
		},
		{
			name:     "glob filter",
			raw:      "scan-dir:file:/opt/bundles#*.jar@3",
			scheme:   SchemeDir,
			path:     "file:/opt/bundles",
			filter:   "*.jar",
			priority: engine.Int(3),
		},
		{
			name:      "feature list filter with slashes",
			raw:       "scan-features:file:/repo.yaml#web/1.0,db@start",
			scheme:    SchemeFeatures,
			path:      "file:/repo.yaml",
			filter:    "web/1.0,db",
			autostart: engine.Bool(true),
		},
		{
			name:     "user info kept in path",
			raw:      "scan-file:http://user@repo/list.txt@2",
			scheme:   SchemeFile,
			path:     "http://user@repo/list.txt",
			priority: engine.Int(2),
		},
		{
			name:     "user info without path",
			raw:      "scan-bundle:http://user@host@5",
			scheme:   SchemeBundle,
			path:     "http://user@host",
			priority: engine.Int(5),
		},
		{
			name:      "user info with several options",
			raw:       "scan-bundle:http://user@host@start@2",
			scheme:    SchemeBundle,
			path:      "http://user@host",
			priority:  engine.Int(2),
			autostart: engine.Bool(true),
		},
		{
			name:   "surrounding whitespace",
			raw:    "  scan-obr:file:/obr.txt  ",
			scheme: SchemeOBR,
			path:   "file:/obr.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if d.Scheme != tt.scheme {
				t.Errorf("Expected scheme %q, got %q", tt.scheme, d.Scheme)
			}
			if d.Path != tt.path {
				t.Errorf("Expected path %q, got %q", tt.path, d.Path)
			}
			if d.Filter != tt.filter {
				t.Errorf("Expected filter %q, got %q", tt.filter, d.Filter)
			}
			assertIntPtr(t, "priority", tt.priority, d.Priority)
			assertBoolPtr(t, "autostart", tt.autostart, d.AutoStart)
			assertBoolPtr(t, "autoupdate", tt.autoupdate, d.AutoUpdate)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"no scheme", "/tmp/a.jar"},
		{"leading colon", ":/tmp/a.jar"},
		{"unregistered scheme", "scan-maven:org.foo/bar"},
		{"empty path", "scan-bundle:"},
		{"empty path with options", "scan-bundle:@5"},
		{"start and nostart", "scan-bundle:a.jar@start@nostart"},
		{"update twice", "scan-bundle:a.jar@update@update"},
		{"two priorities", "scan-bundle:a.jar@1@2"},
		{"zero priority", "scan-bundle:a.jar@0"},
		{"negative priority", "scan-bundle:a.jar@-1"},
		{"unknown token", "scan-bundle:a.jar@later"},
		{"empty token", "scan-bundle:a.jar@@5"},
		{"trailing empty token", "scan-bundle:a.jar@5@"},
		{"user info with unknown token", "scan-bundle:http://user@host@later"},
		{"filter on composite", "scan-composite:file:/m.txt#x"},
		{"empty bundle filter", "scan-bundle:a.jar#"},
		{"bad glob", "scan-dir:file:/d#[a"},
		{"missing feature list", "scan-features:file:/repo.yaml"},
		{"feature with two slashes", "scan-features:file:/repo.yaml#a/1/2"},
		{"empty feature item", "scan-features:file:/repo.yaml#a,,b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatalf("Expected error for %q, got nil", tt.raw)
			}
			if !engine.IsMalformedSpecification(err) {
				t.Errorf("Expected malformed specification error, got %v", err)
			}
		})
	}
}

func TestDescriptor_String_RoundTrip(t *testing.T) {
	raws := []string{
		"scan-bundle:file:/tmp/a.jar",
		"scan-bundle:file:/tmp/a.jar#META-INF/x@4@nostart",
		"scan-dir:file:/opt#**.jar@update@7",
		"scan-features:http://repo/features.yaml#web/1.0,db@start@noupdate",
		"scan-composite:http://user@repo/p.txt@1@start@update",
	}

	for _, raw := range raws {
		first, err := Parse(raw)
		if err != nil {
			t.Fatalf("Expected %q to parse, got: %v", raw, err)
		}
		second, err := Parse(first.String())
		if err != nil {
			t.Fatalf("Expected %q to re-parse, got: %v", first.String(), err)
		}
		if first.Scheme != second.Scheme || first.Path != second.Path || first.Filter != second.Filter {
			t.Errorf("Round trip changed descriptor: %+v -> %+v", first, second)
		}
		assertIntPtr(t, "priority", first.Priority, second.Priority)
		assertBoolPtr(t, "autostart", first.AutoStart, second.AutoStart)
		assertBoolPtr(t, "autoupdate", first.AutoUpdate, second.AutoUpdate)
	}
}

func TestDescriptor_String_CanonicalOrder(t *testing.T) {
	d, err := Parse("scan-bundle:a.jar@update@start@9")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := d.String(); got != "scan-bundle:a.jar@9@start@update" {
		t.Errorf("Expected canonical form, got %q", got)
	}
}

func TestParser_ParseLine_DefaultScheme(t *testing.T) {
	p := NewParser(nil)

	d, err := p.ParseLine("file:/tmp/a.jar@3", SchemeBundle)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Scheme != SchemeBundle || d.Path != "file:/tmp/a.jar" {
		t.Errorf("Expected scan-bundle:file:/tmp/a.jar, got %s", d)
	}

	d, err = p.ParseLine("scan-dir:file:/opt", SchemeBundle)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if d.Scheme != SchemeDir {
		t.Errorf("Expected explicit scheme to be kept, got %s", d.Scheme)
	}

	if _, err := p.ParseLine("file:/tmp/a.jar", ""); !engine.IsMalformedSpecification(err) {
		t.Errorf("Expected malformed error without default scheme, got %v", err)
	}
}

func TestSchemeTable_Register(t *testing.T) {
	table := NewSchemeTable()

	if err := table.Register("scan-x", FilterAny); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := table.Register("scan-x", FilterAny); err != nil {
		t.Errorf("Expected idempotent registration, got: %v", err)
	}
	if err := table.Register("scan-x", FilterNone); err != ErrConflictingRegistration {
		t.Errorf("Expected ErrConflictingRegistration, got: %v", err)
	}
	if err := table.Register("", FilterNone); err != ErrEmptyScheme {
		t.Errorf("Expected ErrEmptyScheme, got: %v", err)
	}

	p := NewParser(table)
	if _, err := p.Parse("scan-x:thing#f"); err != nil {
		t.Errorf("Expected custom scheme to parse, got: %v", err)
	}
	if _, err := p.Parse("scan-bundle:thing"); err == nil {
		t.Error("Expected built-in scheme to be unknown to a custom table")
	}
}

func TestParseFeatureList(t *testing.T) {
	refs, err := ParseFeatureList("web/1.0, db ,cache/2.1.0")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := []engine.FeatureRef{{Name: "web", Version: "1.0"}, {Name: "db"}, {Name: "cache", Version: "2.1.0"}}
	if len(refs) != len(want) {
		t.Fatalf("Expected %d refs, got %d", len(want), len(refs))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("Ref %d: expected %+v, got %+v", i, want[i], refs[i])
		}
	}

	for _, bad := range []string{"", "a/", "/1.0", "a/1/2"} {
		if _, err := ParseFeatureList(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func assertIntPtr(t *testing.T, field string, want, got *int) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("Expected %s unset, got %d", field, *got)
	case want != nil && got == nil:
		t.Errorf("Expected %s %d, got unset", field, *want)
	case want != nil && *want != *got:
		t.Errorf("Expected %s %d, got %d", field, *want, *got)
	}
}

func assertBoolPtr(t *testing.T, field string, want, got *bool) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("Expected %s unset, got %t", field, *got)
	case want != nil && got == nil:
		t.Errorf("Expected %s %t, got unset", field, *want)
	case want != nil && *want != *got:
		t.Errorf("Expected %s %t, got %t", field, *want, *got)
	}
}
