package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/spec"
)

func TestComposite_LinesInOrder(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/profiles/main.txt": `# base profile

scan-bundle:bundles/a.jar
   # indented comment
scan-bundle:bundles/b.jar@3
scan-bundle:http://mirror.test/c.jar@nostart
`,
	})

	res := f.scan(t, "scan-composite:http://repo.test/profiles/main.txt")
	assertLocations(t, res.Artifacts,
		"http://repo.test/profiles/bundles/a.jar",
		"http://repo.test/profiles/bundles/b.jar",
		"http://mirror.test/c.jar",
	)
	assertSettings(t, res.Artifacts[1], engine.Int(3), nil, nil)
	assertSettings(t, res.Artifacts[2], nil, engine.Bool(false), nil)
	if f.fetcher.open() != 0 {
		t.Errorf("Expected manifest stream to be closed, %d still open", f.fetcher.open())
	}
}

func TestComposite_CommentsNeverDispatched(t *testing.T) {
	fetcher := newMemFetcher(map[string]string{
		"http://repo.test/m.txt": "#a\n\n   \n# scan-bundle:x.jar\nscan-bundle:y.jar\n",
	})
	d := NewDispatcher(nil, zerolog.Nop(), nil)
	calls := 0
	_ = d.Register(spec.SchemeBundle, ResolverFunc(func(_ context.Context, _ *Session, desc spec.Descriptor) ([]engine.ResolvedArtifact, error) {
		calls++
		return []engine.ResolvedArtifact{{Location: desc.Path}}, nil
	}))
	_ = d.Register(spec.SchemeComposite, NewCompositeResolver(fetcher))

	res, err := d.Scan(context.Background(), "scan-composite:http://repo.test/m.txt")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 nested resolve, got %d", calls)
	}
	assertLocations(t, res.Artifacts, "http://repo.test/y.jar")
}

func TestComposite_OverridesNestedSettings(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/m.txt": "scan-bundle:a.jar@2@start@noupdate\nscan-bundle:b.jar\n",
	})
	f.dispatch.SetDefaults(&engine.Defaults{Settings: engine.Settings{AutoUpdate: engine.Bool(true)}})

	res := f.scan(t, "scan-composite:http://repo.test/m.txt@9@nostart")
	if len(res.Artifacts) != 2 {
		t.Fatalf("Expected 2 artifacts, got %d", len(res.Artifacts))
	}
	// Explicit composite values replace the nested ones; unset ones pass through.
	assertSettings(t, res.Artifacts[0], engine.Int(9), engine.Bool(false), engine.Bool(false))
	assertSettings(t, res.Artifacts[1], engine.Int(9), engine.Bool(false), engine.Bool(true))
}

func TestComposite_PropertiesAndPlaceholders(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/profiles/main.txt": `-Dlib=${this.relative}/lib
-Dversion=1.2=final
scan-bundle:${lib}/a-${version}.jar
scan-bundle:${this.absolute}/root.jar
`,
	})

	res := f.scan(t, "scan-composite:http://repo.test/profiles/main.txt")
	assertLocations(t, res.Artifacts,
		"http://repo.test/profiles/lib/a-1.2=final.jar",
		"http://repo.test/root.jar",
	)
	if v := res.Properties["lib"]; v != "http://repo.test/profiles/lib" {
		t.Errorf("Expected lib property in resolution, got %q", v)
	}
	if v := res.Properties["version"]; v != "1.2=final" {
		t.Errorf("Expected value split at first '=', got %q", v)
	}
}

func TestComposite_PropertiesVisibleToNestedManifests(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/outer.txt": "-Dmirror=http://mirror.test\nscan-composite:inner.txt\n",
		"http://repo.test/inner.txt": "scan-bundle:${mirror}/a.jar\n-Dmirror=http://other.test\n",
		"http://repo.test/after.txt": "scan-composite:outer.txt\nscan-bundle:${mirror}/b.jar\n",
	})

	res := f.scan(t, "scan-composite:http://repo.test/after.txt")
	assertLocations(t, res.Artifacts, "http://mirror.test/a.jar", "http://other.test/b.jar")
}

func TestComposite_InvalidProperty(t *testing.T) {
	for _, line := range []string{"-Dnovalue", "-D=value"} {
		f := newFixture(t, map[string]string{"http://repo.test/m.txt": line + "\n"})
		_, err := f.dispatch.Scan(context.Background(), "scan-composite:http://repo.test/m.txt")
		if !engine.IsScanner(err) || engine.CodeOf(err) != engine.ErrCodeInvalidProperty {
			t.Errorf("%q: expected invalid property error, got %v", line, err)
		}
	}
}

func TestComposite_Cycle(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/a.txt": "scan-bundle:x.jar\nscan-composite:b.txt\n",
		"http://repo.test/b.txt": "scan-composite:http://repo.test/a.txt\n",
	})

	_, err := f.dispatch.Scan(context.Background(), "scan-composite:http://repo.test/a.txt")
	if !engine.IsScanner(err) || engine.CodeOf(err) != engine.ErrCodeCycleDetected {
		t.Fatalf("Expected cycle error, got %v", err)
	}
	if f.fetcher.open() != 0 {
		t.Errorf("Expected all manifest streams closed, %d still open", f.fetcher.open())
	}
}

func TestComposite_DiamondIsNotACycle(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/top.txt":    "scan-composite:left.txt\nscan-composite:right.txt\n",
		"http://repo.test/left.txt":   "scan-composite:shared.txt\n",
		"http://repo.test/right.txt":  "scan-composite:shared.txt\n",
		"http://repo.test/shared.txt": "scan-bundle:s.jar\n",
	})

	res := f.scan(t, "scan-composite:http://repo.test/top.txt")
	assertLocations(t, res.Artifacts, "http://repo.test/s.jar", "http://repo.test/s.jar")
}

func TestComposite_MalformedNestedLine(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/m.txt": "scan-bundle:a.jar\nscan-bundle:b.jar@start@start\n",
	})

	_, err := f.dispatch.Scan(context.Background(), "scan-composite:http://repo.test/m.txt")
	if !engine.IsMalformedSpecification(err) {
		t.Fatalf("Expected malformed specification, got %v", err)
	}
	var classified *engine.Error
	if !errors.As(err, &classified) {
		t.Fatal("Expected *engine.Error")
	}
	if classified.Location != "http://repo.test/m.txt" || classified.Details["line"] != 2 {
		t.Errorf("Expected location and line 2, got %q %v", classified.Location, classified.Details["line"])
	}
	if f.fetcher.open() != 0 {
		t.Errorf("Expected manifest stream to be closed")
	}
}

func TestComposite_UnknownSchemeLine(t *testing.T) {
	f := newFixture(t, map[string]string{"http://repo.test/m.txt": "a.jar\n"})

	_, err := f.dispatch.Scan(context.Background(), "scan-composite:http://repo.test/m.txt")
	if !engine.IsMalformedSpecification(err) {
		t.Errorf("Expected malformed specification for scheme-less line, got %v", err)
	}
}

func TestComposite_FetchFailure(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.dispatch.Scan(context.Background(), "scan-composite:http://repo.test/missing.txt")
	if !engine.IsScanner(err) || engine.CodeOf(err) != engine.ErrCodeIOFailure {
		t.Errorf("Expected I/O failure, got %v", err)
	}
}

func TestFileList_PlainLines(t *testing.T) {
	f := newFixture(t, map[string]string{
		"http://repo.test/list.txt": "# artifacts\na.jar@5\nscan-dir:http://repo.test/dir\n",
	})
	f.lister.entries["http://repo.test/dir"] = []string{"b.jar"}

	res := f.scan(t, "scan-file:http://repo.test/list.txt")
	assertLocations(t, res.Artifacts, "http://repo.test/a.jar", "http://repo.test/dir/b.jar")
	assertSettings(t, res.Artifacts[0], engine.Int(5), nil, nil)
}
