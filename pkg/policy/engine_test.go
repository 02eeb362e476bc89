package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/telemetry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	var names []string
	for _, p := range eng.ListPolicies() {
		names = append(names, p.Name)
	}
	want := "artifact-location,priority-range,transport-security"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("expected built-in policies %s, got %s", want, got)
	}
}

func TestEvaluate_BuiltinPolicies(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name         string
		artifact     engine.ResolvedArtifact
		wantAllowed  bool
		wantPolicies []string // violated policies, blocking or not
	}{
		{
			name:        "https artifact",
			artifact:    engine.ResolvedArtifact{Location: "https://repo.test/a.jar"},
			wantAllowed: true,
		},
		{
			name:        "local path",
			artifact:    engine.ResolvedArtifact{Location: "/opt/bundles/a.jar"},
			wantAllowed: true,
		},
		{
			name:         "empty location",
			artifact:     engine.ResolvedArtifact{Location: ""},
			wantAllowed:  false,
			wantPolicies: []string{"artifact-location"},
		},
		{
			name:         "plain http",
			artifact:     engine.ResolvedArtifact{Location: "http://repo.test/a.jar"},
			wantAllowed:  true,
			wantPolicies: []string{"transport-security"},
		},
		{
			name: "zero priority",
			artifact: engine.ResolvedArtifact{
				Location: "file:///a.jar",
				Settings: engine.Settings{Priority: engine.Int(0)},
			},
			wantAllowed:  false,
			wantPolicies: []string{"priority-range"},
		},
		{
			name: "valid priority",
			artifact: engine.ResolvedArtifact{
				Location: "mvn:org.example/api/1.0",
				Settings: engine.Settings{Priority: engine.Int(3)},
			},
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.artifact)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("expected allowed=%v, got %v (%+v)", tt.wantAllowed, result.Allowed, result)
			}
			var got []string
			for _, v := range append(result.Violations, result.Warnings...) {
				got = append(got, v.Policy)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantPolicies, ",") {
				t.Errorf("expected violations %v, got %v", tt.wantPolicies, got)
			}
			if len(result.EvaluatedPolicies) != 3 {
				t.Errorf("expected 3 evaluated policies, got %v", result.EvaluatedPolicies)
			}
		})
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	empty := engine.ResolvedArtifact{}

	if err := eng.DisablePolicy("artifact-location"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	result, err := eng.Evaluate(ctx, empty)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Error("expected disabled policy not to block")
	}

	if err := eng.EnablePolicy("artifact-location"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	result, err = eng.Evaluate(ctx, empty)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Error("expected re-enabled policy to block")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestLoadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()
	rego := `# Only artifacts from the internal repository.
package custom.origin

import rego.v1

deny contains msg if {
	not startswith(input.artifact.location, "https://repo.internal/")
	msg := sprintf("%s is not from the internal repository", [input.artifact.location])
}
`
	if err := os.WriteFile(filepath.Join(dir, "origin.rego"), []byte(rego), 0644); err != nil {
		t.Fatal(err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	p, err := eng.GetPolicy("origin")
	if err != nil {
		t.Fatalf("expected loaded policy: %v", err)
	}
	if p.Description != "Only artifacts from the internal repository." {
		t.Errorf("unexpected description %q", p.Description)
	}

	result, err := eng.Evaluate(context.Background(), engine.ResolvedArtifact{Location: "https://elsewhere.test/a.jar"})
	if err != nil {
		t.Fatal(err)
	}
	// Rego file policies default to warning severity.
	if !result.Allowed || len(result.Warnings) != 1 || result.Warnings[0].Policy != "origin" {
		t.Errorf("expected one origin warning, got %+v", result)
	}
}

func TestApplyPolicies_InvalidKeepsCurrent(t *testing.T) {
	eng := newTestEngine(t)
	bad := Policy{Name: "broken", Rego: "package x\n\ndeny contains if {", Enabled: true}

	if err := eng.ApplyPolicies(context.Background(), []Policy{bad}); err == nil {
		t.Fatal("expected compile error")
	}
	if len(eng.ListPolicies()) != 3 {
		t.Errorf("expected built-ins to remain, got %d policies", len(eng.ListPolicies()))
	}
}

func TestGate_Admit(t *testing.T) {
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	var published []telemetry.Event
	events.Subscribe(func(e telemetry.Event) { published = append(published, e) }, nil)

	gate := NewGate(newTestEngine(t), zerolog.Nop(), &telemetry.Telemetry{Events: events})
	ctx := context.Background()

	if err := gate.Admit(ctx, engine.ResolvedArtifact{Location: "https://repo.test/a.jar"}); err != nil {
		t.Errorf("expected https artifact to be admitted, got %v", err)
	}
	if err := gate.Admit(ctx, engine.ResolvedArtifact{Location: "http://repo.test/a.jar"}); err != nil {
		t.Errorf("expected warning-only artifact to be admitted, got %v", err)
	}

	err = gate.Admit(ctx, engine.ResolvedArtifact{Location: "file:///a.jar", Settings: engine.Settings{Priority: engine.Int(-1)}})
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Location != "file:///a.jar" || len(denied.Violations) != 1 || denied.Violations[0].Policy != "priority-range" {
		t.Errorf("unexpected denial %+v", denied)
	}

	if len(published) != 2 {
		t.Fatalf("expected 2 violation events, got %d", len(published))
	}
	if published[0].Level != telemetry.EventLevelWarning || published[1].Level != telemetry.EventLevelError {
		t.Errorf("unexpected event levels %s, %s", published[0].Level, published[1].Level)
	}
}

func TestSchemeOf(t *testing.T) {
	tests := map[string]string{
		"":                        "",
		"HTTPS://repo.test/a.jar": "https",
		"/opt/a.jar":              "file",
		"C:/bundles/a.jar":        "file",
		"mvn:org.example/api":     "mvn",
	}
	for in, want := range tests {
		if got := schemeOf(in); got != want {
			t.Errorf("schemeOf(%q) = %q, want %q", in, got, want)
		}
	}
}
