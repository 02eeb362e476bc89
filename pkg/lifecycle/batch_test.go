package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/openfroyo/provision/pkg/engine"
)

func artifacts(locations ...string) []engine.ResolvedArtifact {
	out := make([]engine.ResolvedArtifact, len(locations))
	for i, loc := range locations {
		out[i] = artifact(loc, engine.Settings{})
	}
	return out
}

func TestBatch_InstallAll(t *testing.T) {
	rt := newFakeRuntime()
	in := artifacts("a.jar", "b.jar")
	in = append(in, artifact("c.jar", engine.Settings{AutoStart: engine.Bool(true)}))
	b := NewBatch(in, options(rt))

	if b.ID() == "" || b.Len() != 3 {
		t.Fatalf("unexpected batch id=%q len=%d", b.ID(), b.Len())
	}
	if err := b.InstallAll(context.Background()); err != nil {
		t.Fatalf("install all failed: %v", err)
	}
	want := []string{"install:a.jar", "install:b.jar", "install:c.jar", "start:c.jar"}
	if fmt.Sprint(rt.calls) != fmt.Sprint(want) {
		t.Errorf("expected calls %v, got %v", want, rt.calls)
	}
	wantStates := []engine.State{engine.StateInstalled, engine.StateInstalled, engine.StateStarted}
	if fmt.Sprint(b.States()) != fmt.Sprint(wantStates) {
		t.Errorf("expected states %v, got %v", wantStates, b.States())
	}

	if err := b.StartAll(context.Background()); err != nil {
		t.Fatalf("start all failed: %v", err)
	}
	if rt.count("install:") != 3 || rt.count("start:") != 3 {
		t.Errorf("expected 3 installs and 3 starts, got %v", rt.calls)
	}
}

func TestBatch_FailFast(t *testing.T) {
	rt := newFakeRuntime()
	rt.failOn["install:b.jar"] = errors.New("disk full")
	b := NewBatch(artifacts("a.jar", "b.jar", "c.jar"), options(rt))

	err := b.InstallAll(context.Background())
	if !engine.IsInstallation(err) {
		t.Fatalf("expected installation error, got %v", err)
	}
	var e *engine.Error
	if !errors.As(err, &e) || e.Details["index"] != 1 || e.Location != "b.jar" {
		t.Errorf("expected failure at index 1 for b.jar, got %+v", e)
	}
	wantStates := []engine.State{engine.StateInstalled, engine.StatePending, engine.StatePending}
	if fmt.Sprint(b.States()) != fmt.Sprint(wantStates) {
		t.Errorf("expected states %v, got %v", wantStates, b.States())
	}
	if rt.count("install:c.jar") != 0 {
		t.Error("members after the failure must not be touched")
	}
}

func TestBatch_StartAll_FromPending(t *testing.T) {
	rt := newFakeRuntime()
	b := NewBatch(artifacts("a.jar", "b.jar"), options(rt))

	if err := b.StartAll(context.Background()); err != nil {
		t.Fatalf("start all failed: %v", err)
	}
	want := []string{"install:a.jar", "start:a.jar", "install:b.jar", "start:b.jar"}
	if fmt.Sprint(rt.calls) != fmt.Sprint(want) {
		t.Errorf("expected calls %v, got %v", want, rt.calls)
	}
}

func TestBatch_Admitter(t *testing.T) {
	rt := newFakeRuntime()
	opts := options(rt)
	var seen []string
	opts.Admitter = AdmitterFunc(func(_ context.Context, a engine.ResolvedArtifact) error {
		seen = append(seen, a.Location)
		if strings.HasPrefix(a.Location, "http:") {
			return errors.New("plain http is not allowed")
		}
		return nil
	})
	b := NewBatch(artifacts("a.jar", "http://repo.test/b.jar", "c.jar"), opts)

	err := b.InstallAll(context.Background())
	if engine.CodeOf(err) != engine.ErrCodePolicyDenied {
		t.Fatalf("expected POLICY_DENIED, got %v", err)
	}
	if rt.count("install:") != 1 {
		t.Errorf("expected only a.jar installed, got %v", rt.calls)
	}

	// Members already past pending are not re-admitted.
	seen = nil
	ok := NewBatch(artifacts("d.jar", "e.jar"), opts)
	if err := ok.InstallAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := ok.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(seen) != "[d.jar e.jar]" {
		t.Errorf("expected one admission per member, got %v", seen)
	}
}

func TestBatch_Cancelled(t *testing.T) {
	rt := newFakeRuntime()
	b := NewBatch(artifacts("a.jar"), options(rt))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.InstallAll(ctx)
	if !engine.IsInstallation(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled installation error, got %v", err)
	}
	if len(rt.calls) != 0 {
		t.Errorf("expected no runtime calls, got %v", rt.calls)
	}
}

func TestBatch_Members(t *testing.T) {
	b := NewBatch(artifacts("a.jar", "b.jar"), options(newFakeRuntime()))
	members := b.Members()
	members[0] = nil
	if b.Members()[0] == nil {
		t.Error("Members must return a copy")
	}
	if b.Members()[1].Artifact().Location != "b.jar" {
		t.Error("members must keep resolution order")
	}
}
