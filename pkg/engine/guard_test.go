package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestReferenceStack_Enter_DetectsCycle(t *testing.T) {
	stack := NewReferenceStack("manifest")

	if err := stack.Enter("a"); err != nil {
		t.Fatalf("Expected no error entering a, got: %v", err)
	}
	if err := stack.Enter("b"); err != nil {
		t.Fatalf("Expected no error entering b, got: %v", err)
	}

	err := stack.Enter("a")
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if !IsScanner(err) {
		t.Errorf("Expected scanner error, got %v", err)
	}
	if CodeOf(err) != ErrCodeCycleDetected {
		t.Errorf("Expected code %s, got %s", ErrCodeCycleDetected, CodeOf(err))
	}
	if !strings.Contains(err.Error(), "a -> b -> a") {
		t.Errorf("Expected cycle path in message, got %q", err.Error())
	}
}

func TestReferenceStack_Leave_AllowsSharedReference(t *testing.T) {
	stack := NewReferenceStack("feature")

	// Diamond: root -> left -> shared, root -> right -> shared.
	mustEnter(t, stack, "root")
	mustEnter(t, stack, "left")
	mustEnter(t, stack, "shared")
	stack.Leave()
	stack.Leave()
	mustEnter(t, stack, "right")
	mustEnter(t, stack, "shared")

	if stack.Depth() != 3 {
		t.Errorf("Expected depth 3, got %d", stack.Depth())
	}
}

func TestReferenceStack_Leave_Empty(t *testing.T) {
	stack := NewReferenceStack("manifest")
	stack.Leave()
	if stack.Depth() != 0 {
		t.Errorf("Expected depth 0, got %d", stack.Depth())
	}
}

func TestError_Is_MatchesClassAndCode(t *testing.T) {
	err := NewScannerError("boom", errors.New("io")).WithCode(ErrCodeIOFailure)
	sentinel := &Error{Class: ErrorClassScanner, Code: ErrCodeIOFailure}

	if !errors.Is(err, sentinel) {
		t.Error("Expected errors.Is to match class and code")
	}
	if errors.Is(err, &Error{Class: ErrorClassListing, Code: ErrCodeIOFailure}) {
		t.Error("Expected class mismatch not to match")
	}
}

func TestError_Error_Format(t *testing.T) {
	err := NewMalformedSpecificationError("missing scheme", nil).WithSpec("foo")
	if got := err.Error(); got != "[malformed_specification] missing scheme (spec=foo)" {
		t.Errorf("Unexpected message: %q", got)
	}

	wrapped := NewScannerError("read manifest", errors.New("eof")).WithLocation("file:/m.txt")
	if got := wrapped.Error(); got != "[scanner] read manifest (location=file:/m.txt): eof" {
		t.Errorf("Unexpected message: %q", got)
	}
}

func TestError_Predicates_ThroughWrapping(t *testing.T) {
	inner := NewInstallationError("no handle", nil).WithCode(ErrCodeNoHandle)
	err := errors.Join(errors.New("batch"), inner)

	if !IsInstallation(err) {
		t.Error("Expected IsInstallation through join")
	}
	if IsScanner(err) || IsListing(err) || IsUnsupportedScheme(err) || IsMalformedSpecification(err) {
		t.Error("Expected other predicates to be false")
	}
	if ClassOf(errors.New("plain")) != "" {
		t.Error("Expected empty class for plain error")
	}
}

func TestSettings_Or_ExplicitWins(t *testing.T) {
	explicit := Settings{Priority: Int(3), AutoStart: Bool(false), AutoUpdate: Bool(true)}
	fallback := Settings{Priority: Int(7), AutoStart: Bool(true), AutoUpdate: Bool(false)}

	got := explicit.Or(fallback)
	if *got.Priority != 3 || *got.AutoStart != false || *got.AutoUpdate != true {
		t.Errorf("Expected explicit values to win, got %+v", got)
	}

	got = Settings{}.Or(fallback)
	if *got.Priority != 7 || *got.AutoStart != true || *got.AutoUpdate != false {
		t.Errorf("Expected fallback values, got %+v", got)
	}

	got = Settings{}.Or(Settings{})
	if !got.IsZero() {
		t.Errorf("Expected unset settings, got %+v", got)
	}
}

func TestSettings_OverriddenBy(t *testing.T) {
	nested := Settings{Priority: Int(2), AutoStart: Bool(true)}
	got := nested.OverriddenBy(Settings{Priority: Int(9)})

	if *got.Priority != 9 {
		t.Errorf("Expected priority 9, got %d", *got.Priority)
	}
	if !got.ShouldStart() {
		t.Error("Expected nested autostart to survive")
	}
	if got.AutoUpdate != nil {
		t.Error("Expected autoupdate to stay unset")
	}
}

func TestState_Validate(t *testing.T) {
	for _, s := range []State{StatePending, StateInstalled, StateStarted} {
		if err := s.Validate(); err != nil {
			t.Errorf("Expected %s to be valid, got %v", s, err)
		}
	}
	if err := State("stopped").Validate(); err == nil {
		t.Error("Expected invalid state error")
	}
	if !StateStarted.IsTerminal() || StateInstalled.IsTerminal() {
		t.Error("Expected only started to be terminal")
	}
	if StatePending.IsInstalled() || !StateInstalled.IsInstalled() || !StateStarted.IsInstalled() {
		t.Error("Expected installed and started to count as installed")
	}
}

func mustEnter(t *testing.T, stack *ReferenceStack, key string) {
	t.Helper()
	if err := stack.Enter(key); err != nil {
		t.Fatalf("Expected no error entering %s, got: %v", key, err)
	}
}
