package spec

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// Registered schemes.
const (
	SchemeBundle    = "scan-bundle"
	SchemeFile      = "scan-file"
	SchemeDir       = "scan-dir"
	SchemeFeatures  = "scan-features"
	SchemeOBR       = "scan-obr"
	SchemeComposite = "scan-composite"
)

// FilterRule describes which #filter segments a scheme accepts.
type FilterRule int

const (
	// FilterNone rejects any filter segment.
	FilterNone FilterRule = iota
	// FilterAny accepts any non-empty filter.
	FilterAny
	// FilterGlob accepts a filter that compiles as a glob pattern.
	FilterGlob
	// FilterFeatureList requires a comma separated name[/version] list.
	FilterFeatureList
)

// String returns the rule name.
func (r FilterRule) String() string {
	switch r {
	case FilterNone:
		return "none"
	case FilterAny:
		return "any"
	case FilterGlob:
		return "glob"
	case FilterFeatureList:
		return "feature-list"
	default:
		return fmt.Sprintf("FilterRule(%d)", int(r))
	}
}

var (
	// ErrEmptyScheme is returned when registering a scheme with no name.
	ErrEmptyScheme = errors.New("spec: empty scheme name")
	// ErrConflictingRegistration is returned when a scheme is re-registered with a different rule.
	ErrConflictingRegistration = errors.New("spec: conflicting scheme registration")
)

// SchemeTable is the fixed set of schemes a Parser accepts.
type SchemeTable struct {
	mu    sync.RWMutex
	rules map[string]FilterRule
}

// NewSchemeTable returns an empty table.
func NewSchemeTable() *SchemeTable {
	return &SchemeTable{rules: make(map[string]FilterRule)}
}

// DefaultSchemes returns a table holding the six built-in schemes.
func DefaultSchemes() *SchemeTable {
	t := NewSchemeTable()
	for name, rule := range map[string]FilterRule{
		SchemeBundle:    FilterAny,
		SchemeFile:      FilterNone,
		SchemeDir:       FilterGlob,
		SchemeFeatures:  FilterFeatureList,
		SchemeOBR:       FilterNone,
		SchemeComposite: FilterNone,
	} {
		_ = t.Register(name, rule)
	}
	return t
}

// Register adds a scheme. It is idempotent for the same (scheme, rule) pair.
func (t *SchemeTable) Register(scheme string, rule FilterRule) error {
	if scheme == "" {
		return ErrEmptyScheme
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.rules[scheme]; ok {
		if old == rule {
			return nil
		}
		return ErrConflictingRegistration
	}
	t.rules[scheme] = rule
	return nil
}

// Lookup returns the filter rule for scheme.
func (t *SchemeTable) Lookup(scheme string) (FilterRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rule, ok := t.rules[scheme]
	return rule, ok
}

// Len returns the number of registered schemes.
func (t *SchemeTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rules)
}

// checkFilter validates filter against rule. present reports whether a # segment was given.
func checkFilter(rule FilterRule, filter string, present bool) error {
	switch rule {
	case FilterNone:
		if present {
			return fmt.Errorf("scheme does not accept a filter")
		}
	case FilterAny:
		if present && strings.TrimSpace(filter) == "" {
			return fmt.Errorf("filter must not be empty")
		}
	case FilterGlob:
		if !present {
			return nil
		}
		if filter == "" {
			return fmt.Errorf("filter must not be empty")
		}
		if _, err := glob.Compile(filter); err != nil {
			return fmt.Errorf("invalid glob filter %q: %w", filter, err)
		}
	case FilterFeatureList:
		if !present || filter == "" {
			return fmt.Errorf("a feature list filter is required")
		}
		if _, err := ParseFeatureList(filter); err != nil {
			return err
		}
	}
	return nil
}
