package engine

import (
	"strconv"
	"time"
)

// Settings is the tri-state priority/autostart/autoupdate triple carried by
// descriptors, defaults and resolved artifacts. A nil field means unset.
type Settings struct {
	// Priority is the target run priority (start level).
	Priority *int `json:"priority,omitempty" yaml:"priority,omitempty"`

	// AutoStart requests a start immediately after install.
	AutoStart *bool `json:"autostart,omitempty" yaml:"autostart,omitempty"`

	// AutoUpdate requests a refresh of a stale pre-existing installation.
	AutoUpdate *bool `json:"autoupdate,omitempty" yaml:"autoupdate,omitempty"`
}

// Or returns s with every unset field taken from fallback.
func (s Settings) Or(fallback Settings) Settings {
	out := s
	if out.Priority == nil {
		out.Priority = fallback.Priority
	}
	if out.AutoStart == nil {
		out.AutoStart = fallback.AutoStart
	}
	if out.AutoUpdate == nil {
		out.AutoUpdate = fallback.AutoUpdate
	}
	return out
}

// OverriddenBy returns s with every field that is set in top replacing its own.
func (s Settings) OverriddenBy(top Settings) Settings {
	return top.Or(s)
}

// IsZero reports whether no field is set.
func (s Settings) IsZero() bool {
	return s.Priority == nil && s.AutoStart == nil && s.AutoUpdate == nil
}

// ShouldStart reports whether autostart is explicitly true.
func (s Settings) ShouldStart() bool {
	return s.AutoStart != nil && *s.AutoStart
}

// ShouldUpdate reports whether autoupdate is explicitly true.
func (s Settings) ShouldUpdate() bool {
	return s.AutoUpdate != nil && *s.AutoUpdate
}

// Defaults are the configuration-sourced fallbacks handed to every resolver.
type Defaults struct {
	Settings

	// CertificateCheck enables TLS verification when fetching https locations.
	CertificateCheck bool `json:"certificate_check"`
}

// DefaultDefaults returns the defaults in effect before any configuration push.
func DefaultDefaults() Defaults {
	return Defaults{CertificateCheck: true}
}

// ResolvedArtifact is one concrete, fetchable artifact produced by resolution.
type ResolvedArtifact struct {
	// Location is the final absolute reference to the artifact.
	Location string `json:"location"`

	Settings
}

// String renders the artifact as it is shown in listings.
func (a ResolvedArtifact) String() string {
	s := a.Location
	if a.Priority != nil {
		s += " priority=" + strconv.Itoa(*a.Priority)
	}
	if a.AutoStart != nil {
		s += " autostart=" + strconv.FormatBool(*a.AutoStart)
	}
	if a.AutoUpdate != nil {
		s += " autoupdate=" + strconv.FormatBool(*a.AutoUpdate)
	}
	return s
}

// FeatureRef names a feature, optionally pinned to a version.
type FeatureRef struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// String returns name or name/version.
func (r FeatureRef) String() string {
	if r.Version == "" {
		return r.Name
	}
	return r.Name + "/" + r.Version
}

// Feature is a named, versioned group of artifacts with dependency features.
type Feature struct {
	Name         string       `json:"name" yaml:"name"`
	Version      string       `json:"version" yaml:"version"`
	Dependencies []FeatureRef `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Artifacts    []string     `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// ArtifactHandle identifies an artifact installed in a runtime.
type ArtifactHandle struct {
	ID           string    `json:"id"`
	Location     string    `json:"location"`
	LastModified time.Time `json:"last_modified"`
}

// Resolution is the outcome of one top-level scan.
type Resolution struct {
	ID         string             `json:"id"`
	Spec       string             `json:"spec"`
	Artifacts  []ResolvedArtifact `json:"artifacts"`
	Properties map[string]string  `json:"properties,omitempty"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
