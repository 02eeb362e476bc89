package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but does not block an install.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the install.
	SeverityError Severity = "error"

	// SeverityCritical blocks the install.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies admission.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a named Rego module whose deny set vets artifacts.
type Policy struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Rego        string   `json:"rego" yaml:"rego"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty" yaml:"-"`
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Location string   `json:"location,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against one artifact.
type Result struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations are the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are violations that do not block.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	Artifact ArtifactInput `json:"artifact"`
	Context  InputContext  `json:"context"`
}

// ArtifactInput describes the artifact under evaluation.
type ArtifactInput struct {
	Location   string `json:"location"`
	Scheme     string `json:"scheme"`
	Priority   *int   `json:"priority,omitempty"`
	AutoStart  *bool  `json:"autostart,omitempty"`
	AutoUpdate *bool  `json:"autoupdate,omitempty"`
}

// InputContext describes the evaluation.
type InputContext struct {
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}
