package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/provision/pkg/engine"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ResolutionStatus represents the status of a resolution run
type ResolutionStatus string

const (
	ResolutionStatusRunning   ResolutionStatus = "running"
	ResolutionStatusCompleted ResolutionStatus = "completed"
	ResolutionStatusFailed    ResolutionStatus = "failed"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Installation is one artifact held by the local runtime.
type Installation struct {
	ID           string       `json:"id"`
	Location     string       `json:"location"`
	State        engine.State `json:"state"`
	Digest       string       `json:"digest"` // sha256 of the fetched bytes
	Size         int64        `json:"size"`
	Priority     *int         `json:"priority,omitempty"`
	InstalledAt  time.Time    `json:"installed_at"`
	LastModified time.Time    `json:"last_modified"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
}

// Handle returns the runtime handle of the installation.
func (i *Installation) Handle() *engine.ArtifactHandle {
	return &engine.ArtifactHandle{ID: i.ID, Location: i.Location, LastModified: i.LastModified}
}

// Resolution is the recorded outcome of one top-level scan.
type Resolution struct {
	ID            string           `json:"id"`
	Spec          string           `json:"spec"`
	Status        ResolutionStatus `json:"status"`
	ArtifactCount int              `json:"artifact_count"`
	Artifacts     string           `json:"artifacts"`  // JSON array of resolved artifacts
	Properties    string           `json:"properties"` // JSON object of property bindings
	Error         *string          `json:"error,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// Event represents an append-only log event
type Event struct {
	ID           string     `json:"id"`
	ResolutionID *string    `json:"resolution_id,omitempty"`
	Type         string     `json:"type"`
	Source       string     `json:"source"`
	Level        EventLevel `json:"level"`
	Location     *string    `json:"location,omitempty"`
	Message      string     `json:"message"`
	Details      *string    `json:"details,omitempty"` // JSON blob
	Timestamp    time.Time  `json:"timestamp"`
}

// EventQuery narrows GetEvents. Zero fields match everything.
type EventQuery struct {
	ResolutionID string
	Location     string
	Level        EventLevel
	Limit        int
	Offset       int
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Installation operations
	CreateInstallation(ctx context.Context, inst *Installation) error
	GetInstallation(ctx context.Context, id string) (*Installation, error)
	GetInstallationByLocation(ctx context.Context, location string) (*Installation, error)
	ListInstallations(ctx context.Context, state *engine.State, limit, offset int) ([]*Installation, error)
	UpdateInstallationContent(ctx context.Context, id, digest string, size int64, modified time.Time) error
	UpdateInstallationState(ctx context.Context, id string, state engine.State, at time.Time) error
	UpdateInstallationPriority(ctx context.Context, id string, priority int) error
	DeleteInstallation(ctx context.Context, id string) error

	// Resolution operations
	CreateResolution(ctx context.Context, res *Resolution) error
	CompleteResolution(ctx context.Context, res *Resolution) error
	GetResolution(ctx context.Context, id string) (*Resolution, error)
	ListResolutions(ctx context.Context, limit, offset int) ([]*Resolution, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, query EventQuery) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
