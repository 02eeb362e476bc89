package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/telemetry"
)

// EventRecorder persists telemetry events to the event log.
type EventRecorder struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration
}

// NewEventRecorder creates a recorder writing to store.
func NewEventRecorder(store Store, logger zerolog.Logger) *EventRecorder {
	return &EventRecorder{
		store:   store,
		logger:  logger.With().Str("component", "event-recorder").Logger(),
		timeout: 5 * time.Second,
	}
}

// Attach subscribes the recorder to publisher. filter may be nil.
func (r *EventRecorder) Attach(publisher *telemetry.EventPublisher, filter telemetry.EventFilter) {
	publisher.Subscribe(r.Record, filter)
}

// Record stores one event. Failures are logged, never returned to the publisher.
func (r *EventRecorder) Record(event telemetry.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.AppendEvent(ctx, FromTelemetry(event)); err != nil {
		r.logger.Warn().Err(err).Str("event", event.Type).Msg("Failed to record event")
	}
}

// FromTelemetry converts a published event into its stored form.
func FromTelemetry(event telemetry.Event) *Event {
	stored := &Event{
		ID:        event.ID,
		Type:      event.Type,
		Source:    event.Source,
		Level:     EventLevel(event.Level),
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Level == "" {
		stored.Level = EventLevelInfo
	}
	if event.ResolutionID != "" {
		id := event.ResolutionID
		stored.ResolutionID = &id
	}
	if event.Location != "" {
		loc := event.Location
		stored.Location = &loc
	}
	if len(event.Data) > 0 {
		if data, err := json.Marshal(event.Data); err == nil {
			details := string(data)
			stored.Details = &details
		}
	}
	return stored
}
