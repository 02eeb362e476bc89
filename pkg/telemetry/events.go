package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a resolution or lifecycle event.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`

	// ResolutionID is the associated resolution run, if any.
	ResolutionID string `json:"resolution_id,omitempty"`

	// Location is the artifact location, if any.
	Location string `json:"location,omitempty"`

	Message string                 `json:"message"`
	Level   string                 `json:"level"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeResolutionStarted   = "resolution.started"
	EventTypeResolutionCompleted = "resolution.completed"
	EventTypeResolutionFailed    = "resolution.failed"
	EventTypeArtifactInstalled   = "artifact.installed"
	EventTypeArtifactUpdated     = "artifact.updated"
	EventTypeArtifactStarted     = "artifact.started"
	EventTypeArtifactFailed      = "artifact.failed"
	EventTypePolicyViolation     = "policy.violation"
	EventTypeConfigReloaded      = "config.reloaded"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. A nil or disabled publisher drops events.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishResolutionStarted publishes a resolution started event.
func (ep *EventPublisher) PublishResolutionStarted(resolutionID, spec string) error {
	return ep.Publish(Event{
		Type:         EventTypeResolutionStarted,
		Source:       "scanner",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Resolving %s", spec),
		Data:         map[string]interface{}{"spec": spec},
	})
}

// PublishResolutionCompleted publishes a resolution completed event.
func (ep *EventPublisher) PublishResolutionCompleted(resolutionID string, artifacts int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:         EventTypeResolutionCompleted,
		Source:       "scanner",
		ResolutionID: resolutionID,
		Message:      fmt.Sprintf("Resolved %d artifacts in %s", artifacts, duration),
		Data: map[string]interface{}{
			"artifacts":   artifacts,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishResolutionFailed publishes a resolution failed event.
func (ep *EventPublisher) PublishResolutionFailed(resolutionID string, err error) error {
	return ep.Publish(Event{
		Type:         EventTypeResolutionFailed,
		Source:       "scanner",
		ResolutionID: resolutionID,
		Message:      err.Error(),
		Level:        EventLevelError,
	})
}

// PublishTransition publishes an artifact lifecycle event.
func (ep *EventPublisher) PublishTransition(eventType, batchID, location string) error {
	return ep.Publish(Event{
		Type:         eventType,
		Source:       "lifecycle",
		ResolutionID: batchID,
		Location:     location,
		Message:      fmt.Sprintf("%s %s", eventType, location),
	})
}

// PublishArtifactFailed publishes an artifact failure event.
func (ep *EventPublisher) PublishArtifactFailed(batchID, location string, err error) error {
	return ep.Publish(Event{
		Type:         EventTypeArtifactFailed,
		Source:       "lifecycle",
		ResolutionID: batchID,
		Location:     location,
		Message:      err.Error(),
		Level:        EventLevelError,
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(location, policyName, severity, reason string) error {
	level := EventLevelWarning
	if severity == "error" || severity == "critical" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:     EventTypePolicyViolation,
		Source:   "policy",
		Location: location,
		Message:  reason,
		Level:    level,
		Data: map[string]interface{}{
			"policy":   policyName,
			"severity": severity,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize || len(ep.buffer) == 0 {
				flush()
			}

		case <-ep.ctx.Done():
			// Drain what is still buffered before stopping.
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers in subscription order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}
	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByResolutionID creates a filter that only allows events for one resolution.
func FilterByResolutionID(id string) EventFilter {
	return func(event Event) bool {
		return event.ResolutionID == id
	}
}
