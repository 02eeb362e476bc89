package engine

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of one resolved artifact.
// Transitions are strictly Pending -> Installed -> Started.
type State string

const (
	// StatePending indicates the artifact is known but not installed.
	StatePending State = "pending"

	// StateInstalled indicates the runtime holds the artifact.
	StateInstalled State = "installed"

	// StateStarted indicates the artifact is running.
	StateStarted State = "started"
)

// IsTerminal returns true if no further transition exists.
func (s State) IsTerminal() bool {
	return s == StateStarted
}

// IsInstalled returns true if install has succeeded.
func (s State) IsInstalled() bool {
	return s == StateInstalled || s == StateStarted
}

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StatePending, StateInstalled, StateStarted:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle state: %s", s)
	}
}

// Transition names a lifecycle step reported to metrics and events.
type Transition string

const (
	TransitionInstall Transition = "install"
	TransitionUpdate  Transition = "update"
	TransitionStart   Transition = "start"
)

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = State(str)
	return s.Validate()
}
