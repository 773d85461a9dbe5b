package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventStepEnter    EventType = "step_enter"
	EventCelebrate    EventType = "celebrate"
	EventGateShown    EventType = "gate_shown"
	EventSubmit       EventType = "submit"
	EventSessionEnd   EventType = "session_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// StepEvent represents entry into a step.
type StepEvent struct {
	EventBase
	StepIndex int      `json:"step_index"`
	StepKind  StepKind `json:"step_kind"`
}

// SubmitEvent represents the outcome of an email submission.
type SubmitEvent struct {
	EventBase
	Key     string    `json:"key,omitempty"`
	Kind    ErrorKind `json:"error_kind,omitempty"`
	IsError bool      `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for state machine observability.
// Hooks run while the session is locked and must not call back into it.
type LifecycleHooks struct {
	OnSessionStart func(context.Context, *EventBase)
	OnStepEnter    func(context.Context, *StepEvent)
	OnCelebrate    func(context.Context, *EventBase)
	OnGateShown    func(context.Context, *EventBase)
	OnSubmit       func(context.Context, *SubmitEvent)
	// OnSessionEnd fires once when the session is torn down, whether deleted, reaped or closed on shutdown.
	OnSessionEnd func(context.Context, *EventBase)
}
