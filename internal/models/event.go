// internal/models/event.go
package models

import "time"

// EventType identifies the kind of a relay event.
type EventType string

const (
	EventFieldUpdate     EventType = "field-update"
	EventSessionComplete EventType = "session-complete"
	EventSessionError    EventType = "session-error"
)

// EventSourceManual marks a field update that came from a human correcting
// the field on the mobile view rather than from the voice agent.
const EventSourceManual = "manual"

// RelayEvent is the transient pub/sub message fanned out on a session's
// channel. Events are fire-and-forget: no delivery acknowledgment is fed
// back into the session store.
type RelayEvent struct {
	Type       EventType `json:"type"`
	Field      string    `json:"field,omitempty"`
	Value      string    `json:"value,omitempty"`
	Source     string    `json:"source,omitempty"`
	TrackingID string    `json:"trackingId,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewFieldUpdate builds a field-update event. source is empty for
// voice-originated updates and EventSourceManual for human corrections.
func NewFieldUpdate(field, value, source string) RelayEvent {
	return RelayEvent{
		Type:      EventFieldUpdate,
		Field:     field,
		Value:     value,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionComplete builds the terminal completion event carrying the
// store-generated tracking id.
func NewSessionComplete(trackingID string) RelayEvent {
	return RelayEvent{
		Type:       EventSessionComplete,
		TrackingID: trackingID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewSessionError builds the terminal error event.
func NewSessionError(message string) RelayEvent {
	return RelayEvent{
		Type:      EventSessionError,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}
}
