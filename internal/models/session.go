// internal/models/session.go
package models

import "time"

// SessionStatus is the lifecycle state of an intake session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Valid reports whether s is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusAbandoned:
		return true
	}
	return false
}

// Session correlates a phone call (or mobile-first flow) with a relay
// channel and the form data collected so far.
type Session struct {
	ID          string            `json:"id" db:"id"`
	PhoneNumber string            `json:"phoneNumber,omitempty" db:"phone_number"`
	Status      SessionStatus     `json:"status" db:"status"`
	ChannelName string            `json:"channelName" db:"channel_name"`
	FormData    map[string]string `json:"formData,omitempty" db:"form_data"`
	CreatedAt   time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`
}

// ChannelName derives the relay topic for a session. The derivation is
// deterministic and never changes for the lifetime of the session.
func ChannelName(sessionID string) string {
	return "session:" + sessionID
}
