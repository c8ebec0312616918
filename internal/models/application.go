// internal/models/application.go
package models

import (
	"encoding/json"
	"time"
)

// SubmissionChannel records the provenance of an application. Set once at
// creation, immutable afterwards.
type SubmissionChannel string

const (
	ChannelWeb         SubmissionChannel = "web"
	ChannelVoice       SubmissionChannel = "voice"
	ChannelVoiceMobile SubmissionChannel = "voice_mobile"
	ChannelExternalAPI SubmissionChannel = "external_api"
)

// Valid reports whether c is a known submission channel.
func (c SubmissionChannel) Valid() bool {
	switch c {
	case ChannelWeb, ChannelVoice, ChannelVoiceMobile, ChannelExternalAPI:
		return true
	}
	return false
}

// Application is a finalized food permit request. Records are created
// exactly once and never mutated or deleted afterwards. Phone fields hold
// exactly 10 normalized digits, email fields are lowercase, and
// PlannedOpeningDate is a valid YYYY-MM-DD calendar date.
type Application struct {
	ID                 string            `json:"id" db:"id"`
	TrackingID         string            `json:"trackingId" db:"tracking_id"`
	EstablishmentName  string            `json:"establishmentName" db:"establishment_name"`
	StreetAddress      string            `json:"streetAddress" db:"street_address"`
	EstablishmentPhone string            `json:"establishmentPhone" db:"establishment_phone"`
	EstablishmentEmail string            `json:"establishmentEmail" db:"establishment_email"`
	OwnerName          string            `json:"ownerName" db:"owner_name"`
	OwnerPhone         string            `json:"ownerPhone" db:"owner_phone"`
	OwnerEmail         string            `json:"ownerEmail" db:"owner_email"`
	EstablishmentType  string            `json:"establishmentType" db:"establishment_type"`
	PlannedOpeningDate string            `json:"plannedOpeningDate" db:"planned_opening_date"`
	SubmissionChannel  SubmissionChannel `json:"submissionChannel" db:"submission_channel"`
	SessionID          string            `json:"sessionId,omitempty" db:"session_id"`
	RawData            json.RawMessage   `json:"rawData,omitempty" db:"raw_data"`
	CreatedAt          time.Time         `json:"createdAt" db:"created_at"`
	SubmittedAt        *time.Time        `json:"submittedAt,omitempty" db:"submitted_at"`
}
