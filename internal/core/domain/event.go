package domain

import "time"

type EventType string

const (
	EventOfferCreated       EventType = "OFFER_CREATED"
	EventOfferDeclined      EventType = "OFFER_DECLINED"
	EventOfferExpired       EventType = "OFFER_EXPIRED"
	EventTaskAssigned       EventType = "TASK_ASSIGNED"
	EventTaskAdminEscalated EventType = "TASK_ADMIN_ESCALATED"
)

// AssignmentEvent is what the engine emits for downstream messaging. Delivery
// failures never roll back engine state.
type AssignmentEvent struct {
	Type     EventType `json:"type"`
	TaskID   string    `json:"task_id"`
	OfferID  string    `json:"offer_id,omitempty"`
	ArtistID string    `json:"artist_id,omitempty"`
	Tier     Tier      `json:"tier,omitempty"`
	Urgency  Urgency   `json:"urgency,omitempty"`
	At       time.Time `json:"at"`
}
