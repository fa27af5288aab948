package common

import (
	"encoding/json"
	"time"
)

type Category string

const (
	CategoryNewApplication      Category = "NEW_APPLICATION"
	CategoryApplicationViewed   Category = "APPLICATION_VIEWED"
	CategoryApplicationPassed   Category = "APPLICATION_PASSED"
	CategoryApplicationRejected Category = "APPLICATION_REJECTED"
	CategoryInterviewInvited    Category = "INTERVIEW_INVITED"
	CategoryInterviewResult     Category = "INTERVIEW_RESULT"
	CategoryOfferSent           Category = "OFFER_SENT"
	CategoryOfferResponse       Category = "OFFER_RESPONSE"
	CategoryHired               Category = "HIRED"
	CategorySystem              Category = "SYSTEM"
	CategoryMessage             Category = "MESSAGE"
	CategoryOther               Category = "OTHER"
)

// legacy lowercase values still emitted by older backend deployments
var legacyCategories = map[string]Category{
	"application_submitted": CategoryNewApplication,
	"system":                CategorySystem,
	"message":               CategoryMessage,
	"other":                 CategoryOther,
}

var knownCategories = map[Category]bool{
	CategoryNewApplication:      true,
	CategoryApplicationViewed:   true,
	CategoryApplicationPassed:   true,
	CategoryApplicationRejected: true,
	CategoryInterviewInvited:    true,
	CategoryInterviewResult:     true,
	CategoryOfferSent:           true,
	CategoryOfferResponse:       true,
	CategoryHired:               true,
	CategorySystem:              true,
	CategoryMessage:             true,
	CategoryOther:               true,
}

func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category belongs to the closed set
func (c Category) IsValid() bool {
	return knownCategories[c]
}

// ParseCategory maps a raw wire value onto the closed category set.
// Unrecognized values degrade to CategoryOther instead of failing.
func ParseCategory(raw string) Category {
	c := Category(raw)
	if knownCategories[c] {
		return c
	}
	if legacy, ok := legacyCategories[raw]; ok {
		return legacy
	}
	return CategoryOther
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = ParseCategory(raw)
	return nil
}

type Metadata map[string]interface{}

// Notification mirrors the backend entity. RecipientID doubles as the
// push-channel room key.
type Notification struct {
	ID            string     `json:"id"`
	RecipientID   string     `json:"userId"`
	Message       string     `json:"message"`
	Category      Category   `json:"type"`
	IsRead        bool       `json:"isRead"`
	ReadAt        *time.Time `json:"readAt,omitempty"`
	Deleted       bool       `json:"deleted"`
	ApplicationID *string    `json:"applicationId,omitempty"`
	JobID         *string    `json:"jobId,omitempty"`
	ApplicantID   *string    `json:"applicantId,omitempty"`
	Metadata      Metadata   `json:"metadata,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type CreateNotificationRequest struct {
	UserID   string   `json:"userId"`
	Message  string   `json:"message"`
	Category Category `json:"type,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
}

type UpdateNotificationRequest struct {
	IsRead  *bool   `json:"isRead,omitempty"`
	Message *string `json:"message,omitempty"`
}

type EventName string

const (
	// client -> server
	EventJoinRoom EventName = "joinRoom"

	// server -> client
	EventJoinedRoom      EventName = "joinedRoom"
	EventNewNotification EventName = "newNotification"
	EventCountSync       EventName = "unreadCount"

	// synthesized by the channel transport, never on the wire
	EventConnected    EventName = "connect"
	EventDisconnected EventName = "disconnect"
)

// PushEvent is one frame on the push channel. Data stays raw until the
// event name tells us how to decode it.
type PushEvent struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type CountSyncPayload struct {
	UnreadCount int `json:"unreadCount"`
}

type JoinedRoomPayload struct {
	Room string `json:"room"`
}
