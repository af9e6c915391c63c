package models

import (
	"strings"
	"time"
)

// Delivery tracks whether a message still carries its client-generated
// temporary id or has been confirmed with a server-assigned one.
type Delivery int

const (
	DeliveryConfirmed Delivery = iota
	DeliveryPending
)

// TempIDPrefix marks client-generated message ids awaiting confirmation.
const TempIDPrefix = "tmp-"

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	Content        string     `json:"content"`
	Attachments    []string   `json:"attachments,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	Deleted        bool       `json:"deleted"`
	Delivery       Delivery   `json:"-"`
}

// Confirm is the single transition from a pending message to its permanent
// identity. All other fields are preserved.
func (m *Message) Confirm(permanentID string, at time.Time) {
	m.ID = permanentID
	m.Delivery = DeliveryConfirmed
	if !at.IsZero() {
		m.UpdatedAt = at
	}
}

// IsTempID reports whether id is a client-generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

type MessagesPage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
