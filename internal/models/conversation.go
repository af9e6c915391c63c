package models

import "time"

type Conversation struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	Participants  []int      `json:"participants"`
	ProjectID     string     `json:"project_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	Archived      bool       `json:"archived"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID int) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

type CreateConversationRequest struct {
	Name         string `json:"name,omitempty"`
	Participants []int  `json:"participants"`
	ProjectID    string `json:"project_id,omitempty"`
}

type RenameConversationRequest struct {
	Name string `json:"name"`
}

type MarkReadRequest struct {
	// Before is a unix-millisecond cutoff; messages created at or before it
	// are marked read.
	Before int64 `json:"before"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}
