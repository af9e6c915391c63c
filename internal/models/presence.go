package models

import "time"

// TypingState is the ephemeral typing indicator for one user in one
// conversation. It expires client-side if no follow-up signal arrives.
type TypingState struct {
	UserID int       `json:"user_id"`
	Typing bool      `json:"typing"`
	At     time.Time `json:"at"`
}
