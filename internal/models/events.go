package models

// WebSocket event names shared by the relay server and the sync client.
const (
	// Server -> client.
	EventConnected           = "connected"
	EventNewMessage          = "new_message"
	EventMessageSent         = "message_sent"
	EventMessageRead         = "message_read"
	EventUserOnline          = "user_online"
	EventUserOffline         = "user_offline"
	EventConversationCreated = "conversation_created"
	EventConversationUpdated = "conversation_updated"
	EventConversationDeleted = "conversation_deleted"
	EventUserJoined          = "user_joined"
	EventError               = "error"

	// Client -> server (typing events flow both ways).
	EventJoin        = "join"
	EventLeave       = "leave"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// WSEvent is the wire envelope for every websocket event. Fields are
// populated per event; unused ones are omitted.
type WSEvent struct {
	Event          string        `json:"event"`
	ConversationID string        `json:"conversation_id,omitempty"`
	TempID         string        `json:"temp_id,omitempty"`
	MessageID      string        `json:"message_id,omitempty"`
	UserID         int           `json:"user_id,omitempty"`
	Username       string        `json:"username,omitempty"`
	Content        string        `json:"content,omitempty"`
	Name           string        `json:"name,omitempty"`
	Timestamp      int64         `json:"timestamp,omitempty"`
	Message        *Message      `json:"message,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	Error          string        `json:"error,omitempty"`
}
