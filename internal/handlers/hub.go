package handlers

import (
	"sync"

	"chat-sync/internal/utils"

	"github.com/gofiber/websocket/v2"
)

// ConnHub tracks live websocket connections, the conversation each one has
// joined, and per-user presence.
type ConnHub struct {
	mu sync.RWMutex
	// conversationID -> connID -> conn
	conversations map[string]map[string]*websocket.Conn
	// connID -> metadata (includes connection reference)
	connMeta map[string]ConnMeta
}

var Hub = &ConnHub{
	conversations: make(map[string]map[string]*websocket.Conn),
	connMeta:      make(map[string]ConnMeta),
}

type ConnMeta struct {
	UserID   int
	Username string
	Conn     *websocket.Conn
}

// Register stores metadata for a new websocket connection.
// Returns true if this is the user's first connection (user just came online).
func (h *ConnHub) Register(connID string, userID int, username string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	wasOnline := false
	for _, meta := range h.connMeta {
		if meta.UserID == userID {
			wasOnline = true
			break
		}
	}

	h.connMeta[connID] = ConnMeta{UserID: userID, Username: username, Conn: conn}
	return !wasOnline
}

// Unregister removes metadata and drops the connection from any conversation.
// Returns true if this was the user's last connection (user is now offline).
func (h *ConnHub) Unregister(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	meta, exists := h.connMeta[connID]
	if !exists {
		return false
	}
	userID := meta.UserID

	for conversationID, conns := range h.conversations {
		if _, ok := conns[connID]; ok {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(h.conversations, conversationID)
			}
		}
	}
	delete(h.connMeta, connID)

	for _, m := range h.connMeta {
		if m.UserID == userID {
			return false
		}
	}
	return true
}

func (h *ConnHub) Join(conversationID, connID string, c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conversations[conversationID]; !ok {
		h.conversations[conversationID] = make(map[string]*websocket.Conn)
	}
	h.conversations[conversationID][connID] = c
}

func (h *ConnHub) Leave(conversationID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conversations[conversationID]; ok {
		delete(h.conversations[conversationID], connID)
		if len(h.conversations[conversationID]) == 0 {
			delete(h.conversations, conversationID)
		}
	}
}

// Broadcast sends a payload to every connection joined to a conversation,
// optionally excluding one connection (usually the sender's).
func (h *ConnHub) Broadcast(conversationID string, payload interface{}, excludeConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns, ok := h.conversations[conversationID]; ok {
		for id, conn := range conns {
			if id == excludeConnID {
				continue
			}
			if err := utils.SendJSON(conn, payload); err != nil {
				utils.LogError(err, "Broadcast")
			}
		}
	}
}

// BroadcastToAll sends a payload to every live connection. Used for
// presence changes.
func (h *ConnHub) BroadcastToAll(payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, meta := range h.connMeta {
		if meta.Conn != nil {
			if err := utils.SendJSON(meta.Conn, payload); err != nil {
				utils.LogError(err, "BroadcastToAll")
			}
		}
	}
}

// SendToUser sends a payload to all connections of a specific user.
func (h *ConnHub) SendToUser(userID int, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, meta := range h.connMeta {
		if meta.UserID == userID && meta.Conn != nil {
			if err := utils.SendJSON(meta.Conn, payload); err != nil {
				utils.LogError(err, "SendToUser")
			}
		}
	}
}

// SendToUsers sends a payload to all connections of multiple users.
func (h *ConnHub) SendToUsers(userIDs []int, payload interface{}) {
	for _, userID := range userIDs {
		h.SendToUser(userID, payload)
	}
}

// IsUserOnline checks if any active connection belongs to the given user.
func (h *ConnHub) IsUserOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, meta := range h.connMeta {
		if meta.UserID == userID {
			return true
		}
	}
	return false
}

// OnlineUserIDs returns the distinct ids of users with at least one live
// connection.
func (h *ConnHub) OnlineUserIDs() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[int]struct{})
	var ids []int
	for _, meta := range h.connMeta {
		if _, ok := seen[meta.UserID]; !ok {
			seen[meta.UserID] = struct{}{}
			ids = append(ids, meta.UserID)
		}
	}
	return ids
}
