package client

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

// Store is the in-memory mirror of conversations and messages the UI
// renders from. It exclusively owns entity state; the connection manager
// only feeds server events into it and consumers read snapshots.
type Store struct {
	mu     sync.RWMutex
	selfID int

	conversations map[string]*models.Conversation
	// conversationID -> messages, oldest first
	messages map[string][]models.Message
	// conversationID -> last message preview
	lastMessage map[string]string

	// pagination bookkeeping
	nextPage   map[string]int
	hasMore    map[string]bool
	generation map[string]int
	pageSize   int

	active string
}

func NewStore(pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Store{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
		lastMessage:   make(map[string]string),
		nextPage:      make(map[string]int),
		hasMore:       make(map[string]bool),
		generation:    make(map[string]int),
		pageSize:      pageSize,
	}
}

func (s *Store) setSelf(userID int) {
	s.mu.Lock()
	s.selfID = userID
	s.mu.Unlock()
}

// SetActive records the conversation currently open in the UI.
func (s *Store) SetActive(conversationID string) {
	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetConversations replaces the conversation list from a REST load,
// keeping any messages already held for surviving conversations.
func (s *Store) SetConversations(conversations []models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make(map[string]*models.Conversation, len(conversations))
	for i := range conversations {
		c := conversations[i]
		kept[c.ID] = &c
	}
	for id := range s.conversations {
		if _, ok := kept[id]; !ok {
			s.purgeLocked(id)
		}
	}
	s.conversations = kept
}

// AdmitConversation applies a server-pushed conversation_created event.
// Only conversations the local user participates in are admitted; pushes
// for an already-known id are suppressed.
func (s *Store) AdmitConversation(conv models.Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !conv.HasParticipant(s.selfID) {
		return false
	}
	if _, ok := s.conversations[conv.ID]; ok {
		return false
	}
	s.conversations[conv.ID] = &conv
	return true
}

// UpsertConversation stores a conversation from a local create or load.
func (s *Store) UpsertConversation(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.conversations[conv.ID]; ok && conv.LastMessageAt == nil {
		conv.LastMessageAt = existing.LastMessageAt
	}
	s.conversations[conv.ID] = &conv
}

// RenameConversation updates the display name in place, including the
// currently open conversation.
func (s *Store) RenameConversation(conversationID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[conversationID]; ok {
		conv.Name = name
		conv.UpdatedAt = time.Now()
	}
}

// RemoveConversation purges the conversation, all its messages, the cached
// last-message preview and all pagination bookkeeping.
func (s *Store) RemoveConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(conversationID)
}

func (s *Store) purgeLocked(conversationID string) {
	delete(s.conversations, conversationID)
	delete(s.messages, conversationID)
	delete(s.lastMessage, conversationID)
	delete(s.nextPage, conversationID)
	delete(s.hasMore, conversationID)
	// Bump rather than delete so an in-flight page load for this id is
	// recognized as stale when it lands.
	s.generation[conversationID]++
	if s.active == conversationID {
		s.active = ""
	}
}

// Conversations returns a snapshot ordered by newest activity first: any
// conversation with a message sorts before every conversation without one,
// then by (last message time, else creation time) descending.
func (s *Store) Conversations() []models.Conversation {
	s.mu.RLock()
	out := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *conv)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		iActive := out[i].LastMessageAt != nil
		jActive := out[j].LastMessageAt != nil
		if iActive != jActive {
			return iActive
		}
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if iActive {
			ti, tj = *out[i].LastMessageAt, *out[j].LastMessageAt
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Conversation(conversationID string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.conversations[conversationID]; ok {
		return *conv, true
	}
	return models.Conversation{}, false
}

// LastMessage returns the cached preview of the conversation's latest
// message text.
func (s *Store) LastMessage(conversationID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.lastMessage[conversationID]
	return text, ok
}

// Messages returns a snapshot of a conversation's messages, oldest first.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages[conversationID]...)
}

// AddPending inserts an optimistic local message before transmission
// confirmation.
func (s *Store) AddPending(msg models.Message) {
	msg.Delivery = models.DeliveryPending
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	s.touchLocked(msg)
}

// ApplyNewMessage applies a server-pushed new-message event. Applying the
// same permanent id twice is a no-op. An echo of the local user's own
// message reconciles the matching pending entry in place, preserving its
// list position; anything else appends.
func (s *Store) ApplyNewMessage(msg models.Message) {
	msg.Delivery = models.DeliveryConfirmed
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[msg.ConversationID]
	for _, m := range list {
		if m.ID == msg.ID {
			return
		}
	}

	if msg.SenderID == s.selfID {
		for i, m := range list {
			if m.Delivery == models.DeliveryPending && m.Content == msg.Content {
				list[i] = msg
				s.touchLocked(msg)
				return
			}
		}
	}

	s.messages[msg.ConversationID] = append(list, msg)
	s.touchLocked(msg)
}

// ApplySent applies a message-sent acknowledgement: the timestamp updates,
// and a supplied permanent id replaces the temporary one with all other
// fields preserved. Reconciliation happens at most once; if the permanent
// copy already arrived, the pending duplicate is discarded.
func (s *Store) ApplySent(conversationID, tempID, permanentID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	tempIdx := -1
	for i, m := range list {
		if m.ID == tempID {
			tempIdx = i
			break
		}
	}
	if tempIdx < 0 {
		return
	}

	if permanentID != "" {
		for i, m := range list {
			if m.ID == permanentID && i != tempIdx {
				s.messages[conversationID] = append(list[:tempIdx], list[tempIdx+1:]...)
				return
			}
		}
		list[tempIdx].Confirm(permanentID, at)
		return
	}
	if !at.IsZero() {
		list[tempIdx].UpdatedAt = at
	}
}

// ApplyRead marks messages read by readerID up to the cutoff and stamps the
// read time. The affected messages need not be currently visible.
func (s *Store) ApplyRead(conversationID string, readerID int, before time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	for i := range list {
		if list[i].SenderID == readerID || list[i].Read {
			continue
		}
		if list[i].CreatedAt.After(before) {
			continue
		}
		list[i].Read = true
		at := before
		list[i].ReadAt = &at
	}
}

// RemoveMessage drops a message (failed send, retry budget exhausted) and
// recomputes the conversation's last-message bookkeeping.
func (s *Store) RemoveMessage(conversationID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.messages[conversationID]
	for i, m := range list {
		if m.ID == messageID {
			s.messages[conversationID] = append(list[:i], list[i+1:]...)
			s.recomputeLastLocked(conversationID)
			return
		}
	}
}

// BeginPageLoad returns the next page number to fetch and the current
// pagination generation. The generation must be presented back to
// ApplyPage; a reset in between invalidates the load.
func (s *Store) BeginPageLoad(conversationID string) (page, generation int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPage[conversationID], s.generation[conversationID]
}

// ApplyPage prepends an older page without disturbing already-rendered
// newer messages, de-duplicating by id. Stale results (superseded
// generation) are dropped. Reports whether the page was applied.
func (s *Store) ApplyPage(conversationID string, generation int, page []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation[conversationID] {
		return false
	}

	existing := s.messages[conversationID]
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[m.ID] = struct{}{}
	}

	var fresh []models.Message
	for _, m := range page {
		if _, ok := known[m.ID]; ok {
			continue
		}
		m.Delivery = models.DeliveryConfirmed
		fresh = append(fresh, m)
	}

	s.messages[conversationID] = append(fresh, existing...)
	s.nextPage[conversationID]++
	s.hasMore[conversationID] = len(page) == s.pageSize
	s.recomputeLastLocked(conversationID)
	return true
}

// HasMore reports whether older pages remain. A conversation that has never
// been loaded is assumed to have history.
func (s *Store) HasMore(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if more, ok := s.hasMore[conversationID]; ok {
		return more
	}
	return true
}

// ResetMessages clears a conversation's message pages and bumps the
// pagination generation so in-flight loads for the old view are discarded.
func (s *Store) ResetMessages(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, conversationID)
	delete(s.nextPage, conversationID)
	delete(s.hasMore, conversationID)
	s.generation[conversationID]++
}

func (s *Store) touchLocked(msg models.Message) {
	s.lastMessage[msg.ConversationID] = msg.Content
	if conv, ok := s.conversations[msg.ConversationID]; ok {
		if conv.LastMessageAt == nil || msg.CreatedAt.After(*conv.LastMessageAt) {
			at := msg.CreatedAt
			conv.LastMessageAt = &at
		}
	}
}

func (s *Store) recomputeLastLocked(conversationID string) {
	list := s.messages[conversationID]
	if len(list) == 0 {
		delete(s.lastMessage, conversationID)
		return
	}
	last := list[len(list)-1]
	s.lastMessage[conversationID] = last.Content
	if conv, ok := s.conversations[conversationID]; ok {
		at := last.CreatedAt
		conv.LastMessageAt = &at
	}
}
