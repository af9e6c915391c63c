package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

const typingExpiry = 3 * time.Second

// Presence tracks which users are online and who is typing in which
// conversation. Typing state auto-expires if no follow-up signal arrives.
type Presence struct {
	mu     sync.Mutex
	selfID int
	online map[int]struct{}
	// conversationID -> userID -> state
	typing map[string]map[int]models.TypingState
	timers *timerRegistry
	expiry time.Duration
}

func NewPresence() *Presence {
	return &Presence{
		online: make(map[int]struct{}),
		typing: make(map[string]map[int]models.TypingState),
		timers: newTimerRegistry(),
		expiry: typingExpiry,
	}
}

func (p *Presence) setSelf(userID int) {
	p.mu.Lock()
	p.selfID = userID
	p.mu.Unlock()
}

func (p *Presence) SetOnline(userID int) {
	p.mu.Lock()
	p.online[userID] = struct{}{}
	p.mu.Unlock()
}

func (p *Presence) SetOffline(userID int) {
	p.mu.Lock()
	delete(p.online, userID)
	p.mu.Unlock()
}

func (p *Presence) IsOnline(userID int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

func (p *Presence) Online() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ApplyTypingStart upserts a remote user's typing state and arms the local
// expiry that removes it unless superseded. Self-originated events are
// never reflected back.
func (p *Presence) ApplyTypingStart(conversationID string, userID int) {
	p.mu.Lock()
	if userID == p.selfID {
		p.mu.Unlock()
		return
	}
	if _, ok := p.typing[conversationID]; !ok {
		p.typing[conversationID] = make(map[int]models.TypingState)
	}
	p.typing[conversationID][userID] = models.TypingState{UserID: userID, Typing: true, At: time.Now()}
	p.mu.Unlock()

	p.timers.set(typingKey(conversationID, userID), p.expiry, func() {
		p.clearTyping(conversationID, userID)
	})
}

// ApplyTypingStop removes the typing state and cancels its expiry timer.
func (p *Presence) ApplyTypingStop(conversationID string, userID int) {
	p.timers.cancel(typingKey(conversationID, userID))
	p.clearTyping(conversationID, userID)
}

func (p *Presence) clearTyping(conversationID string, userID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if users, ok := p.typing[conversationID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(p.typing, conversationID)
		}
	}
}

// TypingUsers returns the ids of users currently typing in a conversation.
func (p *Presence) TypingUsers(conversationID string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	users, ok := p.typing[conversationID]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Teardown cancels all pending expiry timers and clears ephemeral state.
func (p *Presence) Teardown() {
	p.timers.cancelAll()
	p.mu.Lock()
	p.online = make(map[int]struct{})
	p.typing = make(map[string]map[int]models.TypingState)
	p.mu.Unlock()
}

func typingKey(conversationID string, userID int) string {
	return fmt.Sprintf("typing:%s:%d", conversationID, userID)
}
