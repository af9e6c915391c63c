package client

import (
	"sync"
	"time"
)

const (
	maxSendAttempts = 3
	sendRetryBase   = 2 * time.Second
)

// queuedMessage is one outbound message buffered while disconnected.
type queuedMessage struct {
	tempID         string
	conversationID string
	content        string
	composedAt     time.Time
	attempts       int
}

// outQueue buffers messages composed while disconnected so they are not
// silently lost, and tracks every temporary id ever handed to a send so a
// duplicate submission (UI double-click) is a no-op.
type outQueue struct {
	mu      sync.Mutex
	entries []*queuedMessage
	seen    map[string]struct{}
}

func newOutQueue() *outQueue {
	return &outQueue{seen: make(map[string]struct{})}
}

// markSeen records a temporary id in the send-once set. Reports false if
// the id was already recorded.
func (q *outQueue) markSeen(tempID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.seen[tempID]; ok {
		return false
	}
	q.seen[tempID] = struct{}{}
	return true
}

func (q *outQueue) add(entry *queuedMessage) {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
}

// drain removes and returns every buffered entry in FIFO order.
func (q *outQueue) drain() []*queuedMessage {
	q.mu.Lock()
	entries := q.entries
	q.entries = nil
	q.mu.Unlock()
	return entries
}

func (q *outQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// sendRetryDelay grows with the attempt number.
func sendRetryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * sendRetryBase
}
