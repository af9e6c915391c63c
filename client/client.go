// Package client implements the synchronization layer between a chat UI
// and the relay service: one managed websocket connection with bounded
// reconnect backoff, an outbound queue for messages composed while
// disconnected, an in-memory conversation/message store, presence and
// typing tracking, and throttled user notifications.
package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"chat-sync/internal/models"

	"github.com/google/uuid"
)

const (
	messageNotifyWindow = 5 * time.Second
	errorNotifyWindow   = 10 * time.Second
	typingIdle          = 2 * time.Second
)

type Config struct {
	// BaseURL is the REST API root, e.g. http://localhost:3001.
	BaseURL string
	// WSURL overrides the websocket endpoint; derived from BaseURL when empty.
	WSURL string
	// Enabled gates Connect; a disabled client never opens a transport.
	Enabled bool

	MaxReconnectAttempts int
	PageSize             int
	HTTPTimeout          time.Duration

	// Notify receives throttled user-facing notifications; defaults to logging.
	Notify NotifyFunc
}

type Session struct {
	UserID       int
	Username     string
	AccessToken  string
	RefreshToken string
}

// Client is an explicitly constructed connection owner with an explicit
// lifecycle; nothing in this package is shared module state.
type Client struct {
	cfg Config

	mu      sync.Mutex
	session Session

	rest     *restClient
	store    *Store
	presence *Presence
	notifier *Notifier
	queue    *outQueue
	conn     *connManager
	timers   *timerRegistry
}

func New(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.BaseURL)
	}

	c := &Client{
		cfg:      cfg,
		store:    NewStore(cfg.PageSize),
		presence: NewPresence(),
		notifier: NewNotifier(cfg.Notify),
		queue:    newOutQueue(),
		timers:   newTimerRegistry(),
	}

	c.rest = newRESTClient(cfg.BaseURL, cfg.HTTPTimeout, c.Session, c.setTokens, c.sessionExpired)

	c.conn = newConnManager(
		func() string { return c.cfg.WSURL + "?access_token=" + c.Session().AccessToken },
		func() string { return c.Session().AccessToken },
		cfg.Enabled,
		cfg.MaxReconnectAttempts,
	)
	c.conn.onConnected = c.handleConnected
	c.conn.onEvent = c.handleEvent
	c.conn.onTerminal = c.handleTerminal

	return c
}

func deriveWSURL(baseURL string) string {
	wsURL := baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	return strings.TrimSuffix(wsURL, "/") + "/ws"
}

// Store exposes the read-only view the UI renders from.
func (c *Client) Store() *Store { return c.store }

// Presence exposes online and typing state.
func (c *Client) Presence() *Presence { return c.presence }

func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession installs tokens obtained elsewhere (stored credentials).
func (c *Client) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.store.setSelf(s.UserID)
	c.presence.setSelf(s.UserID)
}

func (c *Client) setTokens(pair models.TokenPair) {
	c.mu.Lock()
	c.session.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		c.session.RefreshToken = pair.RefreshToken
	}
	c.mu.Unlock()
}

func (c *Client) sessionExpired() {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	c.conn.Disconnect()
	c.notifier.Notify("session-expired", "Session expired, please log in again", SeverityError, errorNotifyWindow)
}

// Login authenticates against the REST API and installs the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	res, err := c.rest.Login(ctx, username, password)
	if err != nil {
		return err
	}
	c.SetSession(Session{
		UserID:       res.UserID,
		Username:     res.Username,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
	return nil
}

// Register creates an account and installs the session.
func (c *Client) Register(ctx context.Context, username, password string) error {
	res, err := c.rest.Register(ctx, username, password)
	if err != nil {
		return err
	}
	c.SetSession(Session{
		UserID:       res.UserID,
		Username:     res.Username,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	})
	return nil
}

// Connect opens the managed connection. No-op without a session or when
// the client is disabled or already connected.
func (c *Client) Connect() { c.conn.Connect() }

// Disconnect tears the connection down and cancels all pending timers.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
	c.timers.cancelAll()
}

// Teardown is the full lifecycle end: connection, timers and ephemeral
// presence state.
func (c *Client) Teardown() {
	c.Disconnect()
	c.presence.Teardown()
}

func (c *Client) handleConnected() {
	c.presence.SetOnline(c.Session().UserID)

	// Re-enter the open conversation after a reconnect.
	if active := c.store.ActiveID(); active != "" {
		_ = c.conn.Write(models.WSEvent{Event: models.EventJoin, ConversationID: active})
	}

	c.flushQueue()
}

func (c *Client) handleTerminal() {
	c.notifier.Notify("connection-lost", "Connection lost and could not be re-established", SeverityError, errorNotifyWindow)
}

// handleEvent applies one inbound server event to the store and trackers.
// Events are delivered by a single read pump, so each apply runs to
// completion before the next event is processed.
func (c *Client) handleEvent(ev models.WSEvent) {
	selfID := c.Session().UserID

	switch ev.Event {
	case models.EventConnected:
		// Handshake acknowledged; nothing to apply.

	case models.EventNewMessage:
		if ev.Message == nil {
			return
		}
		c.store.ApplyNewMessage(*ev.Message)
		if ev.Message.SenderID != selfID && ev.Message.ConversationID != c.store.ActiveID() {
			c.notifier.Notify("new-message:"+ev.Message.ConversationID, "New message received", SeverityInfo, messageNotifyWindow)
		}

	case models.EventMessageSent:
		c.store.ApplySent(ev.ConversationID, ev.TempID, ev.MessageID, time.UnixMilli(ev.Timestamp))

	case models.EventMessageRead:
		c.store.ApplyRead(ev.ConversationID, ev.UserID, time.UnixMilli(ev.Timestamp))

	case models.EventTypingStart:
		c.presence.ApplyTypingStart(ev.ConversationID, ev.UserID)

	case models.EventTypingStop:
		c.presence.ApplyTypingStop(ev.ConversationID, ev.UserID)

	case models.EventUserOnline:
		c.presence.SetOnline(ev.UserID)

	case models.EventUserOffline:
		c.presence.SetOffline(ev.UserID)

	case models.EventConversationCreated:
		if ev.Conversation != nil {
			c.store.AdmitConversation(*ev.Conversation)
		}

	case models.EventConversationUpdated:
		c.store.RenameConversation(ev.ConversationID, ev.Name)

	case models.EventConversationDeleted:
		c.store.RemoveConversation(ev.ConversationID)

	case models.EventUserJoined:
		// Informational only.

	case models.EventError:
		if ev.TempID != "" {
			// Server rejected a send: drop the optimistic entry.
			c.store.RemoveMessage(ev.ConversationID, ev.TempID)
			c.notifier.Notify("send-failed:"+ev.ConversationID, "Message could not be delivered", SeverityError, errorNotifyWindow)
			return
		}
		c.notifier.Notify("server-error", "Chat server reported an error", SeverityWarning, errorNotifyWindow)
	}
}

// SendMessage composes a message with a fresh temporary id. The message
// appears optimistically in the store before transmission confirmation;
// if disconnected it is queued and flushed on reconnect.
func (c *Client) SendMessage(conversationID, content string) string {
	tempID := models.TempIDPrefix + uuid.New().String()
	c.SendMessageWithID(tempID, conversationID, content)
	return tempID
}

// SendMessageWithID sends under a caller-supplied temporary id; invoking it
// again with an id already recorded is a no-op.
func (c *Client) SendMessageWithID(tempID, conversationID, content string) {
	if !c.queue.markSeen(tempID) {
		return
	}

	now := time.Now()
	c.store.AddPending(models.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       c.Session().UserID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	})

	entry := &queuedMessage{
		tempID:         tempID,
		conversationID: conversationID,
		content:        content,
		composedAt:     now,
	}

	if c.conn.IsConnected() {
		if err := c.transmit(entry); err == nil {
			return
		}
	}
	c.queue.add(entry)
}

func (c *Client) transmit(entry *queuedMessage) error {
	return c.conn.Write(models.WSEvent{
		Event:          models.EventSendMessage,
		ConversationID: entry.conversationID,
		TempID:         entry.tempID,
		Content:        entry.content,
		Timestamp:      entry.composedAt.UnixMilli(),
	})
}

// flushQueue resends each buffered entry once; failed entries retry with a
// growing delay up to the per-message cap, then are dropped from the store.
func (c *Client) flushQueue() {
	for _, entry := range c.queue.drain() {
		c.sendQueued(entry)
	}
}

func (c *Client) sendQueued(entry *queuedMessage) {
	if err := c.transmit(entry); err == nil {
		return
	}

	entry.attempts++
	if entry.attempts >= maxSendAttempts {
		c.store.RemoveMessage(entry.conversationID, entry.tempID)
		c.notifier.Notify("send-failed:"+entry.conversationID, "Message could not be delivered", SeverityError, errorNotifyWindow)
		return
	}
	c.timers.set("send-retry:"+entry.tempID, sendRetryDelay(entry.attempts), func() {
		c.sendQueued(entry)
	})
}

// LoadConversations pulls the conversation list from the REST API.
func (c *Client) LoadConversations(ctx context.Context) error {
	conversations, err := c.rest.ListConversations(ctx)
	if err != nil {
		return err
	}
	c.store.SetConversations(conversations)
	return nil
}

// OpenConversation makes a conversation the active one, joins its room and
// loads the newest page of messages.
func (c *Client) OpenConversation(ctx context.Context, conversationID string) error {
	c.store.SetActive(conversationID)
	c.store.ResetMessages(conversationID)
	if c.conn.IsConnected() {
		_ = c.conn.Write(models.WSEvent{Event: models.EventJoin, ConversationID: conversationID})
	}
	return c.LoadOlderMessages(ctx, conversationID)
}

// LoadOlderMessages fetches the next page for a conversation and prepends
// it; a result superseded by a reset in the meantime is discarded.
func (c *Client) LoadOlderMessages(ctx context.Context, conversationID string) error {
	page, generation := c.store.BeginPageLoad(conversationID)
	messages, err := c.rest.FetchMessages(ctx, conversationID, page, c.cfg.PageSize)
	if err != nil {
		return err
	}
	c.store.ApplyPage(conversationID, generation, messages)
	return nil
}

// CreateConversation persists a new conversation and mirrors it locally.
func (c *Client) CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	conv, err := c.rest.CreateConversation(ctx, req)
	if err != nil {
		return nil, err
	}
	c.store.UpsertConversation(*conv)
	return conv, nil
}

// RenameConversation persists a rename, updates the local store and
// announces the change on the connection.
func (c *Client) RenameConversation(ctx context.Context, conversationID, name string) error {
	if err := c.rest.RenameConversation(ctx, conversationID, name); err != nil {
		return err
	}
	c.store.RenameConversation(conversationID, name)
	if c.conn.IsConnected() {
		_ = c.conn.Write(models.WSEvent{Event: models.EventConversationUpdated, ConversationID: conversationID, Name: name})
	}
	return nil
}

// DeleteConversation persists a deletion, purges the local store and
// announces the change on the connection.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.rest.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	if c.conn.IsConnected() {
		_ = c.conn.Write(models.WSEvent{Event: models.EventConversationDeleted, ConversationID: conversationID})
	}
	c.store.RemoveConversation(conversationID)
	return nil
}

// MarkRead marks a conversation's messages read up to now.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.rest.MarkRead(ctx, conversationID, time.Now())
}

// StartTyping announces typing in a conversation and arms the idle timer
// that auto-stops it.
func (c *Client) StartTyping(conversationID string) {
	_ = c.conn.Write(models.WSEvent{Event: models.EventTypingStart, ConversationID: conversationID})
	c.timers.set("typing-idle:"+conversationID, typingIdle, func() {
		c.StopTyping(conversationID)
	})
}

// StopTyping cancels the idle timer and announces the stop.
func (c *Client) StopTyping(conversationID string) {
	c.timers.cancel("typing-idle:" + conversationID)
	_ = c.conn.Write(models.WSEvent{Event: models.EventTypingStop, ConversationID: conversationID})
}
