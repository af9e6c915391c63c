package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/utils"

	"github.com/fasthttp/websocket"
)

const (
	baseBackoff                 = time.Second
	maxBackoff                  = 30 * time.Second
	defaultMaxReconnectAttempts = 10
)

// ErrNotConnected is returned by writes attempted while the transport is
// down; callers fall back to the outbound queue.
var ErrNotConnected = errors.New("not connected")

// transport is the minimal surface of a websocket connection the manager
// needs; tests substitute an in-memory fake.
type transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

type dialFunc func(wsURL, token string) (transport, error)

func dialWebsocket(wsURL, token string) (transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// backoffDelay computes the reconnect delay for an attempt number:
// min(base<<attempt, max), non-decreasing in attempt.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// connManager owns the single logical connection per authenticated session:
// connect, authenticated handshake, reconnect with backoff, teardown. No
// other component holds a reference to the transport.
type connManager struct {
	mu sync.Mutex

	dial    dialFunc
	wsURL   func() string
	token   func() string
	enabled bool

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	connected bool
	closed    bool
	attempts  int
	ws        transport
	gen       int

	timers *timerRegistry

	onConnected func()
	onEvent     func(models.WSEvent)
	onTerminal  func()
}

func newConnManager(wsURL, token func() string, enabled bool, maxAttempts int) *connManager {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxReconnectAttempts
	}
	return &connManager{
		dial:        dialWebsocket,
		wsURL:       wsURL,
		token:       token,
		enabled:     enabled,
		baseDelay:   baseBackoff,
		maxDelay:    maxBackoff,
		maxAttempts: maxAttempts,
		timers:      newTimerRegistry(),
	}
}

// Connect establishes the transport. It is a no-op unless the enable flag
// is set and a session token exists, and is idempotent when already
// connected.
func (c *connManager) Connect() {
	c.mu.Lock()
	if !c.enabled || c.token() == "" || c.connected {
		c.mu.Unlock()
		return
	}
	c.closed = false
	c.attempts = 0
	c.mu.Unlock()

	c.tryConnect()
}

func (c *connManager) tryConnect() {
	c.mu.Lock()
	if c.closed || c.connected {
		c.mu.Unlock()
		return
	}
	wsURL, token := c.wsURL(), c.token()
	c.mu.Unlock()

	ws, err := c.dial(wsURL, token)
	if err != nil {
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.connected = true
	c.attempts = 0
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go c.readPump(ws, gen)

	if c.onConnected != nil {
		c.onConnected()
	}
}

func (c *connManager) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	attempt := c.attempts
	c.attempts++
	if attempt >= c.maxAttempts {
		c.mu.Unlock()
		if c.onTerminal != nil {
			c.onTerminal()
		}
		return
	}
	delay := backoffDelay(c.baseDelay, c.maxDelay, attempt)
	c.mu.Unlock()

	c.timers.set("reconnect", delay, c.tryConnect)
}

func (c *connManager) readPump(ws transport, gen int) {
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var ev models.WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			utils.LogError(err, "Event Parse")
			continue
		}

		c.mu.Lock()
		stale := gen != c.gen
		c.mu.Unlock()
		if stale {
			return
		}

		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

func (c *connManager) handleDisconnect(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// A newer connection superseded this pump.
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.ws = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	// A deliberate server-side close is not retried.
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
		return
	}
	c.scheduleReconnect()
}

// Write sends one event over the live transport.
func (c *connManager) Write(ev models.WSEvent) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.connected
	c.mu.Unlock()

	if !connected || ws == nil {
		return ErrNotConnected
	}
	return ws.WriteJSON(ev)
}

func (c *connManager) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect is the explicit teardown: cancels every pending reconnect
// timer, resets the attempt counter and closes the transport. Safe to call
// when already disconnected.
func (c *connManager) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.attempts = 0
	ws := c.ws
	c.ws = nil
	c.connected = false
	c.gen++
	c.mu.Unlock()

	c.timers.cancelAll()
	if ws != nil {
		ws.Close()
	}
}
