package client

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"chat-sync/internal/models"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	writeErr error
	wrote    []models.WSEvent
	readErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		f.mu.Lock()
		err := f.readErr
		f.mu.Unlock()
		if err == nil {
			err = errors.New("connection reset")
		}
		return 0, nil, err
	}
}

func (f *fakeTransport) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.wrote = append(f.wrote, v.(models.WSEvent))
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) push(t *testing.T, ev models.WSEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	f.in <- data
}

func (f *fakeTransport) failReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
	f.Close()
}

func (f *fakeTransport) written() []models.WSEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.WSEvent(nil), f.wrote...)
}

func newTestConnManager(dial dialFunc) *connManager {
	c := newConnManager(
		func() string { return "ws://test/ws" },
		func() string { return "token" },
		true,
		3,
	)
	c.dial = dial
	c.baseDelay = time.Millisecond
	c.maxDelay = 10 * time.Millisecond
	return c
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	var prev time.Duration
	for attempt := 0; attempt <= 16; attempt++ {
		d := backoffDelay(baseBackoff, maxBackoff, attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		assert.LessOrEqual(t, d, maxBackoff)
		prev = d
	}

	assert.Equal(t, time.Second, backoffDelay(baseBackoff, maxBackoff, 0))
	assert.Equal(t, 2*time.Second, backoffDelay(baseBackoff, maxBackoff, 1))
	assert.Equal(t, 16*time.Second, backoffDelay(baseBackoff, maxBackoff, 4))
	assert.Equal(t, 30*time.Second, backoffDelay(baseBackoff, maxBackoff, 5))
	assert.Equal(t, 30*time.Second, backoffDelay(baseBackoff, maxBackoff, 12))
}

func TestConnectNoOpWithoutToken(t *testing.T) {
	dialed := false
	c := newConnManager(
		func() string { return "ws://test/ws" },
		func() string { return "" },
		true,
		3,
	)
	c.dial = func(url, token string) (transport, error) {
		dialed = true
		return newFakeTransport(), nil
	}

	c.Connect()
	assert.False(t, dialed, "connect without a session token must be a no-op")
}

func TestConnectNoOpWhenDisabled(t *testing.T) {
	dialed := false
	c := newConnManager(
		func() string { return "ws://test/ws" },
		func() string { return "token" },
		false,
		3,
	)
	c.dial = func(url, token string) (transport, error) {
		dialed = true
		return newFakeTransport(), nil
	}

	c.Connect()
	assert.False(t, dialed)
}

func TestReconnectAfterTransientFailure(t *testing.T) {
	var mu sync.Mutex
	failures := 2
	dials := 0
	c := newTestConnManager(func(url, token string) (transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials <= failures {
			return nil, errors.New("connection refused")
		}
		return newFakeTransport(), nil
	})

	connected := make(chan struct{}, 1)
	c.onConnected = func() { connected <- struct{}{} }

	c.Connect()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("never reconnected after transient failures")
	}
	assert.True(t, c.IsConnected())

	mu.Lock()
	assert.Equal(t, failures+1, dials)
	mu.Unlock()
}

func TestTerminalAfterAttemptCap(t *testing.T) {
	c := newTestConnManager(func(url, token string) (transport, error) {
		return nil, errors.New("connection refused")
	})

	terminal := make(chan struct{}, 1)
	c.onTerminal = func() { terminal <- struct{}{} }

	c.Connect()

	select {
	case <-terminal:
	case <-time.After(time.Second):
		t.Fatal("retry budget exhaustion was never surfaced")
	}
	assert.False(t, c.IsConnected())
	assert.Equal(t, 0, c.timers.pending(), "no reconnect timer may remain after the terminal failure")
}

func TestDisconnectCancelsPendingTimers(t *testing.T) {
	c := newTestConnManager(func(url, token string) (transport, error) {
		return nil, errors.New("connection refused")
	})
	// Slow the backoff down so the reconnect timer is observably pending.
	c.baseDelay = time.Minute
	c.maxDelay = time.Minute

	c.Connect()
	require.Equal(t, 1, c.timers.pending())

	c.Disconnect()
	assert.Equal(t, 0, c.timers.pending())

	// Safe to call again when already disconnected.
	c.Disconnect()
}

func TestServerInitiatedCloseDoesNotReconnect(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	ft := newFakeTransport()
	c := newTestConnManager(func(url, token string) (transport, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return ft, nil
	})

	connected := make(chan struct{}, 1)
	c.onConnected = func() { connected <- struct{}{} }
	c.Connect()
	<-connected

	ft.failReads(&websocket.CloseError{Code: websocket.CloseNormalClosure})

	// Give a would-be reconnect timer ample time to fire.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, dials, "an explicit server close must not trigger reconnection")
	mu.Unlock()
	assert.False(t, c.IsConnected())
}

func TestUnexpectedDropReconnectsAndResetsAttempts(t *testing.T) {
	var mu sync.Mutex
	var transports []*fakeTransport
	c := newTestConnManager(func(url, token string) (transport, error) {
		mu.Lock()
		defer mu.Unlock()
		ft := newFakeTransport()
		transports = append(transports, ft)
		return ft, nil
	})

	connected := make(chan struct{}, 4)
	c.onConnected = func() { connected <- struct{}{} }
	c.Connect()
	<-connected

	mu.Lock()
	first := transports[0]
	mu.Unlock()
	first.failReads(errors.New("connection reset by peer"))

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("transient drop was not retried")
	}

	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	assert.Equal(t, 0, attempts, "a successful connect resets the attempt counter")
	c.Disconnect()
}

func TestEventsDispatchedFromReadPump(t *testing.T) {
	ft := newFakeTransport()
	c := newTestConnManager(func(url, token string) (transport, error) {
		return ft, nil
	})

	events := make(chan models.WSEvent, 4)
	c.onEvent = func(ev models.WSEvent) { events <- ev }
	c.Connect()

	ft.push(t, models.WSEvent{Event: models.EventUserOnline, UserID: 7})

	select {
	case ev := <-events:
		assert.Equal(t, models.EventUserOnline, ev.Event)
		assert.Equal(t, 7, ev.UserID)
	case <-time.After(time.Second):
		t.Fatal("event never dispatched")
	}
	c.Disconnect()
}

func TestWriteWhileDisconnected(t *testing.T) {
	c := newTestConnManager(func(url, token string) (transport, error) {
		return newFakeTransport(), nil
	})
	err := c.Write(models.WSEvent{Event: models.EventTypingStart})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTimerRegistryReplacesAndCancels(t *testing.T) {
	r := newTimerRegistry()

	fired := make(chan string, 4)
	r.set("k", 5*time.Millisecond, func() { fired <- "first" })
	r.set("k", 5*time.Millisecond, func() { fired <- "second" })

	select {
	case got := <-fired:
		assert.Equal(t, "second", got, "setting the same key replaces the pending timer")
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	r.set("a", time.Minute, func() { fired <- "a" })
	r.set("b", time.Minute, func() { fired <- "b" })
	require.Equal(t, 2, r.pending())
	r.cancelAll()
	assert.Equal(t, 0, r.pending())
}
