package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chat-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionHarness struct {
	mu      sync.Mutex
	session Session
	expired bool
}

func (h *sessionHarness) get() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

func (h *sessionHarness) onTokens(pair models.TokenPair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		h.session.RefreshToken = pair.RefreshToken
	}
}

func (h *sessionHarness) onExpired() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expired = true
}

func newRESTHarness(t *testing.T, handler http.Handler) (*restClient, *sessionHarness, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	h := &sessionHarness{session: Session{
		UserID:       1,
		AccessToken:  "stale-access",
		RefreshToken: "refresh-1",
	}}
	r := newRESTClient(srv.URL, 5*time.Second, h.get, h.onTokens, h.onExpired)
	return r, h, srv
}

func TestExpiredAccessTokenRefreshedOnce(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, req *http.Request) {
		var body models.RefreshRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body.RefreshToken)
		json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "fresh-access", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer fresh-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]models.Conversation{{ID: "conv-1", Name: "general"}})
	})

	r, h, _ := newRESTHarness(t, mux)

	conversations, err := r.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "conv-1", conversations[0].ID)

	s := h.get()
	assert.Equal(t, "fresh-access", s.AccessToken)
	assert.Equal(t, "refresh-2", s.RefreshToken)
	assert.False(t, h.expired)
}

func TestFailedRefreshEndsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	r, h, _ := newRESTHarness(t, mux)

	_, err := r.ListConversations(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, h.expired)
}

func TestSecondUnauthorizedEndsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(models.TokenPair{AccessToken: "still-rejected"})
	})
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	r, h, _ := newRESTHarness(t, mux)

	_, err := r.ListConversations(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, h.expired)
}

func TestAPIErrorBodySurfaced(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "Not a participant"})
	})

	r, _, _ := newRESTHarness(t, mux)

	_, err := r.ListConversations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not a participant")
}

func TestMalformedResponseBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("not json"))
	})

	r, _, _ := newRESTHarness(t, mux)

	_, err := r.ListConversations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestLoginValidatesResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, req *http.Request) {
		// Missing access token.
		json.NewEncoder(w).Encode(models.AuthResponse{UserID: 1, Username: "alice"})
	})

	r, _, _ := newRESTHarness(t, mux)

	_, err := r.Login(context.Background(), "alice", "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required fields")
}

func TestFetchMessagesPassesPaging(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations/conv-1/messages", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "2", req.URL.Query().Get("page"))
		assert.Equal(t, "50", req.URL.Query().Get("page_size"))
		json.NewEncoder(w).Encode(models.MessagesPage{
			Messages: []models.Message{{ID: "m1", ConversationID: "conv-1", Content: "hi"}},
			Page:     2,
			PageSize: 50,
		})
	})

	r, _, _ := newRESTHarness(t, mux)

	msgs, err := r.FetchMessages(context.Background(), "conv-1", 2, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestMarkReadSendsCutoff(t *testing.T) {
	before := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations/conv-1/read", func(w http.ResponseWriter, req *http.Request) {
		var body models.MarkReadRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, before.UnixMilli(), body.Before)
		json.NewEncoder(w).Encode(models.MarkReadResponse{Updated: 3})
	})

	r, _, _ := newRESTHarness(t, mux)

	require.NoError(t, r.MarkRead(context.Background(), "conv-1", before))
}
