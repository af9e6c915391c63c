package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chat-sync/internal/models"
)

// ErrSessionExpired is returned once the refresh-token exchange has failed;
// local session state is cleared before it surfaces.
var ErrSessionExpired = errors.New("session expired")

var errUnauthorized = errors.New("unauthorized")

// restClient performs the durable writes and initial-state reads against
// the REST API, transparently refreshing an expired access token once.
type restClient struct {
	baseURL   string
	httpc     *http.Client
	session   func() Session
	onTokens  func(models.TokenPair)
	onExpired func()
}

func newRESTClient(baseURL string, timeout time.Duration, session func() Session, onTokens func(models.TokenPair), onExpired func()) *restClient {
	return &restClient{
		baseURL:   baseURL,
		httpc:     &http.Client{Timeout: timeout},
		session:   session,
		onTokens:  onTokens,
		onExpired: onExpired,
	}
}

func (r *restClient) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var res models.AuthResponse
	err := r.doOnce(ctx, http.MethodPost, "/api/login", models.LoginRequest{Username: username, Password: password}, &res, false)
	if err != nil {
		return nil, err
	}
	if res.AccessToken == "" || res.UserID == 0 {
		return nil, errors.New("login response missing required fields")
	}
	return &res, nil
}

func (r *restClient) Register(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var res models.AuthResponse
	err := r.doOnce(ctx, http.MethodPost, "/api/register", models.RegisterRequest{Username: username, Password: password}, &res, false)
	if err != nil {
		return nil, err
	}
	if res.AccessToken == "" || res.UserID == 0 {
		return nil, errors.New("register response missing required fields")
	}
	return &res, nil
}

func (r *restClient) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := r.do(ctx, http.MethodGet, "/api/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *restClient) CreateConversation(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.do(ctx, http.MethodPost, "/api/conversations", req, &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, errors.New("create conversation response missing id")
	}
	return &conv, nil
}

func (r *restClient) RenameConversation(ctx context.Context, conversationID, name string) error {
	path := fmt.Sprintf("/api/conversations/%s", conversationID)
	return r.do(ctx, http.MethodPatch, path, models.RenameConversationRequest{Name: name}, nil)
}

func (r *restClient) DeleteConversation(ctx context.Context, conversationID string) error {
	path := fmt.Sprintf("/api/conversations/%s", conversationID)
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

func (r *restClient) FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, error) {
	path := fmt.Sprintf("/api/conversations/%s/messages?page=%d&page_size=%d", conversationID, page, pageSize)
	var res models.MessagesPage
	if err := r.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (r *restClient) MarkRead(ctx context.Context, conversationID string, before time.Time) error {
	path := fmt.Sprintf("/api/conversations/%s/read", conversationID)
	return r.do(ctx, http.MethodPost, path, models.MarkReadRequest{Before: before.UnixMilli()}, nil)
}

// do runs an authenticated request; a 401 triggers one refresh-and-retry,
// and a second 401 (or a failed refresh) terminates the session.
func (r *restClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	err := r.doOnce(ctx, method, path, body, out, true)
	if !errors.Is(err, errUnauthorized) {
		return err
	}

	if err := r.refresh(ctx); err != nil {
		r.onExpired()
		return ErrSessionExpired
	}

	err = r.doOnce(ctx, method, path, body, out, true)
	if errors.Is(err, errUnauthorized) {
		r.onExpired()
		return ErrSessionExpired
	}
	return err
}

func (r *restClient) doOnce(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+r.session().AccessToken)
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: malformed response: %w", method, path, err)
		}
	}
	return nil
}

func (r *restClient) refresh(ctx context.Context) error {
	s := r.session()
	if s.RefreshToken == "" {
		return errors.New("no refresh token")
	}

	var pair models.TokenPair
	err := r.doOnce(ctx, http.MethodPost, "/api/refresh", models.RefreshRequest{RefreshToken: s.RefreshToken}, &pair, false)
	if err != nil {
		return err
	}
	if pair.AccessToken == "" {
		return errors.New("refresh response missing access token")
	}
	r.onTokens(pair)
	return nil
}
