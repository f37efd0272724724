package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

const sessionTokenHeader = "X-Session-Token"

// APIError is a failed request, decoded from the response envelope.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d (code %d): %s", e.Status, e.Code, e.Message)
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// API is the HTTP side of the client. Token is sent as a bearer token once set.
type API struct {
	BaseURL string
	Token   string

	http *http.Client
}

// NewAPI returns an API for the server at baseURL (for example "http://localhost:8080").
func NewAPI(baseURL string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WebsocketURL returns the ws:// or wss:// URL of the persistent channel.
func (a *API) WebsocketURL() (string, error) {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return u.String(), nil
}

// Signup creates an account and keeps its session token.
func (a *API) Signup(ctx context.Context, fullName, email, password string) (user.Identity, error) {
	return a.session(ctx, "/api/auth/signup", map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	})
}

// Login starts a session and keeps its token.
func (a *API) Login(ctx context.Context, email, password string) (user.Identity, error) {
	return a.session(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (a *API) session(ctx context.Context, path string, body any) (user.Identity, error) {
	var identity user.Identity

	header, err := a.do(ctx, http.MethodPost, path, body, &identity)
	if err != nil {
		return user.Identity{}, err
	}

	a.Token = header.Get(sessionTokenHeader)
	if a.Token == "" {
		return user.Identity{}, fmt.Errorf("api: %s returned no session token", path)
	}

	return identity, nil
}

// Users lists everyone but the caller.
func (a *API) Users(ctx context.Context) ([]user.Identity, error) {
	var out []user.Identity
	_, err := a.do(ctx, http.MethodGet, "/api/messages/users", nil, &out)
	return out, err
}

// SearchUsers finds users whose username or full name contains query.
func (a *API) SearchUsers(ctx context.Context, query string) ([]user.Identity, error) {
	var out []user.Identity
	_, err := a.do(ctx, http.MethodGet, "/api/messages/search-users?query="+url.QueryEscape(query), nil, &out)
	return out, err
}

// Block adds peer to the caller's block list.
func (a *API) Block(ctx context.Context, peer string) error {
	_, err := a.do(ctx, http.MethodPost, "/api/auth/block/"+url.PathEscape(peer), nil, nil)
	return err
}

// Unblock removes peer from the caller's block list.
func (a *API) Unblock(ctx context.Context, peer string) error {
	_, err := a.do(ctx, http.MethodPost, "/api/auth/unblock/"+url.PathEscape(peer), nil, nil)
	return err
}

// BlockedUsers lists the caller's block list.
func (a *API) BlockedUsers(ctx context.Context) ([]user.Identity, error) {
	var out []user.Identity
	_, err := a.do(ctx, http.MethodGet, "/api/auth/blocked-users", nil, &out)
	return out, err
}

// Thread fetches the conversation with peer.
func (a *API) Thread(ctx context.Context, peer string) ([]message.Message, error) {
	var out []message.Message
	_, err := a.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peer), nil, &out)
	return out, err
}

// Send posts a message to peer and returns it as persisted.
func (a *API) Send(ctx context.Context, peer, text, image string) (message.Message, error) {
	var out message.Message
	_, err := a.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peer), map[string]string{
		"text":  text,
		"image": image,
	}, &out)
	return out, err
}

// Delete removes one of the caller's messages.
func (a *API) Delete(ctx context.Context, messageID string) error {
	_, err := a.do(ctx, http.MethodDelete, "/api/messages/"+url.PathEscape(messageID), nil, nil)
	return err
}

func (a *API) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	res, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("api: decode %s %s: %w", method, path, err)
	}

	if res.StatusCode >= http.StatusBadRequest || envelope.Code != 0 {
		return nil, &APIError{Status: res.StatusCode, Code: envelope.Code, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return nil, fmt.Errorf("api: decode %s %s data: %w", method, path, err)
		}
	}

	return res.Header, nil
}
