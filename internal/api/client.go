// Package api implements the REST client for the notification endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recruitdesk/internal/common"

	"go.uber.org/zap"
)

var (
	// ErrUnauthorized covers 401 and 403: the session is no longer valid.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("notification not found")
)

// TokenProvider returns the current bearer token. It is a function so the
// session layer can rotate tokens without rebuilding the client.
type TokenProvider func() string

// Client talks to the notification REST endpoints. It injects the auth
// header on every request and maps auth failures to ErrUnauthorized.
// Timeouts are the embedded http.Client's concern; no retry layer is
// stacked on top, failed calls are retried by the next poll cycle.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenProvider
	log     *zap.SugaredLogger
}

func NewClient(baseURL string, token TokenProvider, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   token,
		log:     log,
	}
}

func (c *Client) ListNotifications(ctx context.Context, userID string) ([]common.Notification, error) {
	path := fmt.Sprintf("/notifications?userId=%s", url.QueryEscape(userID))

	var notifications []common.Notification
	if err := c.do(ctx, http.MethodGet, path, nil, &notifications); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

func (c *Client) GetNotification(ctx context.Context, id string) (*common.Notification, error) {
	var notification common.Notification
	if err := c.do(ctx, http.MethodGet, "/notifications/"+url.PathEscape(id), nil, &notification); err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return &notification, nil
}

func (c *Client) CreateNotification(ctx context.Context, req common.CreateNotificationRequest) (*common.Notification, error) {
	var notification common.Notification
	if err := c.do(ctx, http.MethodPost, "/notifications", req, &notification); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return &notification, nil
}

func (c *Client) UpdateNotification(ctx context.Context, id string, req common.UpdateNotificationRequest) (*common.Notification, error) {
	var notification common.Notification
	if err := c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id), req, &notification); err != nil {
		return nil, fmt.Errorf("update notification %s: %w", id, err)
	}
	return &notification, nil
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.log.Warnw("request rejected by backend", "method", method, "path", path, "status", resp.StatusCode)
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
