// Package api is the REST transport of the chat backend.
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
	"time"

	"go.uber.org/zap"

	"client_go/internal/domain"
	"client_go/internal/logger"
)

// Authenticator supplies the bearer credential and is told when the server
// rejects it. *session.Session satisfies it.
type Authenticator interface {
	Authorize(req *http.Request) error
	Invalidate(reason string) bool
}

// StatusError is a non-2xx response that has no sentinel mapping.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	base string
	http *http.Client
	auth Authenticator
	log  *zap.Logger
}

func New(baseURL string, auth Authenticator, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: timeout},
		auth: auth,
		log:  log,
	}
}

// WithAuth returns a copy of c that authenticates with auth.
func (c *Client) WithAuth(auth Authenticator) *Client {
	cp := *c
	cp.auth = auth
	return &cp
}

type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// do sends a JSON request and decodes a JSON response into out when it is
// non-nil. Authentication failures invalidate the session.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return err
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("api_request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.String("headers", logger.SafeHeaders(req.Header)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	}

	return c.statusError(resp, path)
}

func (c *Client) statusError(resp *http.Response, path string) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &eb)
	msg := eb.Error
	if msg == "" {
		msg = eb.Detail
	}
	if msg == "" {
		msg = eb.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if c.auth != nil && c.auth.Invalidate(fmt.Sprintf("%d from %s", resp.StatusCode, path)) {
			c.log.Info("session_invalidated", zap.String("path", path), zap.Int("status", resp.StatusCode))
		}
		if resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%s: %w: %w", path, domain.ErrUnauthorized, domain.ErrForbidden)
		}
		return fmt.Errorf("%s: %w", path, domain.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, domain.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", path, domain.ErrConflict)
	default:
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
}

func escape(id string) string {
	return url.PathEscape(id)
}
