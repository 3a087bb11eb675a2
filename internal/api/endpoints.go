package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"client_go/internal/domain"
)

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        domain.User `json:"user"`
}

// Login exchanges credentials for an access token. It never invalidates a
// session; a 401 here only means the credentials are wrong.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	anon := c.WithAuth(nil)
	in := map[string]string{"username": username, "password": password}
	var out LoginResult
	if err := anon.do(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("login: empty token: %w", domain.ErrUnauthorized)
	}
	return &out, nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Users(ctx context.Context) ([]domain.User, error) {
	var out struct {
		Users []domain.User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) Channels(ctx context.Context) ([]domain.Channel, error) {
	var out struct {
		Channels []domain.Channel `json:"channels"`
	}
	if err := c.do(ctx, http.MethodGet, "/channels", nil, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// conversationPath is the resource path of a conversation. Direct
// conversations live under /channels/personal/{peerID}.
func conversationPath(ref domain.ConversationRef) string {
	if ref.Kind == domain.KindDirect {
		return "/channels/personal/" + escape(ref.ID)
	}
	return "/channels/" + escape(ref.ID)
}

// FetchMessages returns the conversation history in server order.
func (c *Client) FetchMessages(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error) {
	var out struct {
		Messages []domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, conversationPath(ref)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// InitDirect creates the direct conversation with peerID. A conflict or bad
// request means it already exists and is treated as success. The returned id
// is always peerID.
func (c *Client) InitDirect(ctx context.Context, peerID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/channels/personal/"+escape(peerID), struct{}{}, &out)

	var se *StatusError
	switch {
	case err == nil:
		c.log.Debug("direct_created", zap.String("peer_id", peerID), zap.String("channel_id", out.ID))
	case errors.Is(err, domain.ErrConflict):
	case errors.As(err, &se) && se.Code == http.StatusBadRequest:
	default:
		return "", err
	}
	return peerID, nil
}

type sendBody struct {
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// SendMessage posts a message. The response body is ignored: the caller
// already shows its optimistic copy.
func (c *Client) SendMessage(ctx context.Context, ref domain.ConversationRef, msg domain.OutgoingMessage) error {
	path := "/channels/" + escape(ref.ID) + "/messages"
	if ref.Kind == domain.KindDirect {
		path = "/dms/" + escape(ref.ID) + "/messages"
	}
	return c.do(ctx, http.MethodPost, path, sendBody{Text: msg.Body, ReplyTo: msg.ReplyTo}, nil)
}

func (c *Client) EditMessage(ctx context.Context, ref domain.ConversationRef, messageID, body string) error {
	path := conversationPath(ref) + "/messages/" + escape(messageID)
	return c.do(ctx, http.MethodPatch, path, sendBody{Text: body}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, ref domain.ConversationRef, messageID string) error {
	path := conversationPath(ref) + "/messages/" + escape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Action is a sidebar flag operation.
type Action string

const (
	ActionRead    Action = "read"
	ActionArchive Action = "archive"
	ActionStar    Action = "star"
	ActionMute    Action = "mute"
)

func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionArchive, ActionStar, ActionMute:
		return true
	}
	return false
}

func (c *Client) Act(ctx context.Context, ref domain.ConversationRef, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("action %q: %w", action, domain.ErrInvalidInput)
	}
	return c.do(ctx, http.MethodPost, conversationPath(ref)+"/"+string(action), struct{}{}, nil)
}

// AddMember adds userID to a group channel.
func (c *Client) AddMember(ctx context.Context, channelID, userID string) error {
	in := map[string]string{"userId": userID}
	return c.do(ctx, http.MethodPost, "/channels/"+escape(channelID)+"/members", in, nil)
}
