package push

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"client_go/internal/domain"
)

// Server frame types.
const (
	TypeNewMessage     = "new_message"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeMemberAdded    = "member_added"
	TypeTyping         = "typing"
	TypeError          = "error"
)

// Client frame types.
const (
	TypeJoinChannel  = "join_channel"
	TypeLeaveChannel = "leave_channel"
)

var errUnknownFrame = errors.New("unknown frame type")

// ServerError is an error frame sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "push: server error: " + e.Message }

type inFrame struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelId"`
	Message   json.RawMessage `json:"message"`
	MessageID string          `json:"messageId"`
	Text      string          `json:"text"`
	AddedUser json.RawMessage `json:"addedUser"`
	AddedBy   json.RawMessage `json:"addedBy"`
	UserID    string          `json:"userId"`
	Name      string          `json:"name"`
	IsTyping  bool            `json:"isTyping"`
}

// decodeEvent parses one server frame. Error frames come back as
// *ServerError, unknown types wrap errUnknownFrame.
func decodeEvent(data []byte) (domain.Event, error) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case TypeNewMessage:
		var m domain.Message
		if err := json.Unmarshal(f.Message, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Type, err)
		}
		return domain.NewMessage{Conversation: f.ChannelID, Message: m}, nil
	case TypeMessageEdited:
		return domain.MessageEdited{Conversation: f.ChannelID, MessageID: f.MessageID, Body: f.Text}, nil
	case TypeMessageDeleted:
		return domain.MessageDeleted{Conversation: f.ChannelID, MessageID: f.MessageID}, nil
	case TypeMemberAdded:
		added, err := decodeMember(f.AddedUser)
		if err != nil {
			return nil, fmt.Errorf("decode %s addedUser: %w", f.Type, err)
		}
		by, err := decodeMember(f.AddedBy)
		if err != nil {
			return nil, fmt.Errorf("decode %s addedBy: %w", f.Type, err)
		}
		return domain.MemberAdded{Conversation: f.ChannelID, AddedUser: added, AddedBy: by}, nil
	case TypeTyping:
		return domain.Typing{Conversation: f.ChannelID, UserID: f.UserID, Name: f.Name, IsTyping: f.IsTyping}, nil
	case TypeError:
		var text string
		if err := json.Unmarshal(f.Message, &text); err != nil {
			text = string(f.Message)
		}
		return nil, &ServerError{Message: text}
	default:
		return nil, fmt.Errorf("%w %q", errUnknownFrame, f.Type)
	}
}

// decodeMember accepts either a member object or a bare display name.
func decodeMember(raw json.RawMessage) (domain.Member, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.Member{}, nil
	}
	if raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return domain.Member{}, err
		}
		return domain.Member{Name: name}, nil
	}
	var m domain.Member
	err := json.Unmarshal(raw, &m)
	return m, err
}

type outFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
	IsTyping  *bool  `json:"isTyping,omitempty"`
}

func encodeFrame(typ, channelID string, typing *bool) []byte {
	b, _ := json.Marshal(outFrame{Type: typ, ChannelID: channelID, IsTyping: typing})
	return b
}
