package domain

import "time"

// ConversationKind distinguishes group channels from one-to-one chats.
type ConversationKind string

const (
	KindGroup  ConversationKind = "group"
	KindDirect ConversationKind = "direct"
)

// ConversationRef identifies the conversation a view is showing. For direct
// conversations ID is the peer user's id.
type ConversationRef struct {
	ID          string           `json:"id" yaml:"id"`
	Kind        ConversationKind `json:"kind" yaml:"kind"`
	DisplayName string           `json:"displayName" yaml:"display_name"`
}

// IsGroup reports whether the conversation is room-scoped on the push channel.
func (r ConversationRef) IsGroup() bool {
	return r.Kind == KindGroup
}

// Sender is the author of a message as shown in the thread.
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
}

// MessageKind separates user-authored messages from synthesized system lines.
type MessageKind string

const (
	MessageUser   MessageKind = "user"
	MessageSystem MessageKind = "system"
)

// Message is a single entry in a conversation's message list.
type Message struct {
	ID      string      `json:"id"`
	Sender  Sender      `json:"sender"`
	Body    string      `json:"text"`
	SentAt  time.Time   `json:"time"`
	IsOwn   bool        `json:"isOwn"`
	Kind    MessageKind `json:"type,omitempty"`
	ReplyTo string      `json:"replyTo,omitempty"`
}

// IsSystem reports whether the message was synthesized by the client.
func (m Message) IsSystem() bool {
	return m.Kind == MessageSystem
}

// Member is a channel member as listed in the info pane.
type Member struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
	Role     string `json:"role,omitempty"`
}

// Channel is a group conversation as listed in the sidebar.
type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	Members     []Member  `json:"members"`
	Role        string    `json:"role,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Unread      int       `json:"unread,omitempty"`
	IsArchived  bool      `json:"isArchived,omitempty"`
	IsStarred   bool      `json:"isStarred,omitempty"`
	IsMuted     bool      `json:"isMuted,omitempty"`
}

// Ref returns the conversation reference for selecting this channel.
func (c Channel) Ref() ConversationRef {
	return ConversationRef{ID: c.ID, Kind: KindGroup, DisplayName: c.Name}
}

// User is an account as returned by the users listing and /users/me.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	IsOnline   bool      `json:"isOnline"`
	LastSeen   time.Time `json:"lastSeen"`
	Unread     int       `json:"unread,omitempty"`
	IsArchived bool      `json:"isArchived,omitempty"`
	IsStarred  bool      `json:"isStarred,omitempty"`
	IsMuted    bool      `json:"isMuted,omitempty"`
}

// Ref returns the conversation reference for a direct chat with this user.
func (u User) Ref() ConversationRef {
	return ConversationRef{ID: u.ID, Kind: KindDirect, DisplayName: u.Name}
}
