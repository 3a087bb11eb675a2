package domain

// Event is a push-channel event. Every event is tagged with the id of the
// conversation it belongs to, which is what routing is decided on.
type Event interface {
	ConversationID() string
}

// NewMessage is delivered when a message is posted to a conversation.
type NewMessage struct {
	Conversation string
	Message      Message
}

func (e NewMessage) ConversationID() string { return e.Conversation }

// MessageEdited carries the replacement body for an existing message.
type MessageEdited struct {
	Conversation string
	MessageID    string
	Body         string
}

func (e MessageEdited) ConversationID() string { return e.Conversation }

// MessageDeleted removes a message from a conversation.
type MessageDeleted struct {
	Conversation string
	MessageID    string
}

func (e MessageDeleted) ConversationID() string { return e.Conversation }

// MemberAdded reports a membership change in a group conversation. It is
// both pushed by the server and published locally after an add-member call.
type MemberAdded struct {
	Conversation string
	AddedUser    Member
	AddedBy      Member
}

func (e MemberAdded) ConversationID() string { return e.Conversation }

// Typing is a transient indicator and never touches the message list.
type Typing struct {
	Conversation string
	UserID       string
	Name         string
	IsTyping     bool
}

func (e Typing) ConversationID() string { return e.Conversation }
