package domain

import "context"

// HistoryFetcher loads the ordered message history of a conversation.
type HistoryFetcher interface {
	FetchMessages(ctx context.Context, ref ConversationRef) ([]Message, error)
}

// DirectInitializer makes sure a direct conversation exists on the server.
// Implementations treat "already exists" as success and return the id the
// flow should continue with.
type DirectInitializer interface {
	InitDirect(ctx context.Context, peerID string) (string, error)
}

// OutgoingMessage is what the composer submits.
type OutgoingMessage struct {
	Body    string
	ReplyTo string
}

// MessageSender submits a message. Delivery confirmation, if any, arrives on
// the push channel rather than in the response.
type MessageSender interface {
	SendMessage(ctx context.Context, ref ConversationRef, msg OutgoingMessage) error
}

// RoomControl joins and leaves push-channel rooms.
type RoomControl interface {
	Join(ctx context.Context, conversationID string) error
	Leave(ctx context.Context, conversationID string) error
}

// TypingEmitter relays the local user's typing state.
type TypingEmitter interface {
	SendTyping(ctx context.Context, conversationID string, isTyping bool) error
}

// Releaser is a subscription handle.
type Releaser interface {
	Close()
}

// EventSource delivers push events to a handler until the returned handle is
// closed. Events are delivered one at a time in receive order.
type EventSource interface {
	Subscribe(handler func(Event)) Releaser
}
