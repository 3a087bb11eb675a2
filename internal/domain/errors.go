package domain

import "errors"

// Sentinel errors shared by the transports and the conversation view.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("not authenticated")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("resource already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNotConnected         = errors.New("push channel not connected")
)
