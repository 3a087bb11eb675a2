package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"client_go/internal/domain"
)

// Membership keeps at most one push room joined for the active conversation.
// Direct conversations are not room-scoped.
type Membership struct {
	rooms domain.RoomControl
	log   *zap.Logger

	mu     sync.Mutex
	joined string
}

func NewMembership(rooms domain.RoomControl, log *zap.Logger) *Membership {
	if log == nil {
		log = zap.NewNop()
	}
	return &Membership{rooms: rooms, log: log}
}

// Transition leaves the previously joined room and joins next if it is a
// group. Reselecting the joined room emits nothing.
func (m *Membership) Transition(ctx context.Context, next *domain.ConversationRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := ""
	if next != nil && next.IsGroup() {
		target = next.ID
	}
	if target == m.joined {
		return nil
	}

	var errs []error
	if m.joined != "" {
		if err := m.rooms.Leave(ctx, m.joined); err != nil {
			errs = append(errs, fmt.Errorf("leave %s: %w", m.joined, err))
		}
		m.log.Debug("room_left", zap.String("conversation_id", m.joined))
		m.joined = ""
	}
	if target != "" {
		if err := m.rooms.Join(ctx, target); err != nil {
			errs = append(errs, fmt.Errorf("join %s: %w", target, err))
		}
		m.joined = target
		m.log.Debug("room_joined", zap.String("conversation_id", target))
	}
	return errors.Join(errs...)
}

// Release leaves the joined room, if any.
func (m *Membership) Release(ctx context.Context) error {
	return m.Transition(ctx, nil)
}

// Joined returns the id of the joined room, or "".
func (m *Membership) Joined() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}
