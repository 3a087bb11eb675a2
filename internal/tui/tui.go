// Package tui is the full-screen terminal client.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"client_go/internal/api"
	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/push"
	"client_go/internal/view"
)

// ErrSessionExpired ends Run when the server rejected the credentials.
var ErrSessionExpired = errors.New("session expired, run `zchat login`")

const (
	toastTTL   = 4 * time.Second
	maxToasts  = 3
	tickPeriod = time.Second
)

// Conversation is the active thread. *view.View satisfies it.
type Conversation interface {
	Select(ctx context.Context, ref *domain.ConversationRef)
	Send(ctx context.Context, body, replyTo string) (domain.Message, error)
	Keystroke(ctx context.Context)
	Snapshot() view.Snapshot
	Changes() <-chan struct{}
}

// Sidebar is the chat listing. *directory.Directory satisfies it.
type Sidebar interface {
	Refresh(ctx context.Context) error
	Entries(tab directory.Tab) []directory.Entry
	Search(query string) []directory.Entry
	Channel(id string) (domain.Channel, bool)
	User(id string) (domain.User, bool)
	Candidates(channelID string) []domain.User
	Act(ctx context.Context, ref domain.ConversationRef, action api.Action) error
	AddMember(ctx context.Context, channelID string, user domain.User) error
}

type Deps struct {
	Conversation Conversation
	Sidebar      Sidebar
	Notices      *view.Notices
	LoggedOut    <-chan struct{}
	// Status reports the push connection for the status bar. Optional.
	Status func() push.Status
	Log    *zap.Logger
	Now    func() time.Time
}

// Run blocks until the user quits, ctx is cancelled or the session ends.
func Run(ctx context.Context, d Deps) error {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	p := tea.NewProgram(newModel(ctx, d), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if m, ok := final.(model); ok && m.expired {
		return ErrSessionExpired
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

type (
	changedMsg   struct{}
	noticesMsg   struct{}
	loggedOutMsg struct{}
	tickMsg      time.Time
	doneMsg      struct{ err error }
)

func wait(ctx context.Context, ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickPeriod, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) refresh() tea.Cmd {
	ctx, side := m.ctx, m.deps.Sidebar
	return func() tea.Msg { return doneMsg{err: side.Refresh(ctx)} }
}

func (m model) act(ref domain.ConversationRef, action api.Action) tea.Cmd {
	ctx, side := m.ctx, m.deps.Sidebar
	return func() tea.Msg { return doneMsg{err: side.Act(ctx, ref, action)} }
}

func (m model) addMember(channelID string, u domain.User) tea.Cmd {
	ctx, side := m.ctx, m.deps.Sidebar
	return func() tea.Msg { return doneMsg{err: side.AddMember(ctx, channelID, u)} }
}
