package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"client_go/internal/api"
	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/view"
)

type fakeConversation struct {
	selected   []*domain.ConversationRef
	sent       []string
	replies    []string
	keystrokes int
	snap       view.Snapshot
	changes    chan struct{}
}

func (f *fakeConversation) Select(_ context.Context, ref *domain.ConversationRef) {
	f.selected = append(f.selected, ref)
	f.snap = view.Snapshot{Ref: ref, Loading: true, Generation: f.snap.Generation + 1}
}

func (f *fakeConversation) Send(_ context.Context, body, replyTo string) (domain.Message, error) {
	if f.snap.Ref == nil {
		return domain.Message{}, domain.ErrNoActiveConversation
	}
	f.sent = append(f.sent, body)
	f.replies = append(f.replies, replyTo)
	return domain.Message{ID: "local", Body: body, IsOwn: true}, nil
}

func (f *fakeConversation) Keystroke(context.Context) { f.keystrokes++ }
func (f *fakeConversation) Snapshot() view.Snapshot   { return f.snap }
func (f *fakeConversation) Changes() <-chan struct{}  { return f.changes }

type mockSidebar struct {
	mock.Mock
	entries []directory.Entry
}

func (s *mockSidebar) Refresh(context.Context) error { return nil }

func (s *mockSidebar) Entries(tab directory.Tab) []directory.Entry {
	if tab != directory.TabAll {
		return nil
	}
	return s.entries
}

func (s *mockSidebar) Search(q string) []directory.Entry {
	var out []directory.Entry
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Ref.DisplayName), strings.ToLower(q)) {
			out = append(out, e)
		}
	}
	return out
}

func (s *mockSidebar) Channel(id string) (domain.Channel, bool) {
	return domain.Channel{ID: id, Name: "general", Description: "company-wide"}, true
}

func (s *mockSidebar) User(id string) (domain.User, bool) {
	return domain.User{ID: id, Name: "Bob Dylan"}, true
}

func (s *mockSidebar) Candidates(string) []domain.User {
	return []domain.User{{ID: "u3", Name: "Carol King"}}
}

func (s *mockSidebar) Act(ctx context.Context, ref domain.ConversationRef, action api.Action) error {
	return s.Called(ref.ID, action).Error(0)
}

func (s *mockSidebar) AddMember(ctx context.Context, channelID string, user domain.User) error {
	return s.Called(channelID, user.ID).Error(0)
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out, cmd
}

func newTestModel(t *testing.T) (model, *fakeConversation, *mockSidebar) {
	t.Helper()
	conv := &fakeConversation{changes: make(chan struct{}, 1)}
	side := &mockSidebar{entries: []directory.Entry{
		{Ref: domain.ConversationRef{ID: "c1", Kind: domain.KindGroup, DisplayName: "general"}, Unread: 2},
		{Ref: domain.ConversationRef{ID: "u2", Kind: domain.KindDirect, DisplayName: "Bob Dylan"}, IsOnline: true},
	}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := newModel(context.Background(), Deps{
		Conversation: conv,
		Sidebar:      side,
		Notices:      view.NewNotices(4),
		Now:          func() time.Time { return now },
	})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, conv, side
}

func TestNavigation(t *testing.T) {
	t.Run("OpenMarksUnreadAsRead", func(t *testing.T) {
		m, conv, side := newTestModel(t)
		side.On("Act", "c1", api.ActionRead).Return(nil).Once()

		m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.Len(t, conv.selected, 1)
		assert.Equal(t, "c1", conv.selected[0].ID)
		assert.Equal(t, focusComposer, m.focus)
		require.NotNil(t, cmd)

		for _, msg := range flatten(cmd) {
			if d, ok := msg.(doneMsg); ok {
				assert.NoError(t, d.err)
			}
		}
		side.AssertExpectations(t)
	})

	t.Run("CursorAndTabs", func(t *testing.T) {
		m, conv, _ := newTestModel(t)
		m, _ = update(t, m, keys("j"))
		m, _ = update(t, m, keys("j"))
		assert.Equal(t, 1, m.cursor)

		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.Len(t, conv.selected, 1)
		assert.Equal(t, domain.KindDirect, conv.selected[0].Kind)

		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
		assert.Equal(t, directory.TabArchived, m.tab)
		assert.Empty(t, m.entries)
		assert.Equal(t, 0, m.cursor)
	})

	t.Run("Search", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m, _ = update(t, m, keys("/"))
		assert.Equal(t, focusSearch, m.focus)
		m, _ = update(t, m, keys("bob"))
		require.Len(t, m.entries, 1)
		assert.Equal(t, "u2", m.entries[0].Ref.ID)

		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
		assert.Equal(t, focusSidebar, m.focus)
		assert.Len(t, m.entries, 2)
	})

	t.Run("SidebarAction", func(t *testing.T) {
		m, _, side := newTestModel(t)
		side.On("Act", "c1", api.ActionStar).Return(nil).Once()
		_, cmd := update(t, m, keys("s"))
		require.NotNil(t, cmd)
		assert.Equal(t, doneMsg{}, cmd())
		side.AssertExpectations(t)
	})
}

func TestComposer(t *testing.T) {
	open := func(t *testing.T) (model, *fakeConversation) {
		m, conv, side := newTestModel(t)
		side.On("Act", mock.Anything, mock.Anything).Return(nil).Maybe()
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		return m, conv
	}

	t.Run("TypingRelaysKeystrokes", func(t *testing.T) {
		m, conv := open(t)
		m, _ = update(t, m, keys("h"))
		m, _ = update(t, m, keys("i"))
		assert.Equal(t, "hi", m.composer.Value())
		assert.Equal(t, 2, conv.keystrokes)

		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Equal(t, []string{"hi"}, conv.sent)
		assert.Equal(t, []string{""}, conv.replies)
		assert.Empty(t, m.composer.Value())
	})

	t.Run("BlankNotSent", func(t *testing.T) {
		m, conv := open(t)
		m, _ = update(t, m, keys(" "))
		_, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Empty(t, conv.sent)
		assert.Zero(t, conv.keystrokes)
	})

	t.Run("Reply", func(t *testing.T) {
		m, conv := open(t)
		conv.snap.Messages = []domain.Message{
			{ID: "m1", Body: "first", Sender: domain.Sender{DisplayName: "Bob"}},
			{ID: "sys", Body: "Carol joined", Kind: domain.MessageSystem},
		}
		m, _ = update(t, m, changedMsg{})
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
		require.NotNil(t, m.replyTo)
		assert.Equal(t, "m1", m.replyTo.ID)

		m, _ = update(t, m, keys("ok"))
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		assert.Equal(t, []string{"m1"}, conv.replies)
		assert.Nil(t, m.replyTo)
	})

	t.Run("EscReturnsToSidebar", func(t *testing.T) {
		m, _ := open(t)
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
		assert.Equal(t, focusSidebar, m.focus)
	})
}

func TestInfoAddMember(t *testing.T) {
	m, _, side := newTestModel(t)
	side.On("Act", mock.Anything, mock.Anything).Return(nil).Maybe()
	side.On("AddMember", "c1", "u3").Return(nil).Once()

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(t, m, keys("i"))
	require.Equal(t, overlayInfo, m.overlay)
	assert.Contains(t, m.View(), "Carol King")

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, doneMsg{}, cmd())
	side.AssertExpectations(t)
}

func TestSessionAndToasts(t *testing.T) {
	t.Run("LoggedOutQuits", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m, cmd := update(t, m, loggedOutMsg{})
		assert.True(t, m.expired)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.Quit(), cmd())
	})

	t.Run("ToastsExpire", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m.deps.Notices.Notify(view.Notice{Level: view.LevelError, Text: "Failed to send message"})
		m, _ = update(t, m, noticesMsg{})
		require.Len(t, m.toasts, 1)
		assert.Contains(t, m.View(), "Failed to send message")

		m, _ = update(t, m, tickMsg(m.deps.Now().Add(toastTTL)))
		assert.Empty(t, m.toasts)
	})

	t.Run("SendWithoutConversation", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m.focus = focusComposer
		m.composer.SetValue("hello")
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		require.Len(t, m.toasts, 1)
		assert.Equal(t, "Select a conversation first", m.toasts[0].Text)
	})
}

func TestRender(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("RelativeTime", func(t *testing.T) {
		assert.Equal(t, "", relativeTime(time.Time{}, now))
		assert.Equal(t, "just now", relativeTime(now.Add(-20*time.Second), now))
		assert.Equal(t, "5 minutes ago", relativeTime(now.Add(-5*time.Minute), now))
		assert.Equal(t, "2 hours ago", relativeTime(now.Add(-2*time.Hour), now))
	})

	t.Run("Typers", func(t *testing.T) {
		assert.Equal(t, "", typersLine(nil))
		assert.Equal(t, "Bob is typing...", typersLine([]string{"Bob"}))
		assert.Equal(t, "Bob and Carol are typing...", typersLine([]string{"Bob", "Carol"}))
		assert.Equal(t, "3 people are typing...", typersLine([]string{"a", "b", "c"}))
	})

	t.Run("EmptyStates", func(t *testing.T) {
		ref := &domain.ConversationRef{ID: "c1", Kind: domain.KindGroup}
		assert.Contains(t, renderMessages(view.Snapshot{}, 40, now), "Select a conversation")
		assert.Contains(t, renderMessages(view.Snapshot{Ref: ref, Loading: true}, 40, now), "Loading messages")
		assert.Contains(t, renderMessages(view.Snapshot{Ref: ref}, 40, now), "No messages yet")
	})

	t.Run("ReplyMarker", func(t *testing.T) {
		out := renderMessages(view.Snapshot{
			Ref: &domain.ConversationRef{ID: "c1", Kind: domain.KindGroup},
			Messages: []domain.Message{
				{ID: "m1", Body: "lunch?", Sender: domain.Sender{DisplayName: "Bob"}, SentAt: now.Add(-time.Hour)},
				{ID: "m2", Body: "sure", Sender: domain.Sender{DisplayName: "Alice"}, ReplyTo: "m1", IsOwn: true, SentAt: now},
				{ID: "m3", Body: "late", Sender: domain.Sender{DisplayName: "Bob"}, ReplyTo: "gone", SentAt: now},
			},
		}, 60, now)
		assert.Contains(t, out, "↪ Bob: lunch?")
		assert.Contains(t, out, "1 hour ago")
		assert.Contains(t, out, "original message unavailable")
	})

	t.Run("EntryLine", func(t *testing.T) {
		e := directory.Entry{
			Ref:       domain.ConversationRef{ID: "u2", Kind: domain.KindDirect, DisplayName: "Bob Dylan"},
			IsOnline:  true,
			IsStarred: true,
			Unread:    3,
		}
		line := entryLine(e, 30)
		assert.Contains(t, line, "● Bob Dylan")
		assert.Contains(t, line, "(3)")
		assert.Contains(t, line, "★")
	})

	t.Run("Truncate", func(t *testing.T) {
		assert.Equal(t, "hello", truncate("hello", 5))
		assert.Equal(t, "hel…", truncate("hello", 4))
		assert.Equal(t, "a b", snippet("a\n  b", 10))
	})
}

// flatten runs cmd and expands batches into their messages.
func flatten(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		out = append(out, flatten(c)...)
	}
	return out
}
