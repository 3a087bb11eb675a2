package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"client_go/internal/api"
	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/view"
)

const maxMessageRunes = 5000

var tabs = []directory.Tab{directory.TabAll, directory.TabArchived, directory.TabStarred}

type focus int

const (
	focusSidebar focus = iota
	focusSearch
	focusComposer
)

type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayInfo
)

type toast struct {
	view.Notice
	until time.Time
}

type model struct {
	ctx  context.Context
	deps Deps

	width, height int
	focus         focus
	overlay       overlay

	tab     directory.Tab
	entries []directory.Entry
	cursor  int
	search  textinput.Model

	thread   viewport.Model
	composer textinput.Model
	snap     view.Snapshot
	lastGen  uint64
	replyTo  *domain.Message

	candidates []domain.User
	infoCursor int

	toasts  []toast
	expired bool
}

func newModel(ctx context.Context, d Deps) model {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "Search chats"
	search.CharLimit = 64

	composer := textinput.New()
	composer.Prompt = "> "
	composer.Placeholder = "Type a message..."
	composer.CharLimit = maxMessageRunes

	m := model{
		ctx:      ctx,
		deps:     d,
		tab:      directory.TabAll,
		search:   search,
		thread:   viewport.New(0, 0),
		composer: composer,
	}
	m.reloadEntries()
	return m
}

func (m model) Init() tea.Cmd {
	var notices <-chan struct{}
	if m.deps.Notices != nil {
		notices = m.deps.Notices.C()
	}
	return tea.Batch(
		m.refresh(),
		wait(m.ctx, m.deps.Conversation.Changes(), changedMsg{}),
		wait(m.ctx, notices, noticesMsg{}),
		wait(m.ctx, m.deps.LoggedOut, loggedOutMsg{}),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.renderThread()
		return m, nil

	case changedMsg:
		m.snap = m.deps.Conversation.Snapshot()
		m.renderThread()
		return m, wait(m.ctx, m.deps.Conversation.Changes(), changedMsg{})

	case noticesMsg:
		m.pushToasts(m.deps.Notices.Drain())
		return m, wait(m.ctx, m.deps.Notices.C(), noticesMsg{})

	case loggedOutMsg:
		m.expired = true
		return m, tea.Quit

	case tickMsg:
		m.expireToasts(time.Time(msg))
		m.snap = m.deps.Conversation.Snapshot()
		m.reloadEntries()
		return m, tick()

	case doneMsg:
		if msg.err != nil {
			m.deps.Log.Debug("tui_command_failed", zap.Error(msg.err))
		}
		m.reloadEntries()
		if m.overlay == overlayInfo {
			m.loadCandidates()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.overlay {
	case overlayHelp:
		m.overlay = overlayNone
		return m, nil
	case overlayInfo:
		return m.infoKey(msg)
	}

	switch m.focus {
	case focusSearch:
		return m.searchKey(msg)
	case focusComposer:
		return m.composerKey(msg)
	}
	return m.sidebarKey(msg)
}

func (m model) sidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "?":
		m.overlay = overlayHelp
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "tab":
		m.tab = nextTab(m.tab)
		m.cursor = 0
		m.reloadEntries()
	case "/":
		m.focus = focusSearch
		return m, m.search.Focus()
	case "enter", "l", "right":
		if e, ok := m.selected(); ok {
			return m.open(e)
		}
	case "c":
		if m.snap.Ref != nil {
			m.focus = focusComposer
			return m, m.composer.Focus()
		}
	case "i":
		m.openInfo()
	case "r":
		return m, m.refresh()
	case "u":
		return m, m.actSelected(api.ActionRead)
	case "a":
		return m, m.actSelected(api.ActionArchive)
	case "s":
		return m, m.actSelected(api.ActionStar)
	case "m":
		return m, m.actSelected(api.ActionMute)
	}
	return m, nil
}

func (m model) searchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Reset()
		m.search.Blur()
		m.focus = focusSidebar
		m.cursor = 0
		m.reloadEntries()
		return m, nil
	case "enter":
		m.search.Blur()
		m.focus = focusSidebar
		if e, ok := m.selected(); ok {
			return m.open(e)
		}
		return m, nil
	case "up":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.cursor = 0
	m.reloadEntries()
	return m, cmd
}

func (m model) composerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.replyTo != nil {
			m.replyTo = nil
			return m, nil
		}
		m.composer.Blur()
		m.focus = focusSidebar
		return m, nil
	case "enter":
		return m.send()
	case "ctrl+r":
		if last, ok := lastReplyable(m.snap.Messages); ok {
			m.replyTo = &last
		}
		return m, nil
	case "ctrl+o":
		m.openInfo()
		return m, nil
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.thread, cmd = m.thread.Update(msg)
		return m, cmd
	}

	before := m.composer.Value()
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	if m.composer.Value() != before && strings.TrimSpace(m.composer.Value()) != "" {
		m.deps.Conversation.Keystroke(m.ctx)
	}
	return m, cmd
}

func (m model) send() (tea.Model, tea.Cmd) {
	body := m.composer.Value()
	if strings.TrimSpace(body) == "" {
		return m, nil
	}
	replyTo := ""
	if m.replyTo != nil {
		replyTo = m.replyTo.ID
	}

	if _, err := m.deps.Conversation.Send(m.ctx, body, replyTo); err != nil {
		text := "Failed to send message"
		if errors.Is(err, domain.ErrNoActiveConversation) {
			text = "Select a conversation first"
		}
		m.pushToasts([]view.Notice{{Level: view.LevelError, Text: text, Err: err}})
		return m, nil
	}
	m.composer.Reset()
	m.replyTo = nil
	return m, nil
}

func (m model) infoKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "i", "ctrl+o":
		m.overlay = overlayNone
	case "up", "k":
		if m.infoCursor > 0 {
			m.infoCursor--
		}
	case "down", "j":
		if m.infoCursor < len(m.candidates)-1 {
			m.infoCursor++
		}
	case "enter":
		if m.snap.Ref != nil && m.snap.Ref.IsGroup() && m.infoCursor < len(m.candidates) {
			return m, m.addMember(m.snap.Ref.ID, m.candidates[m.infoCursor])
		}
	}
	return m, nil
}

func (m model) open(e directory.Entry) (tea.Model, tea.Cmd) {
	ref := e.Ref
	m.deps.Conversation.Select(m.ctx, &ref)
	m.snap = m.deps.Conversation.Snapshot()
	m.replyTo = nil
	m.composer.Reset()
	m.focus = focusComposer
	m.renderThread()

	cmds := []tea.Cmd{m.composer.Focus()}
	if e.Unread > 0 {
		cmds = append(cmds, m.act(ref, api.ActionRead))
	}
	return m, tea.Batch(cmds...)
}

func (m *model) openInfo() {
	if m.snap.Ref == nil {
		return
	}
	m.overlay = overlayInfo
	m.infoCursor = 0
	m.loadCandidates()
}

func (m *model) loadCandidates() {
	m.candidates = nil
	if m.snap.Ref != nil && m.snap.Ref.IsGroup() {
		m.candidates = m.deps.Sidebar.Candidates(m.snap.Ref.ID)
	}
	if m.infoCursor >= len(m.candidates) {
		m.infoCursor = max(len(m.candidates)-1, 0)
	}
}

func (m model) actSelected(action api.Action) tea.Cmd {
	e, ok := m.selected()
	if !ok {
		return nil
	}
	return m.act(e.Ref, action)
}

func (m model) selected() (directory.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return directory.Entry{}, false
	}
	return m.entries[m.cursor], true
}

func (m *model) reloadEntries() {
	if q := m.search.Value(); strings.TrimSpace(q) != "" {
		m.entries = m.deps.Sidebar.Search(q)
	} else {
		m.entries = m.deps.Sidebar.Entries(m.tab)
	}
	if m.cursor >= len(m.entries) {
		m.cursor = max(len(m.entries)-1, 0)
	}
}

func (m *model) pushToasts(notices []view.Notice) {
	until := m.deps.Now().Add(toastTTL)
	for _, n := range notices {
		m.toasts = append(m.toasts, toast{Notice: n, until: until})
	}
	if len(m.toasts) > maxToasts {
		m.toasts = m.toasts[len(m.toasts)-maxToasts:]
	}
}

func (m *model) expireToasts(now time.Time) {
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if now.Before(t.until) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

func (m *model) layout() {
	sw := sidebarWidth(m.width)
	inner := max(m.width-sw-2, 10)
	m.thread.Width = inner
	m.thread.Height = max(m.height-9, 1)
	m.composer.Width = max(inner-4, 1)
	m.search.Width = max(sw-8, 1)
}

func (m *model) renderThread() {
	atBottom := m.thread.AtBottom()
	m.thread.SetContent(renderMessages(m.snap, m.thread.Width, m.deps.Now()))
	if atBottom || m.snap.Generation != m.lastGen {
		m.thread.GotoBottom()
	}
	m.lastGen = m.snap.Generation
}

func nextTab(t directory.Tab) directory.Tab {
	for i, tab := range tabs {
		if tab == t {
			return tabs[(i+1)%len(tabs)]
		}
	}
	return directory.TabAll
}

func lastReplyable(msgs []domain.Message) (domain.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].IsSystem() {
			return msgs[i], true
		}
	}
	return domain.Message{}, false
}
