package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/view"
)

func sidebarWidth(total int) int {
	return min(max(total/3, 20), 36)
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.overlay {
	case overlayHelp:
		return m.place(helpView())
	case overlayInfo:
		return m.place(m.infoView())
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), m.threadView())
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusView())
}

func (m model) place(content string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}

func (m model) sidebarView() string {
	sw := sidebarWidth(m.width)
	inner := sw - 4
	height := max(m.height-3, 3)

	var b strings.Builder
	b.WriteString(titleStyle.Render("zChat"))
	b.WriteString("\n")

	names := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t == m.tab {
			names = append(names, activeTabStyle.Render(string(t)))
		} else {
			names = append(names, mutedStyle.Render(string(t)))
		}
	}
	b.WriteString(strings.Join(names, " "))
	b.WriteString("\n")

	if m.focus == focusSearch || m.search.Value() != "" {
		b.WriteString(m.search.View())
	} else {
		b.WriteString(mutedStyle.Render("/ to search"))
	}
	b.WriteString("\n\n")

	visible := max(height-5, 1)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	if len(m.entries) == 0 {
		b.WriteString(mutedStyle.Render("No chats"))
	}
	for i := start; i < len(m.entries) && i < start+visible; i++ {
		line := entryLine(m.entries[i], inner-2)
		if i == m.cursor {
			b.WriteString(selectedItemStyle.Render(line))
		} else {
			b.WriteString(itemStyle.Render(line))
		}
		b.WriteString("\n")
	}

	style := sidebarStyle.Width(sw - 2).Height(height)
	if m.focus != focusComposer {
		style = style.BorderForeground(activeBorder)
	} else {
		style = style.BorderForeground(mutedColor)
	}
	return style.Render(b.String())
}

// entryLine renders one sidebar row: kind marker, name, flags and unread badge.
func entryLine(e directory.Entry, width int) string {
	marker := "#"
	if e.Ref.Kind == domain.KindDirect {
		marker = "○"
		if e.IsOnline {
			marker = "●"
		}
	}

	var suffix string
	if e.IsStarred {
		suffix += " ★"
	}
	if e.IsMuted {
		suffix += " ~"
	}
	if e.Unread > 0 {
		suffix += fmt.Sprintf(" (%d)", e.Unread)
	}

	name := truncate(e.Ref.DisplayName, max(width-len([]rune(suffix))-2, 1))
	line := marker + " " + name
	if e.Unread > 0 {
		return line + errorStyle.Render(suffix)
	}
	return line + mutedStyle.Render(suffix)
}

func (m model) threadView() string {
	tw := max(m.width-sidebarWidth(m.width), 12)
	inner := tw - 2

	title := "No conversation"
	if ref := m.snap.Ref; ref != nil {
		if ref.IsGroup() {
			title = "# " + ref.DisplayName
			if c, ok := m.deps.Sidebar.Channel(ref.ID); ok && c.Description != "" {
				title += mutedStyle.Render("  " + truncate(c.Description, max(inner-len(title)-4, 1)))
			}
		} else {
			title = "@ " + ref.DisplayName
			if u, ok := m.deps.Sidebar.User(ref.ID); ok {
				title += mutedStyle.Render("  " + presence(u, m.deps.Now()))
			}
		}
	}
	header := headerStyle.Width(inner).Render(title)

	typing := mutedStyle.Render(typersLine(m.snap.Typers))
	reply := ""
	if m.replyTo != nil {
		reply = mutedStyle.Render("replying to " + m.replyTo.Sender.DisplayName + ": " + snippet(m.replyTo.Body, max(inner-20, 8)) + " (esc to cancel)")
	}
	footer := footerStyle.Width(inner).Render(m.composer.View())

	content := lipgloss.JoinVertical(lipgloss.Left, header, m.thread.View(), typing, reply, footer)

	style := threadStyle.Width(inner)
	if m.focus == focusComposer {
		style = style.BorderForeground(activeBorder)
	} else {
		style = style.BorderForeground(mutedColor)
	}
	return style.Render(content)
}

// renderMessages lays out the thread for the viewport.
func renderMessages(snap view.Snapshot, width int, now time.Time) string {
	switch {
	case snap.Ref == nil:
		return mutedStyle.Render("Select a conversation to start chatting")
	case snap.Loading && len(snap.Messages) == 0:
		return mutedStyle.Render("Loading messages...")
	case len(snap.Messages) == 0:
		return mutedStyle.Render("No messages yet. Say hello!")
	}

	byID := make(map[string]domain.Message, len(snap.Messages))
	for _, msg := range snap.Messages {
		byID[msg.ID] = msg
	}

	blocks := make([]string, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		blocks = append(blocks, renderMessage(msg, byID, width, now))
	}
	return strings.Join(blocks, "\n\n")
}

func renderMessage(msg domain.Message, byID map[string]domain.Message, width int, now time.Time) string {
	if msg.IsSystem() {
		return systemStyle.Width(max(width, 1)).Align(lipgloss.Center).Render(msg.Body)
	}

	name := otherNameStyle.Render(msg.Sender.DisplayName)
	if msg.IsOwn {
		name = ownNameStyle.Render(msg.Sender.DisplayName)
	}

	var b strings.Builder
	b.WriteString(name)
	if ts := relativeTime(msg.SentAt, now); ts != "" {
		b.WriteString(" " + mutedStyle.Render(ts))
	}
	b.WriteString("\n")

	if msg.ReplyTo != "" {
		quote := "↪ original message unavailable"
		if parent, ok := byID[msg.ReplyTo]; ok {
			quote = "↪ " + parent.Sender.DisplayName + ": " + snippet(parent.Body, 40)
		}
		b.WriteString(mutedStyle.Render(quote))
		b.WriteString("\n")
	}

	b.WriteString(lipgloss.NewStyle().Width(max(width, 1)).Render(msg.Body))
	return b.String()
}

func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if d := now.Sub(t); d < time.Minute && d > -time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func presence(u domain.User, now time.Time) string {
	if u.IsOnline {
		return "online"
	}
	if u.LastSeen.IsZero() {
		return "offline"
	}
	return "last seen " + relativeTime(u.LastSeen, now)
}

func typersLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return fmt.Sprintf("%d people are typing...", len(names))
	}
}

func (m model) statusView() string {
	left := ""
	if m.deps.Status != nil {
		s := m.deps.Status()
		switch {
		case s.Connected:
			left = successStyle.Render("● connected")
		case s.Attempt > 0:
			left = mutedStyle.Render(fmt.Sprintf("○ reconnecting (attempt %d)", s.Attempt))
		default:
			left = errorStyle.Render("○ offline")
		}
	}

	if n := len(m.toasts); n > 0 {
		t := m.toasts[n-1]
		switch t.Level {
		case view.LevelError:
			left += "  " + errorStyle.Render(t.Text)
		case view.LevelSuccess:
			left += "  " + successStyle.Render(t.Text)
		default:
			left += "  " + t.Text
		}
	}

	hint := mutedStyle.Render("? help")
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(hint), 1)
	return left + strings.Repeat(" ", gap) + hint
}

var helpKeys = [][2]string{
	{"j/k, ↑/↓", "move in the chat list"},
	{"enter", "open chat"},
	{"tab", "switch tab: all, archived, starred"},
	{"/", "search chats"},
	{"u / a / s / m", "mark read, archive, star, mute"},
	{"r", "reload chats"},
	{"c", "focus the composer"},
	{"i, ctrl+o", "conversation info"},
	{"ctrl+r", "reply to the last message"},
	{"pgup/pgdown", "scroll messages"},
	{"esc", "back"},
	{"q, ctrl+c", "quit"},
}

func helpView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Keys"))
	b.WriteString("\n\n")
	for _, k := range helpKeys {
		b.WriteString(fmt.Sprintf("%-16s %s\n", k[0], mutedStyle.Render(k[1])))
	}
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("press any key to close"))
	return b.String()
}

func (m model) infoView() string {
	ref := m.snap.Ref
	if ref == nil {
		return ""
	}

	var b strings.Builder
	if !ref.IsGroup() {
		b.WriteString(titleStyle.Render("@ " + ref.DisplayName))
		b.WriteString("\n\n")
		if u, ok := m.deps.Sidebar.User(ref.ID); ok {
			b.WriteString(presence(u, m.deps.Now()))
			if u.Bio != "" {
				b.WriteString("\n\n" + u.Bio)
			}
		}
		return b.String()
	}

	b.WriteString(titleStyle.Render("# " + ref.DisplayName))
	b.WriteString("\n")
	c, ok := m.deps.Sidebar.Channel(ref.ID)
	if ok && c.Description != "" {
		b.WriteString(mutedStyle.Render(c.Description))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("\nMembers (%d)\n", len(c.Members)))
	for _, mem := range c.Members {
		dot := "○"
		if mem.IsOnline {
			dot = "●"
		}
		line := dot + " " + mem.Name
		if mem.Role != "" && mem.Role != "member" {
			line += mutedStyle.Render(" " + mem.Role)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\nAdd member\n")
	if len(m.candidates) == 0 {
		b.WriteString(mutedStyle.Render("everyone is already here"))
	}
	for i, u := range m.candidates {
		if i == m.infoCursor {
			b.WriteString(selectedItemStyle.Render(u.Name))
		} else {
			b.WriteString(itemStyle.Render(u.Name))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func snippet(s string, n int) string {
	return truncate(strings.Join(strings.Fields(s), " "), n)
}
