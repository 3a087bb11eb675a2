// Package directory holds the sidebar listing of channels and direct
// conversations.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"client_go/internal/api"
	"client_go/internal/bus"
	"client_go/internal/domain"
	"client_go/internal/view"
)

// Backend is the part of the REST API the sidebar needs.
type Backend interface {
	Me(ctx context.Context) (*domain.User, error)
	Channels(ctx context.Context) ([]domain.Channel, error)
	Users(ctx context.Context) ([]domain.User, error)
	Act(ctx context.Context, ref domain.ConversationRef, action api.Action) error
	AddMember(ctx context.Context, channelID, userID string) error
}

// UserCache receives the current user after a refresh.
type UserCache interface {
	SetUser(domain.User)
}

type Tab string

const (
	TabAll      Tab = "all"
	TabArchived Tab = "archived"
	TabStarred  Tab = "starred"
)

func ParseTab(s string) (Tab, error) {
	switch t := Tab(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TabAll:
		return TabAll, nil
	case TabArchived, TabStarred:
		return t, nil
	default:
		return "", fmt.Errorf("tab %q: %w", s, domain.ErrInvalidInput)
	}
}

// Entry is one sidebar row.
type Entry struct {
	Ref        domain.ConversationRef
	Unread     int
	IsOnline   bool
	IsArchived bool
	IsStarred  bool
	IsMuted    bool
	Detail     string
}

type Directory struct {
	backend  Backend
	cache    UserCache
	notifier view.Notifier
	members  *bus.Bus[domain.MemberAdded]
	log      *zap.Logger

	mu       sync.RWMutex
	me       *domain.User
	channels []domain.Channel
	users    []domain.User
}

func New(backend Backend, cache UserCache, notifier view.Notifier, members *bus.Bus[domain.MemberAdded], log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = view.NotifierFunc(func(view.Notice) {})
	}
	return &Directory{backend: backend, cache: cache, notifier: notifier, members: members, log: log}
}

// Refresh loads the current user, channels and users concurrently.
func (d *Directory) Refresh(ctx context.Context) error {
	var (
		me       *domain.User
		channels []domain.Channel
		users    []domain.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := d.backend.Me(gctx)
		me = u
		return err
	})
	g.Go(func() error {
		c, err := d.backend.Channels(gctx)
		channels = c
		return err
	})
	g.Go(func() error {
		u, err := d.backend.Users(gctx)
		users = u
		return err
	})

	if err := g.Wait(); err != nil {
		d.log.Warn("directory_refresh_failed", zap.Error(err))
		if !errors.Is(err, domain.ErrUnauthorized) {
			d.notifier.Notify(view.Notice{Level: view.LevelError, Text: "Failed to load chats", Err: err})
		}
		return err
	}

	d.mu.Lock()
	d.me = me
	d.channels = channels
	d.users = users
	d.mu.Unlock()

	if d.cache != nil && me != nil {
		d.cache.SetUser(*me)
	}
	d.log.Debug("directory_refreshed", zap.Int("channels", len(channels)), zap.Int("users", len(users)))
	return nil
}

// Me returns the user loaded by the last refresh.
func (d *Directory) Me() (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.me == nil {
		return domain.User{}, false
	}
	return *d.me, true
}

func (d *Directory) selfID() string {
	if d.me == nil {
		return ""
	}
	return d.me.ID
}

func matchesTab(tab Tab, archived, starred bool) bool {
	switch tab {
	case TabArchived:
		return archived
	case TabStarred:
		return starred
	default:
		return true
	}
}

func channelEntry(c domain.Channel) Entry {
	return Entry{
		Ref:        c.Ref(),
		Unread:     c.Unread,
		IsArchived: c.IsArchived,
		IsStarred:  c.IsStarred,
		IsMuted:    c.IsMuted,
		Detail:     fmt.Sprintf("%d members", len(c.Members)),
	}
}

func userEntry(u domain.User) Entry {
	detail := "offline"
	if u.IsOnline {
		detail = "online"
	}
	return Entry{
		Ref:        u.Ref(),
		Unread:     u.Unread,
		IsOnline:   u.IsOnline,
		IsArchived: u.IsArchived,
		IsStarred:  u.IsStarred,
		IsMuted:    u.IsMuted,
		Detail:     detail,
	}
}

// Entries lists channels, then direct conversations, filtered by tab. The
// current user never appears as a direct conversation.
func (d *Directory) Entries(tab Tab) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	self := d.selfID()
	out := make([]Entry, 0, len(d.channels)+len(d.users))
	for _, c := range d.channels {
		if matchesTab(tab, c.IsArchived, c.IsStarred) {
			out = append(out, channelEntry(c))
		}
	}
	for _, u := range d.users {
		if u.ID == self {
			continue
		}
		if matchesTab(tab, u.IsArchived, u.IsStarred) {
			out = append(out, userEntry(u))
		}
	}
	return out
}

// Search matches names case-insensitively across both sections.
func (d *Directory) Search(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	defer d.mu.RUnlock()

	self := d.selfID()
	var out []Entry
	for _, c := range d.channels {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, channelEntry(c))
		}
	}
	for _, u := range d.users {
		if u.ID != self && strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, userEntry(u))
		}
	}
	return out
}

// Channel returns a loaded channel for the info pane.
func (d *Directory) Channel(id string) (domain.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.channels {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Channel{}, false
}

// User returns a loaded user.
func (d *Directory) User(id string) (domain.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// Resolve finds the sidebar entry for id, preferring channels.
func (d *Directory) Resolve(id string) (domain.ConversationRef, bool) {
	if c, ok := d.Channel(id); ok {
		return c.Ref(), true
	}
	if u, ok := d.User(id); ok {
		return u.Ref(), true
	}
	return domain.ConversationRef{}, false
}

var actionText = map[api.Action]string{
	api.ActionRead:    "marked as read",
	api.ActionArchive: "archived",
	api.ActionStar:    "starred",
	api.ActionMute:    "muted",
}

// Act applies a sidebar action and mirrors its effect locally.
func (d *Directory) Act(ctx context.Context, ref domain.ConversationRef, action api.Action) error {
	if err := d.backend.Act(ctx, ref, action); err != nil {
		d.log.Warn("directory_action_failed", zap.String("conversation_id", ref.ID), zap.String("action", string(action)), zap.Error(err))
		text := fmt.Sprintf("Failed to %s %s", action, ref.DisplayName)
		var se *api.StatusError
		if errors.As(err, &se) && se.Message != "" {
			text = se.Message
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			d.notifier.Notify(view.Notice{Level: view.LevelError, Text: text, Err: err})
		}
		return err
	}

	d.mu.Lock()
	if ref.Kind == domain.KindDirect {
		for i := range d.users {
			if d.users[i].ID == ref.ID {
				u := &d.users[i]
				applyFlags(action, &u.Unread, &u.IsArchived, &u.IsStarred, &u.IsMuted)
			}
		}
	} else {
		for i := range d.channels {
			if d.channels[i].ID == ref.ID {
				c := &d.channels[i]
				applyFlags(action, &c.Unread, &c.IsArchived, &c.IsStarred, &c.IsMuted)
			}
		}
	}
	d.mu.Unlock()

	d.notifier.Notify(view.Notice{Level: view.LevelSuccess, Text: ref.DisplayName + " " + actionText[action]})
	return nil
}

func applyFlags(action api.Action, unread *int, archived, starred, muted *bool) {
	switch action {
	case api.ActionRead:
		*unread = 0
	case api.ActionArchive:
		*archived = !*archived
	case api.ActionStar:
		*starred = !*starred
	case api.ActionMute:
		*muted = !*muted
	}
}

// AddMember adds user to a channel and announces it on the member bus.
func (d *Directory) AddMember(ctx context.Context, channelID string, user domain.User) error {
	if err := d.backend.AddMember(ctx, channelID, user.ID); err != nil {
		d.log.Warn("add_member_failed", zap.String("channel_id", channelID), zap.String("user_id", user.ID), zap.Error(err))
		if !errors.Is(err, domain.ErrUnauthorized) {
			d.notifier.Notify(view.Notice{Level: view.LevelError, Text: "Failed to add " + user.Name, Err: err})
		}
		return err
	}

	added := domain.Member{ID: user.ID, Name: user.Name, Avatar: user.Avatar, IsOnline: user.IsOnline, Role: "member"}

	d.mu.Lock()
	var by domain.Member
	if d.me != nil {
		by = domain.Member{ID: d.me.ID, Name: d.me.Name, Avatar: d.me.Avatar}
	}
	for i := range d.channels {
		if d.channels[i].ID == channelID {
			d.channels[i].Members = append(d.channels[i].Members, added)
		}
	}
	d.mu.Unlock()

	if d.members != nil {
		d.members.Publish(domain.MemberAdded{Conversation: channelID, AddedUser: added, AddedBy: by})
	}
	d.notifier.Notify(view.Notice{Level: view.LevelSuccess, Text: user.Name + " added"})
	return nil
}

// Observe counts unread messages for conversations other than activeID.
func (d *Directory) Observe(ev domain.Event, activeID string) {
	nm, ok := ev.(domain.NewMessage)
	if !ok || nm.Conversation == activeID {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if nm.Message.Sender.ID != "" && nm.Message.Sender.ID == d.selfID() {
		return
	}
	for i := range d.channels {
		if d.channels[i].ID == nm.Conversation {
			d.channels[i].Unread++
			return
		}
	}
	for i := range d.users {
		if d.users[i].ID == nm.Conversation {
			d.users[i].Unread++
			return
		}
	}
}

// Candidates lists users that are not yet members of channelID, by name.
func (d *Directory) Candidates(channelID string) []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	in := make(map[string]struct{})
	for _, c := range d.channels {
		if c.ID == channelID {
			for _, m := range c.Members {
				in[m.ID] = struct{}{}
			}
		}
	}
	var out []domain.User
	for _, u := range d.users {
		if _, ok := in[u.ID]; !ok {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
