package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"client_go/internal/api"
	"client_go/internal/bus"
	"client_go/internal/directory"
	"client_go/internal/domain"
	"client_go/internal/view"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Me(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockBackend) Channels(ctx context.Context) ([]domain.Channel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Channel), args.Error(1)
}

func (m *MockBackend) Users(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockBackend) Act(ctx context.Context, ref domain.ConversationRef, action api.Action) error {
	return m.Called(ctx, ref.ID, action).Error(0)
}

func (m *MockBackend) AddMember(ctx context.Context, channelID, userID string) error {
	return m.Called(ctx, channelID, userID).Error(0)
}

type userCache struct{ user domain.User }

func (c *userCache) SetUser(u domain.User) { c.user = u }

func loaded(t *testing.T) (*directory.Directory, *MockBackend, *view.Notices, *userCache, *bus.Bus[domain.MemberAdded]) {
	t.Helper()
	backend := new(MockBackend)
	backend.On("Me", mock.Anything).Return(&domain.User{ID: "u1", Name: "Alice"}, nil)
	backend.On("Channels", mock.Anything).Return([]domain.Channel{
		{ID: "c1", Name: "general", Members: []domain.Member{{ID: "u1", Name: "Alice"}}},
		{ID: "c2", Name: "Random", IsStarred: true},
		{ID: "c3", Name: "old", IsArchived: true},
	}, nil)
	backend.On("Users", mock.Anything).Return([]domain.User{
		{ID: "u1", Name: "Alice"},
		{ID: "u2", Name: "Bob", IsOnline: true, IsStarred: true},
		{ID: "u3", Name: "Carol", IsArchived: true},
	}, nil)

	notices := view.NewNotices(8)
	cache := &userCache{}
	members := bus.New[domain.MemberAdded]()
	d := directory.New(backend, cache, notices, members, nil)
	require.NoError(t, d.Refresh(context.Background()))
	return d, backend, notices, cache, members
}

func ids(entries []directory.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Ref.ID
	}
	return out
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()

	t.Run("RefreshCachesUser", func(t *testing.T) {
		_, _, _, cache, _ := loaded(t)
		assert.Equal(t, "u1", cache.user.ID)
	})

	t.Run("TabsExcludeSelf", func(t *testing.T) {
		d, _, _, _, _ := loaded(t)
		assert.Equal(t, []string{"c1", "c2", "c3", "u2", "u3"}, ids(d.Entries(directory.TabAll)))
		assert.Equal(t, []string{"c3", "u3"}, ids(d.Entries(directory.TabArchived)))
		assert.Equal(t, []string{"c2", "u2"}, ids(d.Entries(directory.TabStarred)))

		entries := d.Entries(directory.TabAll)
		assert.Equal(t, domain.KindGroup, entries[0].Ref.Kind)
		assert.Equal(t, domain.KindDirect, entries[3].Ref.Kind)
	})

	t.Run("SearchCaseInsensitive", func(t *testing.T) {
		d, _, _, _, _ := loaded(t)
		assert.Equal(t, []string{"c2"}, ids(d.Search("RAN")))
		assert.Equal(t, []string{"u2"}, ids(d.Search("bo")))
		assert.Empty(t, d.Search("alice"))
	})

	t.Run("RefreshFailureNotifies", func(t *testing.T) {
		backend := new(MockBackend)
		backend.On("Me", mock.Anything).Return(&domain.User{ID: "u1"}, nil)
		backend.On("Channels", mock.Anything).Return(nil, errors.New("boom"))
		backend.On("Users", mock.Anything).Return([]domain.User{}, nil)
		notices := view.NewNotices(4)

		d := directory.New(backend, nil, notices, nil, nil)
		assert.Error(t, d.Refresh(ctx))
		assert.Len(t, notices.Drain(), 1)
		assert.Empty(t, d.Entries(directory.TabAll))
	})

	t.Run("RefreshUnauthorizedIsSilent", func(t *testing.T) {
		backend := new(MockBackend)
		backend.On("Me", mock.Anything).Return(nil, domain.ErrUnauthorized)
		backend.On("Channels", mock.Anything).Return([]domain.Channel{}, nil)
		backend.On("Users", mock.Anything).Return([]domain.User{}, nil)
		notices := view.NewNotices(4)

		d := directory.New(backend, nil, notices, nil, nil)
		assert.ErrorIs(t, d.Refresh(ctx), domain.ErrUnauthorized)
		assert.Empty(t, notices.Drain())
	})

	t.Run("ActUpdatesFlags", func(t *testing.T) {
		d, backend, notices, _, _ := loaded(t)
		backend.On("Act", mock.Anything, "c1", api.ActionStar).Return(nil)
		backend.On("Act", mock.Anything, "u2", api.ActionArchive).Return(nil)

		require.NoError(t, d.Act(ctx, domain.ConversationRef{ID: "c1", Kind: domain.KindGroup, DisplayName: "general"}, api.ActionStar))
		require.NoError(t, d.Act(ctx, domain.ConversationRef{ID: "u2", Kind: domain.KindDirect, DisplayName: "Bob"}, api.ActionArchive))

		assert.Equal(t, []string{"c1", "c2", "u2"}, ids(d.Entries(directory.TabStarred)))
		assert.Equal(t, []string{"c3", "u2", "u3"}, ids(d.Entries(directory.TabArchived)))

		got := notices.Drain()
		require.Len(t, got, 2)
		assert.Equal(t, "general starred", got[0].Text)
		assert.Equal(t, view.LevelSuccess, got[0].Level)
	})

	t.Run("ActFailureUsesServerMessage", func(t *testing.T) {
		d, backend, notices, _, _ := loaded(t)
		backend.On("Act", mock.Anything, "c1", api.ActionMute).Return(&api.StatusError{Code: 500, Message: "cannot mute"})

		assert.Error(t, d.Act(ctx, domain.ConversationRef{ID: "c1", Kind: domain.KindGroup}, api.ActionMute))
		got := notices.Drain()
		require.Len(t, got, 1)
		assert.Equal(t, "cannot mute", got[0].Text)
	})

	t.Run("ObserveBumpsUnread", func(t *testing.T) {
		d, backend, _, _, _ := loaded(t)
		d.Observe(domain.NewMessage{Conversation: "c2", Message: domain.Message{Sender: domain.Sender{ID: "u2"}}}, "c1")
		d.Observe(domain.NewMessage{Conversation: "c1", Message: domain.Message{Sender: domain.Sender{ID: "u2"}}}, "c1")
		d.Observe(domain.NewMessage{Conversation: "u2", Message: domain.Message{Sender: domain.Sender{ID: "u2"}}}, "c1")
		d.Observe(domain.NewMessage{Conversation: "c2", Message: domain.Message{Sender: domain.Sender{ID: "u1"}}}, "c1")

		entries := d.Entries(directory.TabAll)
		unread := map[string]int{}
		for _, e := range entries {
			unread[e.Ref.ID] = e.Unread
		}
		assert.Equal(t, 1, unread["c2"])
		assert.Equal(t, 0, unread["c1"])
		assert.Equal(t, 1, unread["u2"])

		backend.On("Act", mock.Anything, "c2", api.ActionRead).Return(nil)
		require.NoError(t, d.Act(ctx, domain.ConversationRef{ID: "c2", Kind: domain.KindGroup}, api.ActionRead))
		c, _ := d.Channel("c2")
		assert.Equal(t, 0, c.Unread)
	})

	t.Run("AddMemberPublishes", func(t *testing.T) {
		d, backend, _, _, members := loaded(t)
		backend.On("AddMember", mock.Anything, "c1", "u2").Return(nil)

		var got []domain.MemberAdded
		sub := members.Subscribe(func(ev domain.MemberAdded) { got = append(got, ev) })
		defer sub.Close()

		require.NoError(t, d.AddMember(ctx, "c1", domain.User{ID: "u2", Name: "Bob"}))
		require.Len(t, got, 1)
		assert.Equal(t, "c1", got[0].Conversation)
		assert.Equal(t, "Bob", got[0].AddedUser.Name)
		assert.Equal(t, "Alice", got[0].AddedBy.Name)

		c, _ := d.Channel("c1")
		assert.Len(t, c.Members, 2)
		for _, u := range d.Candidates("c1") {
			assert.NotEqual(t, "u2", u.ID)
		}
	})

	t.Run("AddMemberFailureDoesNotPublish", func(t *testing.T) {
		d, backend, notices, _, members := loaded(t)
		backend.On("AddMember", mock.Anything, "c1", "u3").Return(domain.ErrForbidden)

		published := 0
		sub := members.Subscribe(func(domain.MemberAdded) { published++ })
		defer sub.Close()

		assert.Error(t, d.AddMember(ctx, "c1", domain.User{ID: "u3", Name: "Carol"}))
		assert.Equal(t, 0, published)
		assert.Len(t, notices.Drain(), 1)
	})
}

func TestParseTab(t *testing.T) {
	tab, err := directory.ParseTab("Starred")
	require.NoError(t, err)
	assert.Equal(t, directory.TabStarred, tab)

	tab, err = directory.ParseTab("")
	require.NoError(t, err)
	assert.Equal(t, directory.TabAll, tab)

	_, err = directory.ParseTab("pinned")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
