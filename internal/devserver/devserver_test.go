package devserver_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"client_go/internal/api"
	"client_go/internal/config"
	"client_go/internal/devserver"
	"client_go/internal/domain"
	"client_go/internal/push"
	"client_go/internal/security"
	"client_go/internal/session"
	"client_go/internal/store"
	"client_go/internal/view"
)

type env struct {
	srv *devserver.Server
	ts  *httptest.Server
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "dev.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	cfg := &config.DevServer{
		JWTSecret:             "test-secret",
		AccessTokenMinutes:    60,
		EncryptKey:            "test-key",
		MaxMessagesPerChannel: 100,
		PasswordCost:          bcrypt.MinCost,
	}
	srv, err := devserver.New(cfg, st, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, srv.Seed(ctx))
	require.NoError(t, srv.Seed(ctx), "seeding twice is a no-op")

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &env{srv: srv, ts: ts}
}

func (e *env) apiURL() string { return e.ts.URL + "/api" }

func (e *env) wsURL() string { return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws" }

// login returns an authenticated client and its session.
func (e *env) login(t *testing.T, username string) (*api.Client, *session.Session) {
	t.Helper()
	ctx := context.Background()

	res, err := api.New(e.apiURL(), nil, 5*time.Second, nil).Login(ctx, username, devserver.SeedPassword)
	require.NoError(t, err)
	sess, err := session.New(res.AccessToken)
	require.NoError(t, err)
	sess.SetUser(res.User)
	return api.New(e.apiURL(), sess, 5*time.Second, nil), sess
}

func channelByName(t *testing.T, c *api.Client, name string) domain.Channel {
	t.Helper()
	chans, err := c.Channels(context.Background())
	require.NoError(t, err)
	for _, ch := range chans {
		if ch.Name == name {
			return ch
		}
	}
	t.Fatalf("channel %q not found", name)
	return domain.Channel{}
}

type events struct {
	mu  sync.Mutex
	got []domain.Event
}

func (e *events) add(ev domain.Event) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) all() []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Event(nil), e.got...)
}

// connect starts a push client and waits until it is connected.
func (e *env) connect(t *testing.T, sess *session.Session) *push.Client {
	t.Helper()
	connected := make(chan struct{})
	var once sync.Once
	pc := push.New(e.wsURL(), sess, nil, push.Options{
		OnStatus: func(s push.Status) {
			if s.Connected {
				once.Do(func() { close(connected) })
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		pc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("push client did not connect")
	}
	return pc
}

func TestREST(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("LoginRejectsBadPassword", func(t *testing.T) {
		_, err := api.New(e.apiURL(), nil, 5*time.Second, nil).Login(ctx, "alice", "nope")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		_, err = api.New(e.apiURL(), nil, 5*time.Second, nil).Login(ctx, "mallory", "nope")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	alice, aliceSess := e.login(t, "alice")
	_, bobSess := e.login(t, "bob")

	t.Run("Me", func(t *testing.T) {
		me, err := alice.Me(ctx)
		require.NoError(t, err)
		assert.Equal(t, aliceSess.Subject(), me.ID)
		assert.Equal(t, "Alice Cooper", me.Name)
	})

	t.Run("Listings", func(t *testing.T) {
		users, err := alice.Users(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 4)

		chans, err := alice.Channels(ctx)
		require.NoError(t, err)
		require.Len(t, chans, 2)

		general := channelByName(t, alice, "general")
		assert.Equal(t, "owner", general.Role)
		assert.Len(t, general.Members, 4)
	})

	t.Run("GroupHistory", func(t *testing.T) {
		general := channelByName(t, alice, "general")
		msgs, err := alice.FetchMessages(ctx, general.Ref())
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "Welcome to zChat!", msgs[0].Body)
		assert.True(t, msgs[0].IsOwn)
	})

	t.Run("DirectConversation", func(t *testing.T) {
		bob := domain.ConversationRef{ID: bobSess.Subject(), Kind: domain.KindDirect}

		id, err := alice.InitDirect(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, id)

		id, err = alice.InitDirect(ctx, bob.ID)
		require.NoError(t, err, "an existing conversation is not an error")
		assert.Equal(t, bob.ID, id)

		require.NoError(t, alice.SendMessage(ctx, bob, domain.OutgoingMessage{Body: "hi bob"}))

		msgs, err := alice.FetchMessages(ctx, bob)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi bob", msgs[0].Body)
		assert.True(t, msgs[0].IsOwn)
	})

	t.Run("SelfDirectRejected", func(t *testing.T) {
		_, err := alice.InitDirect(ctx, aliceSess.Subject())
		assert.NoError(t, err, "400 is treated as already existing")

		err = alice.SendMessage(ctx, domain.ConversationRef{ID: aliceSess.Subject(), Kind: domain.KindDirect}, domain.OutgoingMessage{Body: "me"})
		var se *api.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadRequest, se.Code)
	})

	t.Run("Actions", func(t *testing.T) {
		random := channelByName(t, alice, "random")
		require.NoError(t, alice.Act(ctx, random.Ref(), api.ActionStar))
		assert.True(t, channelByName(t, alice, "random").IsStarred)

		require.NoError(t, alice.Act(ctx, random.Ref(), api.ActionStar))
		assert.False(t, channelByName(t, alice, "random").IsStarred)
	})

	t.Run("UnreadCounters", func(t *testing.T) {
		bob := api.New(e.apiURL(), bobSess, time.Second, nil)
		general := channelByName(t, bob, "general")
		before := general.Unread

		require.NoError(t, alice.SendMessage(ctx, general.Ref(), domain.OutgoingMessage{Body: "ping"}))
		assert.Equal(t, before+1, channelByName(t, bob, "general").Unread)
		assert.Zero(t, channelByName(t, alice, "general").Unread, "senders do not count their own messages")

		require.NoError(t, bob.Act(ctx, general.Ref(), api.ActionRead))
		assert.Zero(t, channelByName(t, bob, "general").Unread)
	})

	t.Run("EditAndDelete", func(t *testing.T) {
		general := channelByName(t, alice, "general")
		require.NoError(t, alice.SendMessage(ctx, general.Ref(), domain.OutgoingMessage{Body: "typo"}))
		msgs, err := alice.FetchMessages(ctx, general.Ref())
		require.NoError(t, err)
		last := msgs[len(msgs)-1]

		require.NoError(t, alice.EditMessage(ctx, general.Ref(), last.ID, "fixed"))
		msgs, err = alice.FetchMessages(ctx, general.Ref())
		require.NoError(t, err)
		assert.Equal(t, "fixed", msgs[len(msgs)-1].Body)

		bob := api.New(e.apiURL(), bobSess, time.Second, nil)
		var se *api.StatusError
		require.ErrorAs(t, bob.DeleteMessage(ctx, general.Ref(), last.ID), &se)
		assert.Equal(t, http.StatusBadRequest, se.Code)

		require.NoError(t, alice.DeleteMessage(ctx, general.Ref(), last.ID))
		assert.ErrorIs(t, alice.DeleteMessage(ctx, general.Ref(), last.ID), domain.ErrNotFound)
	})

	t.Run("NonMemberGetsNotFound", func(t *testing.T) {
		dave, daveSess := e.login(t, "dave")
		random := channelByName(t, alice, "random")
		_, err := dave.FetchMessages(ctx, random.Ref())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NotEmpty(t, daveSess.Token(), "a missing channel must not end the session")
	})

	t.Run("InvalidTokenInvalidatesSession", func(t *testing.T) {
		forged, err := security.NewTokenService("other-secret", time.Hour).Issue(aliceSess.Subject())
		require.NoError(t, err)
		sess, err := session.New(forged)
		require.NoError(t, err)

		_, err = api.New(e.apiURL(), sess, time.Second, nil).Me(ctx)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		select {
		case <-sess.LoggedOut():
		default:
			t.Fatal("session was not invalidated")
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "zchat_http_requests_total")
}

func TestPush(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice, aliceSess := e.login(t, "alice")
	_, bobSess := e.login(t, "bob")
	general := channelByName(t, alice, "general")

	bobPush := e.connect(t, bobSess)
	var got events
	sub := bobPush.Subscribe(got.add)
	defer sub.Close()

	require.NoError(t, bobPush.Join(ctx, general.ID))
	require.Eventually(t, func() bool { return e.srv.Hub().RoomSize(general.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	t.Run("GroupMessage", func(t *testing.T) {
		require.NoError(t, alice.SendMessage(ctx, general.Ref(), domain.OutgoingMessage{Body: "hello room", ReplyTo: "m0"}))
		require.Eventually(t, func() bool { return len(got.all()) >= 1 }, 2*time.Second, 10*time.Millisecond)

		ev, ok := got.all()[0].(domain.NewMessage)
		require.True(t, ok)
		assert.Equal(t, general.ID, ev.Conversation)
		assert.Equal(t, "hello room", ev.Message.Body)
		assert.Equal(t, "m0", ev.Message.ReplyTo)
		assert.Equal(t, aliceSess.Subject(), ev.Message.Sender.ID)
	})

	t.Run("DirectMessageTaggedWithSender", func(t *testing.T) {
		n := len(got.all())
		bob := domain.ConversationRef{ID: bobSess.Subject(), Kind: domain.KindDirect}
		require.NoError(t, alice.SendMessage(ctx, bob, domain.OutgoingMessage{Body: "psst"}))
		require.Eventually(t, func() bool { return len(got.all()) > n }, 2*time.Second, 10*time.Millisecond)

		ev, ok := got.all()[n].(domain.NewMessage)
		require.True(t, ok)
		assert.Equal(t, aliceSess.Subject(), ev.Conversation)
		assert.Equal(t, "psst", ev.Message.Body)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		forged, err := security.NewTokenService("other-secret", time.Hour).Issue(bobSess.Subject())
		require.NoError(t, err)
		sess, err := session.New(forged)
		require.NoError(t, err)

		pc := push.New(e.wsURL(), sess, nil, push.Options{})
		err = pc.Run(ctx)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Empty(t, sess.Token())
	})
}

// TestConversationFlow drives two views against the server: a message sent
// from one shows up optimistically there and via push in the other.
func TestConversationFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	aliceAPI, aliceSess := e.login(t, "alice")
	bobAPI, bobSess := e.login(t, "bob")
	general := channelByName(t, aliceAPI, "general")

	newView := func(c *api.Client, sess *session.Session) *view.View {
		pc := e.connect(t, sess)
		v := view.New(view.Deps{
			History:  c,
			Sender:   c,
			Direct:   c,
			Rooms:    pc,
			Events:   pc,
			Typing:   pc,
			Identity: sess,
		})
		require.NoError(t, v.Start(ctx))
		t.Cleanup(v.Close)
		return v
	}

	aliceView := newView(aliceAPI, aliceSess)
	bobView := newView(bobAPI, bobSess)

	ref := general.Ref()
	aliceView.Select(ctx, &ref)
	bobView.Select(ctx, &ref)
	aliceView.Settle()
	bobView.Settle()
	require.Eventually(t, func() bool { return e.srv.Hub().RoomSize(general.ID) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.Len(t, bobView.Snapshot().Messages, 1)

	sent, err := aliceView.Send(ctx, "from alice", "")
	require.NoError(t, err)
	assert.True(t, sent.IsOwn)
	aliceView.Settle()

	require.Eventually(t, func() bool { return len(bobView.Snapshot().Messages) == 2 }, 2*time.Second, 10*time.Millisecond)
	last := bobView.Snapshot().Messages[1]
	assert.Equal(t, "from alice", last.Body)
	assert.False(t, last.IsOwn)
	assert.Len(t, aliceView.Snapshot().Messages, 2, "the sender does not receive its own echo")

	t.Run("SwitchingAwayLeavesRoom", func(t *testing.T) {
		bob := domain.ConversationRef{ID: bobSess.Subject(), Kind: domain.KindDirect}
		aliceView.Select(ctx, &bob)
		aliceView.Settle()
		require.Eventually(t, func() bool { return e.srv.Hub().RoomSize(general.ID) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Empty(t, aliceView.Joined())
	})
}
