package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"client_go/internal/bus"
	"client_go/internal/domain"
)

// Identity exposes the logged-in user. *session.Session satisfies it.
type Identity interface {
	User() (domain.User, bool)
}

// Deps are the collaborators of a View. History, Sender and Rooms are
// required; the rest may be nil.
type Deps struct {
	History domain.HistoryFetcher
	Sender  domain.MessageSender
	Direct  domain.DirectInitializer
	Rooms   domain.RoomControl
	Events  domain.EventSource
	Typing  domain.TypingEmitter
	Members *bus.Bus[domain.MemberAdded]

	Identity Identity
	Notifier Notifier
	Log      *zap.Logger

	Now   func() time.Time
	NewID func() string
}

// View synchronizes the message list of the single active conversation.
type View struct {
	deps    Deps
	log     *zap.Logger
	store   *Store
	rec     *Reconciler
	rooms   *Membership
	typist  *typist
	typers  *typers
	changes chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pushSub   domain.Releaser
	memberSub *bus.Subscription
	closeOnce sync.Once
}

func New(d Deps) *View {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Notifier == nil {
		d.Notifier = NotifierFunc(func(Notice) {})
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	store := NewStore(d.Log)
	ctx, cancel := context.WithCancel(context.Background())
	return &View{
		deps:    d,
		log:     d.Log,
		store:   store,
		rec:     NewReconciler(store, d.Now, d.NewID),
		rooms:   NewMembership(d.Rooms, d.Log),
		typist:  newTypist(d.Typing, d.Log, typingInterval, typingIdle),
		typers:  newTypers(typingExpiry),
		changes: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to push events and local membership events. The handles
// are released by Close.
func (v *View) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.deps.Events != nil && v.pushSub == nil {
		v.pushSub = v.deps.Events.Subscribe(func(ev domain.Event) { v.HandleEvent(ev) })
	}
	if v.deps.Members != nil && v.memberSub == nil {
		v.memberSub = v.deps.Members.Subscribe(func(ev domain.MemberAdded) { v.HandleEvent(ev) })
	}
	return nil
}

// Close releases the subscriptions, leaves the joined room and waits for
// in-flight requests to finish.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		if v.pushSub != nil {
			v.pushSub.Close()
			v.pushSub = nil
		}
		if v.memberSub != nil {
			v.memberSub.Close()
			v.memberSub = nil
		}
		v.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		v.typist.stop(ctx)
		if err := v.rooms.Release(ctx); err != nil {
			v.log.Warn("room_release_failed", zap.Error(err))
		}

		v.cancel()
		v.wg.Wait()
	})
}

// Select activates ref, or deactivates the view when ref is nil. The
// history is fetched in the background.
func (v *View) Select(ctx context.Context, ref *domain.ConversationRef) {
	prev, _, hadPrev := v.store.Active()
	tok := v.store.Select(ref)
	v.typers.reset()
	if hadPrev {
		v.typist.stop(ctx)
	}

	if err := v.rooms.Transition(ctx, ref); err != nil {
		v.log.Warn("room_transition_failed", zap.String("from", prev.ID), zap.Error(err))
	}
	v.changed()

	if ref == nil {
		return
	}

	target := *ref
	v.log.Debug("conversation_selected", zap.String("conversation_id", target.ID), zap.String("kind", string(target.Kind)))

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		v.load(tok, target)
	}()
}

func (v *View) load(tok Token, ref domain.ConversationRef) {
	if ref.Kind == domain.KindDirect && v.deps.Direct != nil {
		id, err := v.deps.Direct.InitDirect(v.ctx, ref.ID)
		if err != nil {
			v.failLoad(tok, ref, "Could not open conversation", err)
			return
		}
		if id != "" {
			ref.ID = id
		}
	}

	msgs, err := v.deps.History.FetchMessages(v.ctx, ref)
	if err != nil {
		v.failLoad(tok, ref, "Could not load messages", err)
		return
	}

	if v.store.ReplaceAll(tok, ApplyHistory(msgs, v.selfID())) == Stale {
		v.log.Debug("stale_history_dropped", zap.String("conversation_id", ref.ID))
		return
	}
	v.changed()
}

func (v *View) failLoad(tok Token, ref domain.ConversationRef, text string, err error) {
	if v.store.FailLoad(tok) == Stale {
		v.log.Debug("stale_history_error_dropped", zap.String("conversation_id", ref.ID), zap.Error(err))
		return
	}
	v.changed()

	if errors.Is(err, context.Canceled) {
		return
	}
	v.log.Warn("history_fetch_failed", zap.String("conversation_id", ref.ID), zap.Error(err))
	if errors.Is(err, domain.ErrUnauthorized) {
		return
	}
	v.deps.Notifier.Notify(Notice{Level: LevelError, Text: text, Err: err})
}

// Send appends an optimistic copy of the message and submits it in the
// background. Failure is reported as a notice; the copy stays in the list.
func (v *View) Send(ctx context.Context, body, replyTo string) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Message{}, domain.ErrInvalidInput
	}
	ref, tok, ok := v.store.Active()
	if !ok {
		return domain.Message{}, domain.ErrNoActiveConversation
	}

	msg := v.rec.Optimistic(v.self(), body, replyTo)
	if v.store.Append(tok, msg) == Stale {
		return domain.Message{}, domain.ErrNoActiveConversation
	}
	v.typist.stop(ctx)
	v.changed()

	out := domain.OutgoingMessage{Body: body, ReplyTo: replyTo}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if err := v.deps.Sender.SendMessage(v.ctx, ref, out); err != nil {
			v.log.Warn("send_failed", zap.String("conversation_id", ref.ID), zap.String("local_id", msg.ID), zap.Error(err))
			if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, context.Canceled) {
				return
			}
			v.deps.Notifier.Notify(Notice{Level: LevelError, Text: "Failed to send message", Err: err})
		}
	}()

	return msg, nil
}

// HandleEvent applies a push or bus event. It is safe to call from the
// transport's reader goroutine.
func (v *View) HandleEvent(ev domain.Event) Outcome {
	if t, ok := ev.(domain.Typing); ok {
		if _, routed := v.store.Route(t.Conversation); !routed {
			return Stale
		}
		if t.UserID == v.selfID() {
			return Absent
		}
		v.typers.observe(t, v.deps.Now())
		v.changed()
		return Applied
	}

	out := v.rec.Apply(ev, v.selfID())
	switch out {
	case Applied:
		v.changed()
	case Stale:
		v.log.Debug("stale_event_dropped", zap.String("conversation_id", ev.ConversationID()))
	}
	return out
}

// Keystroke relays local typing activity for the active conversation.
func (v *View) Keystroke(ctx context.Context) {
	ref, _, ok := v.store.Active()
	if !ok {
		return
	}
	v.typist.keystroke(ctx, ref.ID)
}

// Snapshot returns the state to render.
func (v *View) Snapshot() Snapshot {
	snap := v.store.Snapshot()
	snap.Typers = v.typers.names(v.deps.Now())
	return snap
}

// Joined returns the room currently joined on behalf of the view.
func (v *View) Joined() string {
	return v.rooms.Joined()
}

// Changes signals that the snapshot may have changed. Signals coalesce.
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

// Settle waits for in-flight fetches and sends.
func (v *View) Settle() {
	v.wg.Wait()
}

func (v *View) changed() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

func (v *View) selfID() string {
	if v.deps.Identity == nil {
		return ""
	}
	u, ok := v.deps.Identity.User()
	if !ok {
		return ""
	}
	return u.ID
}

func (v *View) self() domain.Sender {
	if v.deps.Identity == nil {
		return domain.Sender{DisplayName: "You"}
	}
	u, ok := v.deps.Identity.User()
	if !ok {
		return domain.Sender{DisplayName: "You"}
	}
	return domain.Sender{ID: u.ID, DisplayName: u.Name, Avatar: u.Avatar}
}
