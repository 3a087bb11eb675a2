package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"client_go/internal/domain"
)

const (
	typingInterval = 1500 * time.Millisecond
	typingIdle     = 1500 * time.Millisecond
	typingExpiry   = 3 * time.Second
)

// typist relays the local user's typing state: at most one typing=true per
// interval while keys arrive, then typing=false once input goes idle.
type typist struct {
	emit    domain.TypingEmitter
	log     *zap.Logger
	limiter *rate.Limiter
	idle    time.Duration

	mu     sync.Mutex
	target string
	timer  *time.Timer
}

func newTypist(emit domain.TypingEmitter, log *zap.Logger, interval, idle time.Duration) *typist {
	return &typist{
		emit:    emit,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		idle:    idle,
	}
}

// keystroke reports activity in conversationID.
func (t *typist) keystroke(ctx context.Context, conversationID string) {
	if t.emit == nil || conversationID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.target != "" && t.target != conversationID {
		t.stopLocked(ctx)
	}
	switch {
	case t.target == "":
		// new burst: announce at once and restart the interval
		t.limiter = rate.NewLimiter(t.limiter.Limit(), 1)
		t.limiter.Allow()
		t.target = conversationID
		t.send(ctx, conversationID, true)
	case t.limiter.Allow():
		t.send(ctx, conversationID, true)
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.target == conversationID {
			t.stopLocked(context.WithoutCancel(ctx))
		}
	})
}

// stop emits typing=false if typing was announced.
func (t *typist) stop(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(ctx)
}

func (t *typist) stopLocked(ctx context.Context) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.target == "" {
		return
	}
	t.send(ctx, t.target, false)
	t.target = ""
}

func (t *typist) send(ctx context.Context, id string, typing bool) {
	if err := t.emit.SendTyping(ctx, id, typing); err != nil {
		t.log.Debug("typing_emit_failed", zap.String("conversation_id", id), zap.Bool("is_typing", typing), zap.Error(err))
	}
}

type typer struct {
	name  string
	until time.Time
}

// typers tracks remote users typing in the active conversation.
type typers struct {
	mu     sync.Mutex
	expiry time.Duration
	active map[string]typer
}

func newTypers(expiry time.Duration) *typers {
	return &typers{expiry: expiry, active: make(map[string]typer)}
}

func (t *typers) observe(e domain.Typing, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !e.IsTyping {
		delete(t.active, e.UserID)
		return
	}
	name := e.Name
	if name == "" {
		name = e.UserID
	}
	t.active[e.UserID] = typer{name: name, until: now.Add(t.expiry)}
}

// names returns the sorted names of users still typing at now.
func (t *typers) names(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for id, ty := range t.active {
		if !now.Before(ty.until) {
			delete(t.active, id)
			continue
		}
		out = append(out, ty.name)
	}
	sort.Strings(out)
	return out
}

func (t *typers) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.active)
}
