package view

import "sync"

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a one-shot user-visible message.
type Notice struct {
	Level Level
	Text  string
	Err   error
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Notices is a bounded queue of pending notices that a renderer drains.
type Notices struct {
	mu     sync.Mutex
	items  []Notice
	limit  int
	signal chan struct{}
}

func NewNotices(limit int) *Notices {
	if limit <= 0 {
		limit = 16
	}
	return &Notices{limit: limit, signal: make(chan struct{}, 1)}
}

// Notify queues n, dropping the oldest notice when full.
func (q *Notices) Notify(n Notice) {
	q.mu.Lock()
	if len(q.items) == q.limit {
		q.items = q.items[1:]
	}
	q.items = append(q.items, n)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Drain returns and clears the queued notices.
func (q *Notices) Drain() []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// C signals that notices are waiting.
func (q *Notices) C() <-chan struct{} {
	return q.signal
}
