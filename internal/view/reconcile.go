package view

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"client_go/internal/domain"
)

// Reconciler decides how inbound artifacts mutate a Store.
type Reconciler struct {
	store *Store
	now   func() time.Time
	newID func() string
}

func NewReconciler(store *Store, now func() time.Time, newID func() string) *Reconciler {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &Reconciler{store: store, now: now, newID: newID}
}

// Apply routes a push or bus event to the store. selfID is used to mark
// messages authored by the current user; it may be empty.
// Typing events never reach the list and report Absent.
func (r *Reconciler) Apply(ev domain.Event, selfID string) Outcome {
	tok, ok := r.store.Route(ev.ConversationID())
	if !ok {
		return Stale
	}

	switch e := ev.(type) {
	case domain.NewMessage:
		return r.store.Append(tok, markOwn(e.Message, selfID))
	case domain.MessageEdited:
		return r.store.ApplyEdit(tok, e.MessageID, e.Body)
	case domain.MessageDeleted:
		return r.store.ApplyDelete(tok, e.MessageID)
	case domain.MemberAdded:
		// Membership lines render in groups only; a DM may share the id.
		if ref, _, ok := r.store.Active(); !ok || !ref.IsGroup() {
			return Stale
		}
		return r.store.Append(tok, r.System(e))
	default:
		return Absent
	}
}

// Optimistic builds the locally displayed copy of an outgoing message.
func (r *Reconciler) Optimistic(self domain.Sender, body, replyTo string) domain.Message {
	return domain.Message{
		ID:      "local-" + r.newID(),
		Sender:  self,
		Body:    body,
		SentAt:  r.now(),
		IsOwn:   true,
		Kind:    domain.MessageUser,
		ReplyTo: replyTo,
	}
}

// System synthesizes the thread line for a membership change.
func (r *Reconciler) System(e domain.MemberAdded) domain.Message {
	return domain.Message{
		ID:     "sys-" + r.newID(),
		Sender: domain.Sender{ID: e.AddedBy.ID, DisplayName: e.AddedBy.Name},
		Body:   displayName(e.AddedBy) + " added " + displayName(e.AddedUser),
		SentAt: r.now(),
		Kind:   domain.MessageSystem,
	}
}

// ApplyHistory derives ownership for fetched messages.
func ApplyHistory(msgs []domain.Message, selfID string) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = markOwn(m, selfID)
	}
	return out
}

func markOwn(m domain.Message, selfID string) domain.Message {
	if selfID != "" && m.Sender.ID != "" {
		m.IsOwn = m.Sender.ID == selfID
	}
	if m.Kind == "" {
		m.Kind = domain.MessageUser
	}
	return m
}

func displayName(m domain.Member) string {
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	if m.ID != "" {
		return m.ID
	}
	return "Someone"
}
