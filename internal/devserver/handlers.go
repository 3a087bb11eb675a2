package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"client_go/internal/domain"
	"client_go/internal/security"
	"client_go/internal/store"
)

// conversation is the target of a /channels/{id} or /channels/personal/{id}
// request. For direct chats channelID is empty until the first message or
// explicit init creates the backing channel.
type conversation struct {
	kind      domain.ConversationKind
	channelID string
	peer      *store.UserRecord
}

// flagTarget is the id sidebar flags are stored under: the channel for
// groups, the peer for direct chats.
func (c *conversation) flagTarget() string {
	if c.kind == domain.KindDirect {
		return c.peer.ID
	}
	return c.channelID
}

type conversationKey struct{}

func conversationFrom(r *http.Request) *conversation {
	c, _ := r.Context().Value(conversationKey{}).(*conversation)
	return c
}

// channelContext resolves {channelID}. Non-members get 404, not 403, so
// clients do not mistake it for an expired session.
func (s *Server) channelContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "channelID")
		ok, err := s.store.IsMember(r.Context(), id, currentUser(r).ID)
		if err != nil {
			s.internalError(w, "member_check_failed", err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "channel not found")
			return
		}
		ctx := context.WithValue(r.Context(), conversationKey{}, &conversation{kind: domain.KindGroup, channelID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// directContext resolves {peerID} and the direct channel if one exists.
func (s *Server) directContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		me := currentUser(r)
		peer, err := s.store.UserByID(r.Context(), chi.URLParam(r, "peerID"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			s.internalError(w, "peer_lookup_failed", err)
			return
		}
		if peer.ID == me.ID {
			writeError(w, http.StatusBadRequest, "cannot open a conversation with yourself")
			return
		}

		conv := &conversation{kind: domain.KindDirect, peer: peer}
		switch id, err := s.store.DirectChannelID(r.Context(), me.ID, peer.ID); {
		case err == nil:
			conv.channelID = id
		case !errors.Is(err, store.ErrNotFound):
			s.internalError(w, "direct_lookup_failed", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), conversationKey{}, conv)))
	})
}

func applyFlags(u *domain.User, f store.Flags) {
	u.Unread, u.IsArchived, u.IsStarred, u.IsMuted = f.Unread, f.IsArchived, f.IsStarred, f.IsMuted
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.internalError(w, "list_users_failed", err)
		return
	}
	flags, err := s.store.AllFlags(r.Context(), me.ID)
	if err != nil {
		s.internalError(w, "list_flags_failed", err)
		return
	}

	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		applyFlags(&u.User, flags[u.ID])
		out = append(out, u.User)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r)
	channels, err := s.store.ChannelsForUser(r.Context(), me.ID)
	if err != nil {
		s.internalError(w, "list_channels_failed", err)
		return
	}
	flags, err := s.store.AllFlags(r.Context(), me.ID)
	if err != nil {
		s.internalError(w, "list_flags_failed", err)
		return
	}

	for i := range channels {
		f := flags[channels[i].ID]
		channels[i].Unread, channels[i].IsArchived, channels[i].IsStarred, channels[i].IsMuted =
			f.Unread, f.IsArchived, f.IsStarred, f.IsMuted
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

type createChannelRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"memberIds"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "channel name is required")
		return
	}

	me := currentUser(r)
	ch, err := s.store.CreateChannel(r.Context(), req.Name, req.Description, me.ID, req.MemberIDs...)
	if err != nil {
		s.internalError(w, "create_channel_failed", err)
		return
	}
	full, err := s.store.Channel(r.Context(), ch.ID)
	if err != nil {
		s.internalError(w, "load_channel_failed", err)
		return
	}
	full.Role = "owner"
	s.log.Info("channel_created", zap.String("channel_id", ch.ID), zap.String("created_by", me.ID))
	writeJSON(w, http.StatusCreated, full)
}

// handleInitDirect creates the direct channel. An existing one answers 409,
// which clients treat as success.
func (s *Server) handleInitDirect(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	id, created, err := s.store.EnsureDirect(r.Context(), me.ID, conv.peer.ID)
	if err != nil {
		s.internalError(w, "init_direct_failed", err)
		return
	}
	if !created {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation already exists", "id": conv.peer.ID})
		return
	}
	s.log.Info("direct_created", zap.String("channel_id", id), zap.String("user_id", me.ID), zap.String("peer_id", conv.peer.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"id": conv.peer.ID})
}

// toMessage opens a stored message for viewerID.
func (s *Server) toMessage(rec *store.MessageRecord, viewerID string) domain.Message {
	body, err := s.cipher.Open(rec.Content)
	if err != nil {
		if !errors.Is(err, security.ErrUndecryptable) {
			s.log.Error("message_open_failed", zap.String("message_id", rec.ID), zap.Error(err))
		} else {
			s.log.Warn("message_undecryptable", zap.String("message_id", rec.ID))
		}
		body = "[message could not be decrypted]"
	}
	return domain.Message{
		ID:      rec.ID,
		Sender:  domain.Sender{ID: rec.SenderID, DisplayName: rec.SenderName, Avatar: rec.Avatar},
		Body:    body,
		SentAt:  rec.CreatedAt,
		IsOwn:   rec.SenderID == viewerID,
		Kind:    domain.MessageUser,
		ReplyTo: rec.ReplyTo,
	}
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	out := []domain.Message{}
	if conv.channelID != "" {
		recs, err := s.store.ListMessages(r.Context(), conv.channelID, s.cfg.MaxMessagesPerChannel)
		if err != nil {
			s.internalError(w, "list_messages_failed", err)
			return
		}
		for _, rec := range recs {
			out = append(out, s.toMessage(rec, me.ID))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

type messageRequest struct {
	Text    string `json:"text"`
	ReplyTo string `json:"replyTo"`
}

func decodeMessageRequest(w http.ResponseWriter, r *http.Request) (messageRequest, bool) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "message text cannot be empty")
		return req, false
	}
	if utf8.RuneCountInString(req.Text) > maxMessageRunes {
		writeError(w, http.StatusBadRequest, "message text exceeds 5000 characters")
		return req, false
	}
	return req, true
}

// eventTargets fans a frame out to the other side of a conversation. Group
// frames go to the joined room; direct frames go to the peer tagged with the
// actor's id. includeSelf also tells the actor's own connections, tagged with
// the id they use for the conversation.
func (s *Server) eventTargets(conv *conversation, actor *store.UserRecord, f serverFrame, includeSelf bool) {
	if conv.kind == domain.KindGroup {
		f.ChannelID = conv.channelID
		except := actor.ID
		if includeSelf {
			except = ""
		}
		s.hub.ToRoom(conv.channelID, except, f)
		return
	}

	f.ChannelID = actor.ID
	s.hub.ToUsers([]string{conv.peer.ID}, f)
	if includeSelf {
		f.ChannelID = conv.peer.ID
		s.hub.ToUsers([]string{actor.ID}, f)
	}
}

// handleSendMessage stores a message and pushes it to everyone but the
// sender, whose client already shows its optimistic copy.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	req, ok := decodeMessageRequest(w, r)
	if !ok {
		return
	}

	if conv.kind == domain.KindDirect && conv.channelID == "" {
		id, _, err := s.store.EnsureDirect(r.Context(), me.ID, conv.peer.ID)
		if err != nil {
			s.internalError(w, "init_direct_failed", err)
			return
		}
		conv.channelID = id
	}

	sealed, err := s.cipher.Seal(req.Text)
	if err != nil {
		s.internalError(w, "message_seal_failed", err)
		return
	}
	rec := &store.MessageRecord{
		ChannelID:  conv.channelID,
		SenderID:   me.ID,
		SenderName: me.Name,
		Avatar:     me.Avatar,
		Content:    sealed,
		ReplyTo:    req.ReplyTo,
	}
	if err := s.store.CreateMessage(r.Context(), rec); err != nil {
		s.internalError(w, "create_message_failed", err)
		return
	}
	s.metrics.messages.WithLabelValues(string(conv.kind)).Inc()

	if keep := s.cfg.MaxMessagesPerChannel; keep > 0 {
		if n, err := s.store.PruneMessages(r.Context(), conv.channelID, keep); err != nil {
			s.log.Warn("prune_failed", zap.String("channel_id", conv.channelID), zap.Error(err))
		} else if n > 0 {
			s.log.Debug("pruned", zap.String("channel_id", conv.channelID), zap.Int64("deleted", n))
		}
	}

	if err := s.bumpUnread(r.Context(), conv, me.ID); err != nil {
		s.log.Warn("bump_unread_failed", zap.String("channel_id", conv.channelID), zap.Error(err))
	}

	s.eventTargets(conv, me, serverFrame{Type: frameNewMessage, Message: s.toMessage(rec, "")}, false)
	writeJSON(w, http.StatusCreated, map[string]any{"message": s.toMessage(rec, me.ID)})
}

func (s *Server) bumpUnread(ctx context.Context, conv *conversation, senderID string) error {
	if conv.kind == domain.KindDirect {
		return s.store.BumpUnread(ctx, senderID, conv.peer.ID)
	}
	members, err := s.store.Members(ctx, conv.channelID)
	if err != nil {
		return err
	}
	others := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != senderID {
			others = append(others, m.ID)
		}
	}
	return s.store.BumpUnread(ctx, conv.channelID, others...)
}

// ownMessage loads {messageID} and checks the caller wrote it.
func (s *Server) ownMessage(w http.ResponseWriter, r *http.Request) (*store.MessageRecord, bool) {
	me, conv := currentUser(r), conversationFrom(r)
	if conv.channelID == "" {
		writeError(w, http.StatusNotFound, "message not found")
		return nil, false
	}
	rec, err := s.store.Message(r.Context(), conv.channelID, chi.URLParam(r, "messageID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "message not found")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "load_message_failed", err)
		return nil, false
	}
	if rec.SenderID != me.ID {
		writeError(w, http.StatusBadRequest, "only the author can change a message")
		return nil, false
	}
	return rec, true
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	req, ok := decodeMessageRequest(w, r)
	if !ok {
		return
	}
	rec, ok := s.ownMessage(w, r)
	if !ok {
		return
	}

	sealed, err := s.cipher.Seal(req.Text)
	if err != nil {
		s.internalError(w, "message_seal_failed", err)
		return
	}
	if err := s.store.UpdateMessage(r.Context(), conv.channelID, rec.ID, sealed); err != nil {
		s.internalError(w, "update_message_failed", err)
		return
	}
	rec.Content = sealed

	s.eventTargets(conv, me, serverFrame{Type: frameMessageEdited, MessageID: rec.ID, Text: req.Text}, true)
	writeJSON(w, http.StatusOK, map[string]any{"message": s.toMessage(rec, me.ID)})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	rec, ok := s.ownMessage(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteMessage(r.Context(), conv.channelID, rec.ID); err != nil {
		s.internalError(w, "delete_message_failed", err)
		return
	}

	s.eventTargets(conv, me, serverFrame{Type: frameMessageDeleted, MessageID: rec.ID}, true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	target := conv.flagTarget()

	var (
		flags store.Flags
		err   error
	)
	switch action := chi.URLParam(r, "action"); action {
	case "read":
		if err = s.store.MarkRead(r.Context(), me.ID, target); err == nil {
			flags, err = s.store.Flags(r.Context(), me.ID, target)
		}
	case "archive":
		flags, err = s.store.ToggleFlag(r.Context(), me.ID, target, store.FlagArchived)
	case "star":
		flags, err = s.store.ToggleFlag(r.Context(), me.ID, target, store.FlagStarred)
	case "mute":
		flags, err = s.store.ToggleFlag(r.Context(), me.ID, target, store.FlagMuted)
	default:
		writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}
	if err != nil {
		s.internalError(w, "action_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         target,
		"unread":     flags.Unread,
		"isArchived": flags.IsArchived,
		"isStarred":  flags.IsStarred,
		"isMuted":    flags.IsMuted,
	})
}

type addMemberRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	me, conv := currentUser(r), conversationFrom(r)
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	user, err := s.store.UserByID(r.Context(), req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		s.internalError(w, "user_lookup_failed", err)
		return
	}

	switch err := s.store.AddMember(r.Context(), conv.channelID, user.ID); {
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, user.Name+" is already a member")
		return
	case err != nil:
		s.internalError(w, "add_member_failed", err)
		return
	}

	added := domain.Member{ID: user.ID, Name: user.Name, Avatar: user.Avatar, IsOnline: s.hub.Online(user.ID), Role: "member"}
	by := domain.Member{ID: me.ID, Name: me.Name}
	s.log.Info("member_added", zap.String("channel_id", conv.channelID), zap.String("user_id", user.ID), zap.String("added_by", me.ID))

	// the actor's client already rendered the system line locally
	s.hub.ToRoom(conv.channelID, me.ID, serverFrame{
		Type:      frameMemberAdded,
		ChannelID: conv.channelID,
		AddedUser: &added,
		AddedBy:   &by,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"member": added})
}
