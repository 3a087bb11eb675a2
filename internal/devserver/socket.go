package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"client_go/internal/domain"
	"client_go/internal/store"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 64 * 1024

	sendBuffer = 256
)

const (
	frameNewMessage     = "new_message"
	frameMessageEdited  = "message_edited"
	frameMessageDeleted = "message_deleted"
	frameMemberAdded    = "member_added"
	frameTyping         = "typing"
	frameError          = "error"

	frameJoinChannel  = "join_channel"
	frameLeaveChannel = "leave_channel"
)

// serverFrame is a flat JSON frame; unused fields are omitted.
type serverFrame struct {
	Type      string         `json:"type"`
	ChannelID string         `json:"channelId,omitempty"`
	Message   any            `json:"message,omitempty"`
	MessageID string         `json:"messageId,omitempty"`
	Text      string         `json:"text,omitempty"`
	AddedUser *domain.Member `json:"addedUser,omitempty"`
	AddedBy   *domain.Member `json:"addedBy,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Name      string         `json:"name,omitempty"`
	IsTyping  *bool          `json:"isTyping,omitempty"`
}

type clientFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
	IsTyping  *bool  `json:"isTyping"`
}

// socketConn is one push connection. rooms is guarded by the hub's mutex.
type socketConn struct {
	ws       *websocket.Conn
	userID   string
	userName string
	send     chan []byte
	rooms    map[string]struct{}
}

// checkOrigin admits non-browser clients, which send no Origin, and browsers
// from the configured CORS origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o = strings.ToLower(strings.TrimSpace(o)); o != "" {
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(strings.TrimSpace(r.Header.Get("Origin")))
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	tok := socketToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	user, err := s.authenticate(r.Context(), tok)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin(s.cfg.CORSOrigins),
		Subprotocols: []string{"bearer"},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws_upgrade_failed", zap.Error(err))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	c := &socketConn{
		ws:       ws,
		userID:   user.ID,
		userName: user.Name,
		send:     make(chan []byte, sendBuffer),
		rooms:    make(map[string]struct{}),
	}
	s.hub.register(c)
	if err := s.store.SetOnline(ctx, user.ID, true); err != nil {
		s.log.Warn("set_online_failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.log.Info("ws_connected", zap.String("user_id", user.ID))

	go c.writePump()
	s.readPump(ctx, c)

	s.hub.unregister(c)
	if !s.hub.Online(user.ID) {
		if err := s.store.SetOnline(ctx, user.ID, false); err != nil {
			s.log.Warn("set_offline_failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	s.log.Info("ws_disconnected", zap.String("user_id", user.ID))
}

func (s *Server) readPump(ctx context.Context, c *socketConn) {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debug("ws_read_error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.reply(c, "invalid frame")
			continue
		}
		s.metrics.frames.WithLabelValues("in", f.Type).Inc()
		s.dispatch(ctx, c, f)
	}
}

func (s *Server) dispatch(ctx context.Context, c *socketConn, f clientFrame) {
	switch f.Type {
	case frameJoinChannel:
		ok, err := s.store.IsMember(ctx, f.ChannelID, c.userID)
		if err != nil {
			s.log.Error("member_check_failed", zap.Error(err))
			s.reply(c, "failed to join channel")
			return
		}
		if !ok {
			s.reply(c, "not a member of this channel")
			return
		}
		s.hub.join(c, f.ChannelID)
		s.log.Debug("ws_join", zap.String("user_id", c.userID), zap.String("channel_id", f.ChannelID))

	case frameLeaveChannel:
		s.hub.leave(c, f.ChannelID)
		s.log.Debug("ws_leave", zap.String("user_id", c.userID), zap.String("channel_id", f.ChannelID))

	case frameTyping:
		typing := true
		if f.IsTyping != nil {
			typing = *f.IsTyping
		}
		s.relayTyping(ctx, c, f.ChannelID, typing)

	default:
		s.reply(c, "unknown frame type "+f.Type)
	}
}

// relayTyping forwards a typing flag to a group room, or to the peer when
// the id names a user.
func (s *Server) relayTyping(ctx context.Context, c *socketConn, id string, typing bool) {
	f := serverFrame{Type: frameTyping, UserID: c.userID, Name: c.userName, IsTyping: &typing}

	member, err := s.store.IsMember(ctx, id, c.userID)
	if err != nil {
		s.log.Error("member_check_failed", zap.Error(err))
		return
	}
	if member {
		f.ChannelID = id
		s.hub.ToRoom(id, c.userID, f)
		return
	}

	peer, err := s.store.UserByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && peer.ID == c.userID) {
		s.reply(c, "not allowed for this conversation")
		return
	}
	if err != nil {
		s.log.Error("peer_lookup_failed", zap.Error(err))
		return
	}
	f.ChannelID = c.userID
	s.hub.ToUsers([]string{peer.ID}, f)
}

func (s *Server) reply(c *socketConn, msg string) {
	s.hub.toConn(c, serverFrame{Type: frameError, Message: msg})
}

func (c *socketConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
