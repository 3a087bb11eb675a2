// Package push is the WebSocket client of the chat backend. One Client is
// shared by the whole process; views only issue join and leave intents.
package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"client_go/internal/bus"
	"client_go/internal/domain"
)

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the server.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 64
)

// Credentials supplies the bearer token for the handshake.
// *session.Session satisfies it.
type Credentials interface {
	Token() string
	Invalidate(reason string) bool
}

// Status describes the connection for status bars.
type Status struct {
	Connected bool
	Attempt   int
	Err       error
}

type Options struct {
	// MaxRetries is the number of reconnect attempts after a failure.
	MaxRetries int
	// Backoff returns the delay before the given attempt (1-based).
	Backoff  func(attempt int) time.Duration
	OnStatus func(Status)
	Dialer   *websocket.Dialer
}

func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

// Client is a reconnecting push-channel connection.
type Client struct {
	url   string
	creds Credentials
	log   *zap.Logger
	opts  Options

	mu     sync.Mutex
	out    chan []byte
	rooms  map[string]struct{}
	status Status

	events *bus.Bus[domain.Event]
}

func New(url string, creds Credentials, log *zap.Logger, opts Options) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.Backoff == nil {
		opts.Backoff = linearBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: writeWait}
	}
	return &Client{
		url:    url,
		creds:  creds,
		log:    log,
		opts:   opts,
		rooms:  make(map[string]struct{}),
		events: bus.New[domain.Event](),
	}
}

// Subscribe delivers every decoded event to handler, in receive order, from
// the reader goroutine, until the returned handle is closed.
func (c *Client) Subscribe(handler func(domain.Event)) domain.Releaser {
	return c.events.Subscribe(handler)
}

// Join records the room and asks the server to join it. The room is joined
// again after every reconnect until Leave is called.
func (c *Client) Join(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
	return c.enqueue(ctx, encodeFrame(TypeJoinChannel, conversationID, nil))
}

func (c *Client) Leave(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
	return c.enqueue(ctx, encodeFrame(TypeLeaveChannel, conversationID, nil))
}

func (c *Client) SendTyping(ctx context.Context, conversationID string, isTyping bool) error {
	return c.enqueue(ctx, encodeFrame(TypeTyping, conversationID, &isTyping))
}

// Rooms returns the rooms that will be re-joined on reconnect.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s)
	}
}

func (c *Client) enqueue(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()

	if out == nil {
		return domain.ErrNotConnected
	}
	select {
	case out <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("push: send buffer full: %w", domain.ErrNotConnected)
	}
}

// Run connects and serves the connection until ctx is cancelled. After a
// drop it reconnects up to MaxRetries times with a growing delay. A rejected
// handshake invalidates the credentials and ends Run with
// domain.ErrUnauthorized.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			attempt = 0
			c.setStatus(Status{Connected: true})
			c.log.Info("push_connected", zap.String("url", c.url))

			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				c.setStatus(Status{})
				return nil
			}
			c.log.Warn("push_disconnected", zap.Error(err))
		}

		if errors.Is(err, domain.ErrUnauthorized) {
			c.setStatus(Status{Err: err})
			return err
		}
		if ctx.Err() != nil {
			c.setStatus(Status{})
			return nil
		}

		attempt++
		if attempt > c.opts.MaxRetries {
			c.setStatus(Status{Err: err})
			return fmt.Errorf("push: giving up after %d attempts: %w", c.opts.MaxRetries, err)
		}
		c.setStatus(Status{Attempt: attempt, Err: err})
		delay := c.opts.Backoff(attempt)
		c.log.Info("push_reconnecting", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			c.setStatus(Status{})
			return nil
		case <-t.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.creds.Token()
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	d := *c.opts.Dialer
	d.Subprotocols = []string{"bearer", token}

	conn, resp, err := d.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.creds.Invalidate(fmt.Sprintf("%d from push handshake", resp.StatusCode))
			return nil, fmt.Errorf("push handshake: %w", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("push dial: %w", err)
	}
	return conn, nil
}

// serve runs the write pump in a goroutine and the read pump inline. It
// returns when the connection fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	out := make(chan []byte, sendBuffer)

	c.mu.Lock()
	c.out = out
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx, conn, out, done)
	}()

	for _, id := range rooms {
		out <- encodeFrame(TypeJoinChannel, id, nil)
	}
	if len(rooms) > 0 {
		c.log.Debug("push_rooms_rejoined", zap.Strings("rooms", rooms))
	}

	err := c.readPump(conn)

	c.mu.Lock()
	if c.out == out {
		c.out = nil
	}
	c.mu.Unlock()

	close(done)
	conn.Close()
	wg.Wait()
	return err
}

func (c *Client) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := decodeEvent(data)
		var se *ServerError
		switch {
		case err == nil:
			c.events.Publish(ev)
		case errors.As(err, &se):
			c.log.Warn("push_server_error", zap.String("message", se.Message))
		case errors.Is(err, errUnknownFrame):
			c.log.Debug("push_frame_dropped", zap.Error(err))
		default:
			c.log.Warn("push_frame_invalid", zap.Error(err))
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, out <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("push_write_failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-done:
			return
		}
	}
}
