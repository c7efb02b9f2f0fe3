// Package channel keeps the real-time connection of the current drop session:
// STOMP 1.2 frames carried in WebSocket text messages, one subscription to
// the session topic, typed handlers per envelope type.
//
// Handlers live in an arena that belongs to one session. Disconnect, or
// connecting to a different session, drops the arena as a whole. A reconnect
// of the same session re-issues the subscription and keeps the arena, so
// handlers are never registered twice.
//
// Transport failures are not returned from a running channel. They are
// published on the event bus as eventbus.TransportError with a TransportError
// payload, and the channel reconnects after a constant delay.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/client/eventbus"
	"github.com/dmitrijs2005/lazydrop/internal/common"
	"github.com/dmitrijs2005/lazydrop/internal/logging"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
	writeTimeout          = 10 * time.Second
)

type Handler func(payload json.RawMessage)

// Publisher is the part of the event bus the channel needs.
type Publisher interface {
	Emit(event string, payload any)
}

type Options struct {
	URL            string
	Token          func() string
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Bus            Publisher
	Logger         logging.Logger
}

type subscription struct {
	h Handler
}

type arena struct {
	handlers map[string][]*subscription
}

type Channel struct {
	url    string
	token  func() string
	delay  time.Duration
	dialer *websocket.Dialer
	bus    Publisher
	logger logging.Logger

	mu        sync.Mutex
	sessionID string
	active    bool
	gen       uint64
	conn      *websocket.Conn
	cancel    context.CancelFunc
	arena     *arena

	writeMu sync.Mutex
}

func New(opts Options) *Channel {
	c := &Channel{
		url:    opts.URL,
		token:  opts.Token,
		delay:  opts.ReconnectDelay,
		dialer: opts.Dialer,
		bus:    opts.Bus,
		logger: opts.Logger,
	}
	if c.token == nil {
		c.token = func() string { return "" }
	}
	if c.delay <= 0 {
		c.delay = DefaultReconnectDelay
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			Subprotocols:     []string{"v12.stomp"},
		}
	}
	if c.logger == nil {
		c.logger = logging.NopLogger{}
	}
	return c
}

// SessionID returns the session the channel is bound to, or "".
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Connected reports whether a live socket is attached right now.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect binds the channel to sessionID. It is a no-op when already bound to
// the same session; a different session is disconnected first. When the first
// dial fails the error is returned and the channel keeps retrying in the
// background until Disconnect.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return common.ErrNoActiveSession
	}

	c.mu.Lock()
	if c.active && c.sessionID == sessionID {
		c.mu.Unlock()
		return nil
	}
	var old *websocket.Conn
	if c.active {
		old = c.detachLocked()
	}
	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.Background())
	c.sessionID = sessionID
	c.active = true
	c.cancel = cancel
	if c.arena == nil {
		c.arena = &arena{handlers: make(map[string][]*subscription)}
	}
	c.mu.Unlock()

	c.closeConn(old)

	log := c.logger.With("session_id", sessionID)
	conn, err := c.open(ctx, sessionID)
	if err != nil {
		log.Warn(ctx, "real-time connect failed", "error", err)
		c.publish(gen, sessionID, err)
	} else if !c.attach(gen, conn) {
		c.closeConn(conn)
		return nil
	} else {
		log.Info(ctx, "real-time channel connected")
	}

	go c.run(runCtx, gen, sessionID, conn)
	return err
}

// Subscribe registers h for envelopes of type eventType. The returned
// function removes it; calling it twice, or after Disconnect, is a no-op.
func (c *Channel) Subscribe(eventType string, h Handler) func() {
	s := &subscription{h: h}

	c.mu.Lock()
	if c.arena == nil {
		c.arena = &arena{handlers: make(map[string][]*subscription)}
	}
	a := c.arena
	a.handlers[eventType] = append(a.handlers[eventType], s)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			list := a.handlers[eventType]
			for i, x := range list {
				if x == s {
					next := make([]*subscription, 0, len(list)-1)
					next = append(next, list[:i]...)
					a.handlers[eventType] = append(next, list[i+1:]...)
					return
				}
			}
		})
	}
}

// Send publishes payload as JSON to destination. It silently does nothing
// when no socket is attached.
func (c *Channel) Send(destination string, payload any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn(context.Background(), "send: encode payload", "destination", destination, "error", err)
		return
	}
	if err := c.writeFrame(conn, sendFrame(destination, body)); err != nil {
		c.logger.Debug(context.Background(), "send failed", "destination", destination, "error", err)
	}
}

// Disconnect unsubscribes, closes the socket, stops reconnecting and drops
// every handler. Safe to call repeatedly. It does not wait for the reader.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.active {
		c.arena = nil
		c.mu.Unlock()
		return
	}
	conn := c.detachLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = c.writeFrame(conn, frame.New(frame.UNSUBSCRIBE, "id", subscriptionID))
		_ = c.writeFrame(conn, frame.New(frame.DISCONNECT))
	}
	c.closeConn(conn)
}

// detachLocked resets the binding and returns the socket to close outside the lock.
func (c *Channel) detachLocked() *websocket.Conn {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.sessionID = ""
	c.active = false
	c.arena = nil
	c.gen++
	return conn
}

func (c *Channel) attach(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	return true
}

func (c *Channel) release(gen uint64, conn *websocket.Conn) {
	c.mu.Lock()
	if c.gen == gen && c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.closeConn(conn)
}

func (c *Channel) closeConn(conn *websocket.Conn) {
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Channel) writeFrame(conn *websocket.Conn, f *frame.Frame) error {
	b, err := encodeFrame(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// open dials the broker and completes CONNECT and SUBSCRIBE.
func (c *Channel) open(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}

	token := c.token()
	header := http.Header{}
	if token != "" {
		header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", u.Host, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	if err := c.handshake(conn, u.Host, token, sessionID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Channel) handshake(conn *websocket.Conn, host, token, sessionID string) error {
	if err := c.writeFrame(conn, connectFrame(host, token)); err != nil {
		return fmt.Errorf("write CONNECT: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var reply *frame.Frame
	for reply == nil {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read CONNECTED: %w", err)
		}
		if reply, err = decodeFrame(b); err != nil {
			return err
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := checkConnected(reply); err != nil {
		return err
	}
	if err := c.writeFrame(conn, subscribeFrame(sessionID)); err != nil {
		return fmt.Errorf("write SUBSCRIBE: %w", err)
	}
	return nil
}

// run owns the socket of one binding: it reads until failure, reports the
// failure once and reconnects with a constant delay until ctx is cancelled.
func (c *Channel) run(ctx context.Context, gen uint64, sessionID string, conn *websocket.Conn) {
	log := c.logger.With("session_id", sessionID)

	for {
		if conn != nil {
			err := c.read(gen, conn)
			c.release(gen, conn)
			conn = nil
			if ctx.Err() != nil {
				return
			}
			log.Warn(ctx, "real-time channel dropped", "error", err)
			c.publish(gen, sessionID, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.delay):
		}

		attempt := 0
		err := retry.Do(ctx, retry.NewConstant(c.delay), func(ctx context.Context) error {
			attempt++
			nc, err := c.open(ctx, sessionID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Debug(ctx, "reconnect attempt failed", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			conn = nc
			return nil
		})
		if err != nil {
			return
		}
		if !c.attach(gen, conn) {
			c.closeConn(conn)
			return
		}
		log.Info(ctx, "real-time channel reconnected", "attempts", attempt)
	}
}

func (c *Channel) read(gen uint64, conn *websocket.Conn) error {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := decodeFrame(b)
		if err != nil {
			c.logger.Warn(context.Background(), "dropping malformed frame", "error", err)
			continue
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case frame.MESSAGE:
			var env Envelope
			if err := json.Unmarshal(f.Body, &env); err != nil || env.Type == "" {
				c.logger.Warn(context.Background(), "dropping malformed envelope", "error", err)
				continue
			}
			c.dispatch(gen, env)
		case frame.ERROR:
			return &StompError{Message: f.Header.Get("message"), Body: string(f.Body)}
		}
	}
}

func (c *Channel) dispatch(gen uint64, env Envelope) {
	c.mu.Lock()
	if c.gen != gen || c.arena == nil {
		c.mu.Unlock()
		return
	}
	list := c.arena.handlers[env.Type]
	c.mu.Unlock()

	for _, s := range list {
		c.invoke(env, s.h)
	}
}

func (c *Channel) invoke(env Envelope, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(context.Background(), "channel handler panicked", "type", env.Type, "panic", fmt.Sprint(r))
		}
	}()
	h(env.Payload)
}

func (c *Channel) publish(gen uint64, sessionID string, err error) {
	c.mu.Lock()
	current := c.gen == gen
	c.mu.Unlock()
	if !current || c.bus == nil {
		return
	}

	code, msg, ok := describe(err)
	if !ok {
		return
	}
	c.bus.Emit(eventbus.TransportError, TransportError{SessionID: sessionID, Code: code, Message: msg})
}

// describe turns a transport failure into a user-facing message. Normal
// closures are not reported.
func describe(err error) (int, string, bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return ce.Code, "", false
		case websocket.CloseAbnormalClosure:
			return ce.Code, "Real-time connection lost. Reconnecting...", true
		case websocket.ClosePolicyViolation:
			return ce.Code, "Real-time connection was rejected by the server.", true
		case websocket.CloseInternalServerErr:
			return ce.Code, "The server hit an error on the real-time channel. Reconnecting...", true
		default:
			return ce.Code, fmt.Sprintf("Real-time connection closed (%d).", ce.Code), true
		}
	}

	var se *StompError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = "broker error"
		}
		return 0, "Real-time channel error: " + msg, true
	}

	return 0, "Real-time connection failed. Check your network.", true
}
