// Package realtime is the client side of the push channel: one websocket
// connection per process, room membership per poll, and bounded automatic
// reconnection.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/livepoll/internal/logging"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateDown means the reconnect budget is spent. Only Connect leaves it.
	StateDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDown:
		return "down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 1 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultHandshakeTimeout  = 5 * time.Second
)

var errStopped = errors.New("connection attempt cancelled")

// Handler receives decoded events on the read-loop goroutine, one at a time
// and in delivery order.
type Handler func(Event)

type Client struct {
	url          string
	dialer       *websocket.Dialer
	attempts     int
	delay        time.Duration
	writeTimeout time.Duration
	log          logging.Logger
	now          func() time.Time

	state atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	gen      uint64
	busy     bool
	stop     chan struct{}
	rearm    *time.Timer
	rooms    map[string]struct{}
	handlers []Handler
}

type Option func(*Client)

func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.delay = delay
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:          url,
		dialer:       &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		attempts:     DefaultReconnectAttempts,
		delay:        DefaultReconnectDelay,
		writeTimeout: defaultWriteTimeout,
		log:          logging.Nop(),
		now:          time.Now,
		rooms:        map[string]struct{}{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnEvent registers h for every decoded event.
func (c *Client) OnEvent(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// State never blocks.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Rooms returns the recorded rooms in sorted order.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomsLocked()
}

func (c *Client) roomsLocked() []string {
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Connect dials the server unless a connection exists or is being made. A
// failed dial starts the reconnect loop and returns the dial error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.rearm != nil {
		c.rearm.Stop()
		c.rearm = nil
	}
	if c.conn != nil || c.busy {
		c.mu.Unlock()
		return nil
	}
	c.busy = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.state.Store(int32(StateConnecting))
	c.mu.Unlock()

	err := c.establish(ctx, stop)
	if err == nil || errors.Is(err, errStopped) {
		return nil
	}
	c.log.Warn(ctx, "realtime connect failed", "url", c.url, "error", err)
	go c.reconnect(stop)
	return fmt.Errorf("realtime connect: %w", err)
}

// Disconnect closes the connection and cancels any reconnection. Rooms are
// kept and re-joined on the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rearm != nil {
		c.rearm.Stop()
		c.rearm = nil
	}
	c.shutdownLocked()
}

// DisconnectAndRearm disconnects now and connects again after grace.
func (c *Client) DisconnectAndRearm(grace time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rearm != nil {
		c.rearm.Stop()
	}
	c.shutdownLocked()
	c.rearm = time.AfterFunc(grace, func() {
		if err := c.Connect(context.Background()); err != nil {
			c.log.Warn(context.Background(), "realtime rearm failed", "error", err)
		}
	})
}

func (c *Client) Subscribe(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[pollID]; ok {
		return
	}
	c.rooms[pollID] = struct{}{}
	if c.conn != nil {
		c.sendLocked(eventJoinPoll, pollID)
	}
}

func (c *Client) Unsubscribe(pollID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[pollID]; !ok {
		return
	}
	delete(c.rooms, pollID)
	if c.conn != nil {
		c.sendLocked(eventLeavePoll, pollID)
	}
}

func (c *Client) shutdownLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.busy = false
	c.gen++
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(StateDisconnected))
}

func (c *Client) sendLocked(event, pollID string) {
	msg, err := encodeRoomFrame(event, pollID)
	if err != nil {
		c.log.Error(context.Background(), "encode realtime frame", "event", event, "error", err)
		return
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.log.Warn(context.Background(), "realtime write failed", "event", event, "poll_id", pollID, "error", err)
	}
}

// establish dials once and installs the connection unless stop was closed
// meanwhile.
func (c *Client) establish(ctx context.Context, stop chan struct{}) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-stop:
		_ = conn.Close()
		return errStopped
	default:
	}

	c.conn = conn
	c.gen++
	c.busy = false
	c.state.Store(int32(StateConnected))
	for _, room := range c.roomsLocked() {
		c.sendLocked(eventJoinPoll, room)
	}
	go c.readLoop(conn, c.gen)

	c.log.Info(ctx, "realtime connected", "url", c.url, "rooms", len(c.rooms))
	return nil
}

func (c *Client) reconnect(stop chan struct{}) {
	ctx := context.Background()
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if !c.markIfLive(stop, StateReconnecting) {
			return
		}
		select {
		case <-stop:
			return
		case <-time.After(c.delay):
		}

		err := c.establish(ctx, stop)
		if err == nil || errors.Is(err, errStopped) {
			return
		}
		c.log.Warn(ctx, "realtime reconnect failed", "attempt", attempt, "max_attempts", c.attempts, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-stop:
	default:
		c.busy = false
		c.stop = nil
		c.state.Store(int32(StateDown))
		c.log.Error(ctx, "realtime channel down, reconnect budget spent", "attempts", c.attempts)
	}
}

// markIfLive stores s unless stop has been closed by Disconnect.
func (c *Client) markIfLive(stop chan struct{}, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-stop:
		return false
	default:
		c.state.Store(int32(s))
		return true
	}
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, gen, err)
			return
		}
		ev, err := decodeEvent(data, c.now())
		if err != nil {
			c.log.Warn(context.Background(), "dropping realtime frame", "error", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *Client) connectionLost(conn *websocket.Conn, gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.busy = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.state.Store(int32(StateReconnecting))
	c.mu.Unlock()

	c.log.Warn(context.Background(), "realtime connection lost", "error", cause)
	c.reconnect(stop)
}
