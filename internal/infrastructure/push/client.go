// Package push keeps the live push channel open: it dials the websocket,
// re-establishes it with backoff when it drops, keeps the user and task
// subscriptions joined, and hands every received event to a handler.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/boardsync/pkg/domain/events"
	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// Config configures a push Client.
type Config struct {
	URL          string
	Token        string
	UserID       string
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Dialer       *websocket.Dialer
	Logger       *slog.Logger
}

// Handler receives every well-formed frame.
type Handler func(ctx context.Context, env events.Envelope) error

// Client is a reconnecting push channel client. Task subscriptions are a set:
// joining twice sends one join, and the whole set is joined again after every
// reconnect.
type Client struct {
	cfg     Config
	handler Handler
	fsm     *events.ConnectionMachine
	fan     *fanout
	logger  *slog.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	rooms       map[string]bool
	onReconnect []func(context.Context)

	writeMu sync.Mutex
}

// New creates a client. handler may be nil when only Subscribe is used.
func New(cfg Config, handler Handler) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("push: url is required")
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	fsm, err := events.NewConnectionMachine()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		handler: handler,
		fsm:     fsm,
		fan:     newFanout(),
		logger:  cfg.Logger,
		rooms:   make(map[string]bool),
	}, nil
}

// State returns the connection state name.
func (c *Client) State() string { return c.fsm.Current() }

// OnReconnect registers fn to run after each successful reconnect, once the
// subscriptions are joined again. Events missed while offline are only
// recovered by refetching, which is what fn is for.
func (c *Client) OnReconnect(fn func(context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, fn)
}

// Subscribe returns a channel that receives a copy of every frame. The
// returned function unsubscribes and closes the channel.
func (c *Client) Subscribe(buffer int) (<-chan events.Envelope, func()) {
	return c.fan.subscribe(buffer)
}

// JoinTask subscribes to a task's events.
func (c *Client) JoinTask(taskID string) error {
	c.mu.Lock()
	if c.rooms[taskID] {
		c.mu.Unlock()
		return nil
	}
	c.rooms[taskID] = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.emit(conn, events.JoinTaskRoom, taskID)
}

// LeaveTask drops a task subscription.
func (c *Client) LeaveTask(taskID string) error {
	c.mu.Lock()
	if !c.rooms[taskID] {
		c.mu.Unlock()
		return nil
	}
	delete(c.rooms, taskID)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.emit(conn, events.LeaveTaskRoom, taskID)
}

// Rooms lists the joined task ids.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run keeps the channel open until ctx is done. Dial failures and drops are
// retried with exponential backoff capped at MaxDelay.
func (c *Client) Run(ctx context.Context) error {
	if _, err := c.fsm.Fire(events.EventDial); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer c.fire(events.EventClose)

	delay := c.cfg.InitialDelay
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.fire(events.EventFailed)
			c.logger.Warn("push channel dial failed", "url", c.cfg.URL, "retry_in", delay, "error", err)
			if !sleep(ctx, delay) {
				return nil
			}
			delay = c.backoff(delay)
			continue
		}

		reconnect := c.fsm.Opened()
		c.fire(events.EventOpened)
		delay = c.cfg.InitialDelay
		c.attach(conn)
		c.logger.Info("push channel connected", "reconnect", reconnect)
		if reconnect {
			c.mu.Lock()
			hooks := append([]func(context.Context){}, c.onReconnect...)
			c.mu.Unlock()
			for _, fn := range hooks {
				fn(ctx)
			}
		}

		err = c.readLoop(ctx, conn)
		c.detach()
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.fire(events.EventDropped)
		c.logger.Warn("push channel dropped", "retry_in", delay, "error", err)
		if !sleep(ctx, delay) {
			return nil
		}
		delay = c.backoff(delay)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// attach publishes conn and joins the user room and every task room.
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()
	sort.Strings(rooms)

	if c.cfg.UserID != "" {
		if err := c.emit(conn, events.JoinUserRoom, c.cfg.UserID); err != nil {
			c.logger.Warn("join user room failed", "error", err)
		}
	}
	for _, id := range rooms {
		if err := c.emit(conn, events.JoinTaskRoom, id); err != nil {
			c.logger.Warn("join task room failed", "task", id, "error", err)
		}
	}
}

func (c *Client) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) emit(conn *websocket.Conn, event, id string) error {
	env, err := events.NewEnvelope(event, id)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(env)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Warn("dropping unreadable push frame", "bytes", len(data))
			continue
		}
		env.ReceivedAt = time.Now()
		c.fan.publish(env)
		if c.handler != nil {
			if err := c.handler(ctx, env); err != nil {
				c.logger.Debug("push event not applied", "event", env.Event, "error", err)
			}
		}
	}
}

// fire advances the connection machine. Events that do not apply in the
// current state, such as a failed redial while already reconnecting, are
// ignored.
func (c *Client) fire(event string) {
	if state, err := c.fsm.Fire(event); err == nil {
		c.logger.Debug("push channel state", "state", state)
	}
}

func (c *Client) backoff(d time.Duration) time.Duration {
	d *= 2
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
