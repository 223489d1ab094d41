package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Connection lifecycle: pending-auth -> active -> closed.
const (
	statePending int32 = iota
	stateActive
	stateClosed
)

// Client is one websocket connection bound to one Session.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	session Session
	send    chan []byte
	limiter *rate.Limiter

	state     atomic.Int32
	closeOnce sync.Once
}

// NewClient wraps conn for hub. conn may be nil, in which case the client
// only queues frames and never runs pumps.
func NewClient(h *Hub, conn *websocket.Conn, session Session) *Client {
	limit := rate.Inf
	if h.opts.RateLimitRPS > 0 {
		limit = rate.Limit(h.opts.RateLimitRPS)
	}
	if conn != nil && h.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(h.opts.MaxMessageSize)
	}
	return &Client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		session: session,
		send:    make(chan []byte, h.opts.SendBuffer),
		limiter: rate.NewLimiter(limit, h.opts.RateLimitBurst),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() string { return c.session.Identity }

func (c *Client) Session() Session { return c.session }

// Outbox exposes queued outbound frames.
func (c *Client) Outbox() <-chan []byte { return c.send }

func (c *Client) Active() bool { return c.state.Load() == stateActive }

func (c *Client) activate() bool {
	return c.state.CompareAndSwap(statePending, stateActive)
}

// deactivate reports whether this call moved an active client to closed.
func (c *Client) deactivate() bool {
	return c.state.CompareAndSwap(stateActive, stateClosed)
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	c.closeOnce.Do(func() {
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.hub.log.Warn("Failed to close connection", "client_id", c.id, "error", err)
		}
	})
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.log.Warn("Failed to set read deadline", "client_id", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.hub.log.Warn("Frame exceeded maximum size", "client_id", c.id, "identity", c.Identity(), "limit", c.hub.opts.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.hub.log.Debug("Client disconnected", "client_id", c.id, "identity", c.Identity())
	default:
		c.hub.log.Warn("Websocket read error", "client_id", c.id, "identity", c.Identity(), "error", err)
	}
}

// readPump decodes frames and dispatches them one at a time, so events from
// a single connection are handled in arrival order. Unregister runs only
// after the last dispatch has returned.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.closeConn()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.hub.log.Warn("Discarding malformed frame", "client_id", c.id, "identity", c.Identity())
			continue
		}

		if !c.limiter.Allow() {
			c.hub.log.Warn("Rate limit exceeded, discarding event", "client_id", c.id, "identity", c.Identity(), "event", env.Event)
			c.hub.metrics.Events.WithLabelValues(eventLabel(env.Event), outcomeRateLimited).Inc()
			c.hub.reply(c, env, ackFailed())
			continue
		}

		c.hub.Dispatch(ctx, c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					c.hub.log.Warn("Failed to write frame", "client_id", c.id, "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}
