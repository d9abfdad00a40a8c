package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// Conn is one websocket session. Room membership and closed are guarded by
// the hub's mutex.
type Conn struct {
	id     string
	actor  models.Actor
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	ctx    context.Context
	cancel context.CancelFunc

	rooms  map[string]struct{}
	closed bool

	closeOnce sync.Once
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Actor returns the identity the connection was opened with.
func (c *Conn) Actor() models.Actor { return c.actor }

// Context is cancelled when the connection closes.
func (c *Conn) Context() context.Context { return c.ctx }

// Send queues an event for this connection only.
func (c *Conn) Send(event string, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.closed {
		return ErrNoAudience
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrNoAudience
	}
}

// ErrorPayload is sent back to the originator of a failed event.
type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// SendError reports a failed inbound event to the sender.
func (c *Conn) SendError(event, kind, message string) {
	_ = c.Send(EventError, ErrorPayload{Event: event, Message: message, Kind: kind})
}

// Close terminates the session.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.hub.remove(c)
		c.ws.Close()
	})
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("conn", c.id).Msg("socket read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.SendError("", "validation", "malformed event")
			continue
		}
		if c.hub.opts.OnMessage != nil {
			c.hub.opts.OnMessage(c.ctx, c, env)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
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

// Join adds the connection to room.
func (c *Conn) Join(room string) { c.hub.Join(c, room) }

// Leave removes the connection from room.
func (c *Conn) Leave(room string) { c.hub.Leave(c, room) }
