// Package presence keeps live websocket sessions grouped into rooms and
// delivers JSON events to them.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// Outbound and control event names.
const (
	EventLocationUpdate  = "locationUpdate"
	EventNewMessage      = "newMessage"
	EventNewNotification = "newNotification"
	EventError           = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrNoAudience is returned when a broadcast reached nobody.
var ErrNoAudience = errors.New("no audience")

// Envelope is the wire shape of every socket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Relay fans broadcasts out across server instances.
type Relay interface {
	Publish(ctx context.Context, room string, payload []byte) (int64, error)
	Subscribe(ctx context.Context) (<-chan store.RelayMessage, error)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Logger       zerolog.Logger
	CheckOrigin  func(r *http.Request) bool
	OnConnect    func(conn *Conn)
	OnMessage    func(ctx context.Context, conn *Conn, env Envelope)
	OnDisconnect func(conn *Conn)
	Relay        Relay
	SendBuffer   int
}

// Hub tracks connections and room membership for this instance.
type Hub struct {
	opts     HubOptions
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// NewHub creates a hub.
func NewHub(opts HubOptions) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	return &Hub{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "presence").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

// RequestRoom names the room shared by both parties of a request.
func RequestRoom(id uuid.UUID) string {
	return "request:" + id.String()
}

// UserRoom names the private room of one user.
func UserRoom(id uuid.UUID) string {
	return "user:" + id.String()
}

// Serve upgrades the HTTP request and runs the connection until it closes.
// The connection joins the actor's user room immediately.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, actor models.Actor) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		id:     ids.NewMessageID(),
		actor:  actor,
		ws:     ws,
		send:   make(chan []byte, h.opts.SendBuffer),
		rooms:  make(map[string]struct{}),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
	}

	metrics.SocketConnections.Inc()
	h.Join(conn, UserRoom(actor.UserID))
	if h.opts.OnConnect != nil {
		h.opts.OnConnect(conn)
	}
	h.logger.Debug().
		Str("conn", conn.id).
		Str("user", actor.UserID.String()).
		Msg("socket connected")

	go conn.writePump()
	conn.readPump()
	return nil
}

// Join adds conn to room. Joining twice is a no-op.
func (h *Hub) Join(conn *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[conn] = struct{}{}
	conn.rooms[room] = struct{}{}
}

// Leave removes conn from room.
func (h *Hub) Leave(conn *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, room)
}

func (h *Hub) leaveLocked(conn *Conn, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(conn.rooms, room)
}

// Members returns how many local connections are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Shutdown closes every local connection.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	conns := make(map[*Conn]struct{})
	for _, members := range h.rooms {
		for conn := range members {
			conns[conn] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for conn := range conns {
		conn.Close()
	}
	if len(conns) > 0 {
		h.logger.Info().Int("connections", len(conns)).Msg("closed sockets on shutdown")
	}
}

// remove drops conn from every room and stops its writer.
func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	if conn.closed {
		h.mu.Unlock()
		return
	}
	conn.closed = true
	for room := range conn.rooms {
		h.leaveLocked(conn, room)
	}
	close(conn.send)
	h.mu.Unlock()

	conn.cancel()
	metrics.SocketConnections.Dec()
	if h.opts.OnDisconnect != nil {
		h.opts.OnDisconnect(conn)
	}
	h.logger.Debug().Str("conn", conn.id).Msg("socket disconnected")
}

// BroadcastToRequest sends an event to both parties of a request. It returns
// ErrNoAudience when nobody can receive it; see BroadcastToUser for relay mode.
func (h *Hub) BroadcastToRequest(ctx context.Context, requestID uuid.UUID, event string, payload any) error {
	return h.broadcast(ctx, "request", RequestRoom(requestID), event, payload)
}

// BroadcastToUser sends an event to every connection of a user.
//
// Without a relay, ErrNoAudience means no local connection is in the room.
// With a relay, the publisher only learns how many instances are subscribed,
// so ErrNoAudience means no instance is listening; an empty room on a live
// instance is not detected.
func (h *Hub) BroadcastToUser(ctx context.Context, userID uuid.UUID, event string, payload any) error {
	return h.broadcast(ctx, "user", UserRoom(userID), event, payload)
}

func (h *Hub) broadcast(ctx context.Context, scope, room, event string, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		metrics.Broadcasts.WithLabelValues(scope, "error").Inc()
		return err
	}

	if h.opts.Relay != nil {
		n, err := h.opts.Relay.Publish(ctx, room, data)
		if err != nil {
			metrics.Broadcasts.WithLabelValues(scope, "error").Inc()
			return err
		}
		if n == 0 {
			metrics.Broadcasts.WithLabelValues(scope, "no_audience").Inc()
			return ErrNoAudience
		}
		metrics.Broadcasts.WithLabelValues(scope, "relayed").Inc()
		return nil
	}

	if h.deliver(room, data) == 0 {
		metrics.Broadcasts.WithLabelValues(scope, "no_audience").Inc()
		return fmt.Errorf("%w: %s", ErrNoAudience, room)
	}
	metrics.Broadcasts.WithLabelValues(scope, "delivered").Inc()
	return nil
}

// deliver queues data on every local member of room and returns how many
// accepted it. Members whose queue is full are disconnected.
func (h *Hub) deliver(room string, data []byte) int {
	var (
		delivered int
		slow      []*Conn
	)
	h.mu.RLock()
	for conn := range h.rooms[room] {
		select {
		case conn.send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		h.logger.Warn().Str("conn", conn.id).Str("room", room).Msg("send queue full, dropping connection")
		conn.Close()
	}
	return delivered
}

// Run consumes the relay and delivers to local members until ctx is done.
// Without a relay it returns immediately.
func (h *Hub) Run(ctx context.Context) error {
	if h.opts.Relay == nil {
		return nil
	}
	msgs, err := h.opts.Relay.Subscribe(ctx)
	if err != nil {
		return err
	}
	h.logger.Info().Msg("presence relay subscribed")
	for msg := range msgs {
		h.deliver(msg.Room, msg.Payload)
	}
	return ctx.Err()
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
