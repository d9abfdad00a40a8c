package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/lifecycle"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/policy"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
)

// Inbound socket events.
const (
	EventJoinUser       = "joinUser"
	EventJoin           = "join"
	EventLeave          = "leave"
	EventLocationUpdate = "locationUpdate"
	EventStopTracking   = "stopTracking"
)

// ServeWS handles GET /ws.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.Error(w, http.StatusServiceUnavailable, "live updates unavailable")
		return
	}
	if err := h.hub.Serve(w, r, actor(r)); err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
	}
}

// SocketDispatcher routes inbound socket events to the request lifecycle.
type SocketDispatcher struct {
	requests *lifecycle.Service
	logger   zerolog.Logger
}

// NewSocketDispatcher creates a dispatcher; pass its Handle as HubOptions.OnMessage.
func NewSocketDispatcher(requests *lifecycle.Service, logger zerolog.Logger) *SocketDispatcher {
	return &SocketDispatcher{
		requests: requests,
		logger:   logger.With().Str("component", "socket").Logger(),
	}
}

type joinUserData struct {
	UserID uuid.UUID `json:"userId"`
}

type roomData struct {
	RequestID uuid.UUID `json:"requestId"`
}

// locationData carries a role for compatibility; the bound role is used instead.
type locationData struct {
	RequestID uuid.UUID   `json:"requestId"`
	Role      models.Role `json:"role,omitempty"`
	Lat       *float64    `json:"lat"`
	Lng       *float64    `json:"lng"`
}

// Handle processes one inbound event. Failures go back to the sender only.
func (d *SocketDispatcher) Handle(ctx context.Context, conn *presence.Conn, env presence.Envelope) {
	if err := d.handle(ctx, conn, env); err != nil {
		d.logger.Debug().
			Err(err).
			Str("conn", conn.ID()).
			Str("event", env.Event).
			Msg("socket event rejected")
		conn.SendError(env.Event, errorKind(err), err.Error())
	}
}

func (d *SocketDispatcher) handle(ctx context.Context, conn *presence.Conn, env presence.Envelope) error {
	caller := conn.Actor()

	switch env.Event {
	case EventJoinUser:
		var data joinUserData
		if err := decodeEvent(env, &data); err != nil {
			return err
		}
		if data.UserID != caller.UserID {
			return fmt.Errorf("%w: can only join your own user room", models.ErrUnauthorized)
		}
		conn.Join(presence.UserRoom(data.UserID))
		return nil

	case EventJoin:
		var data roomData
		if err := decodeEvent(env, &data); err != nil {
			return err
		}
		if _, err := d.requests.Authorize(ctx, caller, data.RequestID, policy.ActionJoinRoom); err != nil {
			return err
		}
		conn.Join(presence.RequestRoom(data.RequestID))
		return nil

	case EventLeave:
		var data roomData
		if err := decodeEvent(env, &data); err != nil {
			return err
		}
		conn.Leave(presence.RequestRoom(data.RequestID))
		return nil

	case EventLocationUpdate:
		var data locationData
		if err := decodeEvent(env, &data); err != nil {
			return err
		}
		if data.Lat == nil || data.Lng == nil {
			return fmt.Errorf("%w: lat and lng are required", models.ErrValidation)
		}
		_, err := d.requests.UpdateLocation(ctx, caller, data.RequestID, *data.Lat, *data.Lng)
		return err

	case EventStopTracking:
		var data roomData
		if err := decodeEvent(env, &data); err != nil {
			return err
		}
		_, err := d.requests.StopTracking(ctx, caller, data.RequestID)
		return err
	}
	return fmt.Errorf("%w: unknown event %q", models.ErrValidation, env.Event)
}

func decodeEvent(env presence.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s needs data", models.ErrValidation, env.Event)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: malformed %s data", models.ErrValidation, env.Event)
	}
	return nil
}
