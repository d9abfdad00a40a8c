package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// EventKind names a committed change to a request.
type EventKind string

const (
	EventCreated         EventKind = "created"
	EventAccepted        EventKind = "accepted"
	EventRejected        EventKind = "rejected"
	EventStarted         EventKind = "started"
	EventCompleted       EventKind = "completed"
	EventTrackingStarted EventKind = "tracking_started"
)

// Event describes a committed change. Actor is who caused it.
type Event struct {
	Kind    EventKind
	Request models.Request
	Actor   models.Actor
	At      time.Time
}

// Notifier receives lifecycle events after they commit.
type Notifier interface {
	OnLifecycleEvent(ctx context.Context, ev Event) error
}

// Broadcaster delivers live events to a request's room.
type Broadcaster interface {
	BroadcastToRequest(ctx context.Context, requestID uuid.UUID, event string, payload any) error
}

// LocationPayload is broadcast on every visible location update.
type LocationPayload struct {
	RequestID uuid.UUID   `json:"requestId"`
	Role      models.Role `json:"role"`
	Lat       float64     `json:"lat"`
	Lng       float64     `json:"lng"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// MessagePayload is broadcast when a message is appended to a thread.
type MessagePayload struct {
	RequestID uuid.UUID `json:"requestId"`
	ID        string    `json:"id"`
	Sender    uuid.UUID `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
