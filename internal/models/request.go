package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// Coordinate is a last-known location snapshot.
type Coordinate struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one entry of a request's thread.
type Message struct {
	ID        string    `json:"id"` // ULID
	RequestID uuid.UUID `json:"requestId"`
	SenderID  uuid.UUID `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Request is a single client/worker engagement.
type Request struct {
	ID                uuid.UUID       `json:"id"`
	ClientID          uuid.UUID       `json:"client"`
	WorkerID          uuid.UUID       `json:"worker"`
	WorkerProfileID   uuid.UUID       `json:"workerProfile"`
	Status            Status          `json:"status"`
	Price             decimal.Decimal `json:"price"`
	Message           string          `json:"message,omitempty"`
	PreferredDateTime *time.Time      `json:"preferredDateTime,omitempty"`

	ClientLocation       *Coordinate `json:"clientLocation,omitempty"`
	WorkerLocation       *Coordinate `json:"workerLocation,omitempty"`
	TrackingActiveClient bool        `json:"trackingActiveClient"`
	TrackingActiveWorker bool        `json:"trackingActiveWorker"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	AcceptedAt  *time.Time `json:"acceptedAt,omitempty"`
	RejectedAt  *time.Time `json:"rejectedAt,omitempty"`
	LoadedAt    *time.Time `json:"loadedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// RoleOf returns the role userID plays in the request, or false if it is not a party.
func (r *Request) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case r.ClientID:
		return RoleClient, true
	case r.WorkerID:
		return RoleWorker, true
	}
	return "", false
}

// Counterpart returns the other party's user id.
func (r *Request) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == r.ClientID {
		return r.WorkerID
	}
	return r.ClientID
}

// TrackingActive reports whether role is currently sharing its location.
func (r *Request) TrackingActive(role Role) bool {
	if role == RoleClient {
		return r.TrackingActiveClient
	}
	return r.TrackingActiveWorker
}

// Started reports whether the in-person engagement has begun.
func (r *Request) Started() bool {
	return r.LoadedAt != nil
}

// MoneyScale is the number of decimal places stored for prices and amounts.
const MoneyScale = 2

// FitsMoneyScale reports whether d carries no more than MoneyScale decimal places.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

// NewRequest holds the fields a client supplies when creating a request.
type NewRequest struct {
	ClientID          uuid.UUID
	WorkerProfileID   uuid.UUID
	Price             decimal.Decimal
	Message           string
	PreferredDateTime *time.Time
}

// RequestFilter narrows request listings.
type RequestFilter struct {
	ClientID *uuid.UUID
	WorkerID *uuid.UUID
	Status   Status
	Limit    int
	Offset   int
}
