package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyRequestReceived  NotificationType = "request_received"
	NotifyRequestAccepted  NotificationType = "request_accepted"
	NotifyRequestRejected  NotificationType = "request_rejected"
	NotifyServiceStarted   NotificationType = "service_started"
	NotifyServiceCompleted NotificationType = "service_completed"
	NotifyLocationUpdate   NotificationType = "location_update"
	NotifyPaymentReceived  NotificationType = "payment_received"
	NotifySystem           NotificationType = "system"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is a persisted feed item for one recipient.
type Notification struct {
	ID             uuid.UUID        `json:"id"`
	RecipientID    uuid.UUID        `json:"recipient" validate:"required"`
	SenderID       *uuid.UUID       `json:"sender,omitempty"`
	Type           NotificationType `json:"type" validate:"required,oneof=request_received request_accepted request_rejected service_started service_completed location_update payment_received system"`
	Title          string           `json:"title" validate:"required,max=200"`
	Message        string           `json:"message" validate:"required,max=2000"`
	RelatedRequest *uuid.UUID       `json:"relatedRequest,omitempty"`
	IsRead         bool             `json:"isRead"`
	Priority       Priority         `json:"priority" validate:"required,oneof=low medium high urgent"`
	CreatedAt      time.Time        `json:"createdAt"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
}

// Expired reports whether the notification has passed its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
