// Package notify persists notification feeds and pushes new items to the
// recipient's live sessions.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/lifecycle"
	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// LocationNoticeTTL is how long a location notice stays in the feed.
const LocationNoticeTTL = 24 * time.Hour

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pusher delivers a live event to every session of a user.
type Pusher interface {
	BroadcastToUser(ctx context.Context, userID uuid.UUID, event string, payload any) error
}

// Service creates and queries notifications.
type Service struct {
	store    store.DataStore
	pusher   Pusher
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// Options wires the optional collaborators of a Service.
type Options struct {
	Pusher Pusher
	Logger zerolog.Logger
	Now    func() time.Time
}

// NewService creates a notification service.
func NewService(ds store.DataStore, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    ds,
		pusher:   opts.Pusher,
		validate: validator.New(),
		logger:   opts.Logger.With().Str("component", "notify").Logger(),
		now:      now,
	}
}

// Payload is pushed to the recipient as a newNotification event.
type Payload struct {
	ID        uuid.UUID               `json:"id"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Type      models.NotificationType `json:"type"`
	Priority  models.Priority         `json:"priority"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Notify validates and persists n, then pushes it to the recipient. A failed
// push is logged and does not undo the write.
func (s *Service) Notify(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = ids.NewUUIDv7()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}
	if n.RecipientID == uuid.Nil {
		return nil, fmt.Errorf("%w: recipient is required", models.ErrValidation)
	}
	if err := s.validate.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	if s.pusher != nil {
		err := s.pusher.BroadcastToUser(ctx, n.RecipientID, presence.EventNewNotification, Payload{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			Priority:  n.Priority,
			CreatedAt: n.CreatedAt,
		})
		if err != nil {
			metrics.NotificationPushFailures.Inc()
			logEvent := s.logger.Warn
			if errors.Is(err, presence.ErrNoAudience) {
				logEvent = s.logger.Debug
			}
			logEvent().Err(err).
				Str("notification", n.ID.String()).
				Str("recipient", n.RecipientID.String()).
				Msg("notification not pushed")
		}
	}
	return n, nil
}

// OnLifecycleEvent turns a committed request change into a notification for
// the other party.
func (s *Service) OnLifecycleEvent(ctx context.Context, ev lifecycle.Event) error {
	n, ok := fromEvent(ev)
	if !ok {
		return nil
	}
	_, err := s.Notify(ctx, n)
	return err
}

func fromEvent(ev lifecycle.Event) (*models.Notification, bool) {
	req := ev.Request
	sender := ev.Actor.UserID
	related := req.ID
	n := &models.Notification{
		SenderID:       &sender,
		RelatedRequest: &related,
		CreatedAt:      ev.At,
	}

	switch ev.Kind {
	case lifecycle.EventCreated:
		n.RecipientID = req.WorkerID
		n.Type = models.NotifyRequestReceived
		n.Title = "New Service Request"
		n.Message = "You have a new service request"
		if !req.Price.IsZero() {
			n.Message += " offering " + req.Price.StringFixed(2)
		}
		n.Priority = models.PriorityHigh
	case lifecycle.EventAccepted:
		n.RecipientID = req.ClientID
		n.Type = models.NotifyRequestAccepted
		n.Title = "Service Request Accepted"
		n.Message = "Your service request has been accepted"
		n.Priority = models.PriorityHigh
	case lifecycle.EventRejected:
		n.RecipientID = req.ClientID
		n.Type = models.NotifyRequestRejected
		n.Title = "Service Request Rejected"
		n.Message = "Your service request has been rejected"
		n.Priority = models.PriorityHigh
	case lifecycle.EventStarted:
		n.RecipientID = req.ClientID
		n.Type = models.NotifyServiceStarted
		n.Title = "Service Started"
		n.Message = "The worker has started your service"
		n.Priority = models.PriorityMedium
	case lifecycle.EventCompleted:
		n.RecipientID = req.ClientID
		n.Type = models.NotifyServiceCompleted
		n.Title = "Service Completed"
		n.Message = "The worker has completed your service"
		n.Priority = models.PriorityHigh
	case lifecycle.EventTrackingStarted:
		who := "Worker"
		if ev.Actor.UserID == req.ClientID {
			who = "Client"
		}
		expires := ev.At.Add(LocationNoticeTTL)
		n.RecipientID = req.Counterpart(ev.Actor.UserID)
		n.Type = models.NotifyLocationUpdate
		n.Title = "Location Updated"
		n.Message = who + " started sharing their location"
		n.Priority = models.PriorityLow
		n.ExpiresAt = &expires
	default:
		return nil, false
	}
	return n, true
}

// PaymentReceived notifies the worker of a request that its payment succeeded.
func (s *Service) PaymentReceived(ctx context.Context, requestID uuid.UUID, amount decimal.Decimal) (*models.Notification, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	}
	if !models.FitsMoneyScale(amount) {
		return nil, fmt.Errorf("%w: amount has more than %d decimal places", models.ErrValidation, models.MoneyScale)
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	sender := req.ClientID
	related := req.ID
	return s.Notify(ctx, &models.Notification{
		RecipientID:    req.WorkerID,
		SenderID:       &sender,
		Type:           models.NotifyPaymentReceived,
		Title:          "Payment Received",
		Message:        "Payment of " + amount.StringFixed(2) + " has been received for your service",
		RelatedRequest: &related,
		Priority:       models.PriorityHigh,
	})
}

// System sends an operator message to one user.
func (s *Service) System(ctx context.Context, userID uuid.UUID, title, message string, priority models.Priority) (*models.Notification, error) {
	return s.Notify(ctx, &models.Notification{
		RecipientID: userID,
		Type:        models.NotifySystem,
		Title:       title,
		Message:     message,
		Priority:    priority,
	})
}

// Page is one page of a user's feed.
type Page struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unreadCount"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	HasMore       bool                  `json:"hasMore"`
}

// List returns a page of the user's unexpired notifications, newest first.
// Pages start at 1.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	now := s.now()
	items, err := s.store.ListNotifications(ctx, userID, limit+1, (page-1)*limit, now)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUnreadNotifications(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return &Page{
		Notifications: items,
		UnreadCount:   unread,
		Page:          page,
		Limit:         limit,
		HasMore:       hasMore,
	}, nil
}

// UnreadCount counts the user's unread, unexpired notifications.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID, s.now())
}

// MarkRead marks one of the user's notifications read. An expired one is not found.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	return s.store.MarkNotificationRead(ctx, id, userID, s.now())
}

// MarkAllRead marks every notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, userID)
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.DeleteNotification(ctx, id, userID, s.now())
}

// DeleteRead removes every read notification of the user.
func (s *Service) DeleteRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.DeleteReadNotifications(ctx, userID)
}
