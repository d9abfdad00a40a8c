// Package lifecycle owns every mutation of a request: the status machine,
// its thread and the live location exchange.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivamkadam692/WorkConnect/internal/ids"
	"github.com/Shivamkadam692/WorkConnect/internal/metrics"
	"github.com/Shivamkadam692/WorkConnect/internal/models"
	"github.com/Shivamkadam692/WorkConnect/internal/policy"
	"github.com/Shivamkadam692/WorkConnect/internal/presence"
	"github.com/Shivamkadam692/WorkConnect/internal/store"
)

// Service runs request lifecycle operations against a DataStore.
type Service struct {
	store    store.DataStore
	notifier Notifier
	hub      Broadcaster
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// Options wires the optional collaborators of a Service.
type Options struct {
	Notifier Notifier
	Hub      Broadcaster
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewService creates a lifecycle service.
func NewService(ds store.DataStore, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    ds,
		notifier: opts.Notifier,
		hub:      opts.Hub,
		validate: validator.New(),
		logger:   opts.Logger.With().Str("component", "lifecycle").Logger(),
		now:      now,
	}
}

type createInput struct {
	Message string `validate:"max=1000"`
}

type messageInput struct {
	Text string `validate:"required,max=2000"`
}

type locationInput struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lng float64 `validate:"gte=-180,lte=180"`
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}
	return nil
}

// Create opens a pending request from a client to an available worker profile.
func (s *Service) Create(ctx context.Context, actor models.Actor, in models.NewRequest) (*models.Request, error) {
	if actor.Role != models.RoleClient {
		return nil, fmt.Errorf("%w: only clients can send requests", models.ErrUnauthorized)
	}
	if err := s.check(createInput{Message: in.Message}); err != nil {
		return nil, err
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", models.ErrValidation)
	}
	if !models.FitsMoneyScale(in.Price) {
		return nil, fmt.Errorf("%w: price has more than %d decimal places", models.ErrValidation, models.MoneyScale)
	}

	profile, err := s.store.GetWorkerProfile(ctx, in.WorkerProfileID)
	if err != nil {
		return nil, err
	}
	if profile.WorkerID == actor.UserID {
		return nil, fmt.Errorf("%w: cannot send a request to your own profile", models.ErrValidation)
	}
	if profile.Status != models.WorkerAvailable {
		return nil, fmt.Errorf("%w: worker is %s", models.ErrInvalidState, profile.Status)
	}

	now := s.now()
	req := &models.Request{
		ID:                ids.NewUUIDv7(),
		ClientID:          actor.UserID,
		WorkerID:          profile.WorkerID,
		WorkerProfileID:   profile.ID,
		Status:            models.StatusPending,
		Price:             in.Price,
		Message:           strings.TrimSpace(in.Message),
		PreferredDateTime: in.PreferredDateTime,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	metrics.RequestsCreated.Inc()
	s.logger.Info().
		Str("request", req.ID.String()).
		Str("client", req.ClientID.String()).
		Str("profile", req.WorkerProfileID.String()).
		Msg("request created")

	s.emit(ctx, Event{Kind: EventCreated, Request: *req, Actor: actor, At: now})
	return req, nil
}

// Get returns a request the actor is a party to.
func (s *Service) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	req, err := s.authorize(ctx, actor, id, policy.ActionView)
	if err != nil {
		return nil, err
	}
	view := policy.PartyView(actor, req)
	return &view, nil
}

// Authorize loads a request and checks that actor may perform action on it.
func (s *Service) Authorize(ctx context.Context, actor models.Actor, id uuid.UUID, action policy.Action) (*models.Request, error) {
	return s.authorize(ctx, actor, id, action)
}

func (s *Service) authorize(ctx context.Context, actor models.Actor, id uuid.UUID, action policy.Action) (*models.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := policy.Decide(actor, req, action); err != nil {
		return nil, err
	}
	return req, nil
}

// ListForActor lists the actor's requests: those a client created, or those
// bound to a worker.
func (s *Service) ListForActor(ctx context.Context, actor models.Actor, status models.Status, limit, offset int) ([]models.Request, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}
	filter := models.RequestFilter{Status: status, Limit: limit, Offset: offset}
	switch actor.Role {
	case models.RoleClient:
		filter.ClientID = &actor.UserID
	case models.RoleWorker:
		filter.WorkerID = &actor.UserID
	default:
		return nil, fmt.Errorf("%w: unknown role", models.ErrUnauthorized)
	}

	requests, err := s.store.ListRequests(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range requests {
		requests[i] = policy.PartyView(actor, &requests[i])
	}
	return requests, nil
}

// Accept moves a pending request to accepted and marks the worker busy.
func (s *Service) Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	req, err := s.transition(ctx, actor, id, policy.ActionAccept, s.store.AcceptRequest, EventAccepted)
	if err != nil {
		return nil, err
	}
	s.setWorkerStatus(ctx, req, models.WorkerBusy)
	return req, nil
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	return s.transition(ctx, actor, id, policy.ActionReject, s.store.RejectRequest, EventRejected)
}

// MarkStarted records that the in-person engagement has begun.
func (s *Service) MarkStarted(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	return s.transition(ctx, actor, id, policy.ActionStart, s.store.StartRequest, EventStarted)
}

// Complete finishes an accepted request and frees the worker.
func (s *Service) Complete(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	req, err := s.transition(ctx, actor, id, policy.ActionComplete, s.store.CompleteRequest, EventCompleted)
	if err != nil {
		return nil, err
	}
	s.setWorkerStatus(ctx, req, models.WorkerAvailable)
	return req, nil
}

type applyFunc func(ctx context.Context, id uuid.UUID, at time.Time) (*models.Request, error)

// transition checks policy against the current row, then lets the store
// re-check the precondition atomically while applying the change.
func (s *Service) transition(ctx context.Context, actor models.Actor, id uuid.UUID, action policy.Action, apply applyFunc, kind EventKind) (*models.Request, error) {
	if _, err := s.authorize(ctx, actor, id, action); err != nil {
		observeTransition(action, err)
		return nil, err
	}

	at := s.now()
	req, err := apply(ctx, id, at)
	observeTransition(action, err)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request", id.String()).
		Str("action", string(action)).
		Str("status", string(req.Status)).
		Msg("request transitioned")

	s.emit(ctx, Event{Kind: kind, Request: *req, Actor: actor, At: at})
	view := policy.PartyView(actor, req)
	return &view, nil
}

func observeTransition(action policy.Action, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidState):
		result = "invalid_state"
	case errors.Is(err, models.ErrUnauthorized):
		result = "unauthorized"
	default:
		result = "error"
	}
	metrics.Transitions.WithLabelValues(string(action), result).Inc()
}

// setWorkerStatus runs after the transition committed; failures are logged only.
func (s *Service) setWorkerStatus(ctx context.Context, req *models.Request, status models.WorkerStatus) {
	if err := s.store.SetWorkerStatus(ctx, req.WorkerProfileID, status); err != nil {
		s.logger.Error().
			Err(err).
			Str("request", req.ID.String()).
			Str("profile", req.WorkerProfileID.String()).
			Str("status", string(status)).
			Msg("failed to update worker status")
	}
}

// PostMessage appends a message to the request's thread and broadcasts it.
func (s *Service) PostMessage(ctx context.Context, actor models.Actor, id uuid.UUID, text string) (*models.Message, error) {
	if _, err := s.authorize(ctx, actor, id, policy.ActionPostMessage); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if err := s.check(messageInput{Text: text}); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        ids.NewMessageID(),
		RequestID: id,
		SenderID:  actor.UserID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesPosted.Inc()

	s.broadcast(ctx, id, presence.EventNewMessage, MessagePayload{
		RequestID: id,
		ID:        msg.ID,
		Sender:    msg.SenderID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	})
	return msg, nil
}

// ListMessages returns the request's thread in append order.
func (s *Service) ListMessages(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.Message, error) {
	if _, err := s.authorize(ctx, actor, id, policy.ActionReadMessages); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, id)
}

// UpdateLocation stores the actor's position on the request and broadcasts it
// when the other party may see it. The role is taken from the actor's binding.
func (s *Service) UpdateLocation(ctx context.Context, actor models.Actor, id uuid.UUID, lat, lng float64) (*models.Request, error) {
	current, err := s.authorize(ctx, actor, id, policy.ActionUpdateLocation)
	if err != nil {
		return nil, err
	}
	if err := s.check(locationInput{Lat: lat, Lng: lng}); err != nil {
		return nil, err
	}

	role, _ := current.RoleOf(actor.UserID)

	at := s.now()
	req, started, err := s.store.UpdateLocation(ctx, id, role, models.Coordinate{Lat: lat, Lng: lng, UpdatedAt: at})
	if err != nil {
		return nil, err
	}
	metrics.LocationUpdates.WithLabelValues(string(role)).Inc()

	// The worker stops seeing the client once the engagement has started.
	visible := role == models.RoleWorker || policy.ClientLocationVisibleToWorker(req)
	if visible {
		s.broadcast(ctx, id, presence.EventLocationUpdate, LocationPayload{
			RequestID: id,
			Role:      role,
			Lat:       lat,
			Lng:       lng,
			UpdatedAt: at,
		})
		if started {
			s.emit(ctx, Event{Kind: EventTrackingStarted, Request: *req, Actor: actor, At: at})
		}
	}

	view := policy.TrackingView(actor, req)
	return &view, nil
}

// StopTracking clears the actor's tracking flag. Nothing is broadcast.
func (s *Service) StopTracking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	current, err := s.authorize(ctx, actor, id, policy.ActionStopTracking)
	if err != nil {
		return nil, err
	}
	role, _ := current.RoleOf(actor.UserID)

	req, err := s.store.StopTracking(ctx, id, role)
	if err != nil {
		return nil, err
	}
	view := policy.TrackingView(actor, req)
	return &view, nil
}

// TrackingView returns the request with the locations the actor may see.
func (s *Service) TrackingView(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error) {
	req, err := s.authorize(ctx, actor, id, policy.ActionViewTracking)
	if err != nil {
		return nil, err
	}
	view := policy.TrackingView(actor, req)
	return &view, nil
}

func (s *Service) emit(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.OnLifecycleEvent(ctx, ev); err != nil {
		s.logger.Warn().
			Err(err).
			Str("request", ev.Request.ID.String()).
			Str("event", string(ev.Kind)).
			Msg("failed to notify lifecycle event")
	}
}

func (s *Service) broadcast(ctx context.Context, id uuid.UUID, event string, payload any) {
	if s.hub == nil {
		return
	}
	err := s.hub.BroadcastToRequest(ctx, id, event, payload)
	switch {
	case err == nil:
	case errors.Is(err, presence.ErrNoAudience):
		s.logger.Debug().Str("request", id.String()).Str("event", event).Msg("no one in request room")
	default:
		s.logger.Warn().Err(err).Str("request", id.String()).Str("event", event).Msg("broadcast failed")
	}
}
