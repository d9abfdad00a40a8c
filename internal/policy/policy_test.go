package policy

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

func newRequest(status models.Status) (*models.Request, models.Actor, models.Actor) {
	req := &models.Request{
		ID:              uuid.New(),
		ClientID:        uuid.New(),
		WorkerID:        uuid.New(),
		WorkerProfileID: uuid.New(),
		Status:          status,
	}
	client := models.Actor{UserID: req.ClientID, Role: models.RoleClient}
	worker := models.Actor{UserID: req.WorkerID, Role: models.RoleWorker}
	return req, client, worker
}

func TestDecide_NonPartyIsUnauthorized(t *testing.T) {
	req, _, _ := newRequest(models.StatusAccepted)
	stranger := models.Actor{UserID: uuid.New(), Role: models.RoleWorker}

	for _, action := range []Action{ActionView, ActionAccept, ActionPostMessage, ActionViewTracking, ActionJoinRoom} {
		err := Decide(stranger, req, action)
		assert.ErrorIs(t, err, models.ErrUnauthorized, "action %s", action)
	}
}

func TestDecide_WorkerOnlyActions(t *testing.T) {
	req, client, worker := newRequest(models.StatusPending)

	for _, action := range []Action{ActionAccept, ActionReject} {
		assert.ErrorIs(t, Decide(client, req, action), models.ErrUnauthorized)
		assert.NoError(t, Decide(worker, req, action))
	}
}

func TestDecide_TransitionStates(t *testing.T) {
	tests := []struct {
		status models.Status
		action Action
		ok     bool
	}{
		{models.StatusPending, ActionAccept, true},
		{models.StatusPending, ActionReject, true},
		{models.StatusPending, ActionStart, false},
		{models.StatusPending, ActionComplete, false},
		{models.StatusAccepted, ActionAccept, false},
		{models.StatusAccepted, ActionReject, false},
		{models.StatusAccepted, ActionStart, true},
		{models.StatusAccepted, ActionComplete, true},
		{models.StatusRejected, ActionAccept, false},
		{models.StatusRejected, ActionComplete, false},
		{models.StatusCompleted, ActionAccept, false},
		{models.StatusCompleted, ActionComplete, false},
		{models.StatusCompleted, ActionStart, false},
	}
	for _, tt := range tests {
		req, _, worker := newRequest(tt.status)
		err := Decide(worker, req, tt.action)
		if tt.ok {
			assert.NoError(t, err, "%s from %s", tt.action, tt.status)
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidState, "%s from %s", tt.action, tt.status)
		}
	}
}

func TestDecide_StartOnlyOnce(t *testing.T) {
	req, _, worker := newRequest(models.StatusAccepted)
	now := time.Now()
	req.LoadedAt = &now

	assert.ErrorIs(t, Decide(worker, req, ActionStart), models.ErrInvalidState)
	assert.NoError(t, Decide(worker, req, ActionComplete))
}

func TestDecide_MessagingWindow(t *testing.T) {
	for status, ok := range map[models.Status]bool{
		models.StatusPending:   true,
		models.StatusAccepted:  true,
		models.StatusRejected:  false,
		models.StatusCompleted: false,
	} {
		req, client, worker := newRequest(status)
		for _, actor := range []models.Actor{client, worker} {
			err := Decide(actor, req, ActionPostMessage)
			if ok {
				assert.NoError(t, err, status)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidState, status)
			}
			assert.NoError(t, Decide(actor, req, ActionReadMessages))
		}
	}
}

func TestDecide_TrackingClosedAfterCompletion(t *testing.T) {
	req, client, worker := newRequest(models.StatusCompleted)

	for _, actor := range []models.Actor{client, worker} {
		for _, action := range []Action{ActionUpdateLocation, ActionViewTracking, ActionStopTracking} {
			assert.ErrorIs(t, Decide(actor, req, action), models.ErrInvalidState)
		}
	}
}

// Tracking runs from acceptance until completion: a pending request has
// nobody travelling yet, so location reads and writes are refused.
func TestDecide_TrackingOpensOnAcceptance(t *testing.T) {
	for status, ok := range map[models.Status]bool{
		models.StatusPending:   false,
		models.StatusAccepted:  true,
		models.StatusRejected:  false,
		models.StatusCompleted: false,
	} {
		req, client, worker := newRequest(status)
		for _, actor := range []models.Actor{client, worker} {
			for _, action := range []Action{ActionUpdateLocation, ActionViewTracking, ActionStopTracking} {
				err := Decide(actor, req, action)
				if ok {
					assert.NoError(t, err, "%s %s", status, action)
				} else {
					assert.ErrorIs(t, err, models.ErrInvalidState, "%s %s", status, action)
				}
			}
		}
	}
	assert.False(t, CanTrack(models.StatusPending))
}

func TestTrackingView_HidesClientLocationAfterStart(t *testing.T) {
	req, client, worker := newRequest(models.StatusAccepted)
	req.ClientLocation = &models.Coordinate{Lat: 18.52, Lng: 73.85}
	req.WorkerLocation = &models.Coordinate{Lat: 18.50, Lng: 73.80}
	req.TrackingActiveWorker = true

	view := TrackingView(worker, req)
	require.NotNil(t, view.ClientLocation)

	now := time.Now()
	req.LoadedAt = &now
	view = TrackingView(worker, req)
	assert.Nil(t, view.ClientLocation)
	assert.NotNil(t, req.ClientLocation, "the stored request must not be modified")

	view = TrackingView(client, req)
	assert.NotNil(t, view.WorkerLocation)
}

func TestTrackingView_WorkerLocationNeedsActiveTracking(t *testing.T) {
	req, client, _ := newRequest(models.StatusAccepted)
	req.WorkerLocation = &models.Coordinate{Lat: 1, Lng: 2}

	assert.Nil(t, TrackingView(client, req).WorkerLocation)

	req.TrackingActiveWorker = true
	assert.NotNil(t, TrackingView(client, req).WorkerLocation)
}

func TestPartyView(t *testing.T) {
	req, client, worker := newRequest(models.StatusAccepted)
	req.ClientLocation = &models.Coordinate{Lat: 1, Lng: 1}
	req.WorkerLocation = &models.Coordinate{Lat: 2, Lng: 2}

	cv := PartyView(client, req)
	assert.NotNil(t, cv.ClientLocation)
	assert.Nil(t, cv.WorkerLocation)

	wv := PartyView(worker, req)
	assert.Nil(t, wv.ClientLocation)
	assert.NotNil(t, wv.WorkerLocation)
}
