// Package policy decides whether an actor may perform an action on a request
// in its current state. Every function here is pure.
package policy

import (
	"fmt"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// Action is something an actor attempts on a request.
type Action string

const (
	ActionView           Action = "view"
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionStart          Action = "start"
	ActionComplete       Action = "complete"
	ActionPostMessage    Action = "post_message"
	ActionReadMessages   Action = "read_messages"
	ActionUpdateLocation Action = "update_location"
	ActionStopTracking   Action = "stop_tracking"
	ActionViewTracking   Action = "view_tracking"
	ActionJoinRoom       Action = "join_room"
)

// workerOnly lists actions reserved for the bound worker.
var workerOnly = map[Action]bool{
	ActionAccept:   true,
	ActionReject:   true,
	ActionStart:    true,
	ActionComplete: true,
}

// Decide returns nil if actor may perform action on req now. It returns an
// error wrapping models.ErrUnauthorized when the actor is not a party (or is
// the wrong party), and models.ErrInvalidState when the request's state does
// not allow the action.
func Decide(actor models.Actor, req *models.Request, action Action) error {
	role, ok := req.RoleOf(actor.UserID)
	if !ok {
		return fmt.Errorf("%w: not a party to this request", models.ErrUnauthorized)
	}
	if workerOnly[action] && role != models.RoleWorker {
		return fmt.Errorf("%w: only the assigned worker may %s this request", models.ErrUnauthorized, action)
	}

	switch action {
	case ActionView, ActionReadMessages, ActionJoinRoom:
		return nil
	case ActionAccept, ActionReject:
		return requireStatus(req, action, models.StatusPending)
	case ActionStart:
		if err := requireStatus(req, action, models.StatusAccepted); err != nil {
			return err
		}
		if req.Started() {
			return fmt.Errorf("%w: request already started", models.ErrInvalidState)
		}
		return nil
	case ActionComplete:
		return requireStatus(req, action, models.StatusAccepted)
	case ActionPostMessage:
		if !CanMessage(req.Status) {
			return fmt.Errorf("%w: messaging not allowed for a %s request", models.ErrInvalidState, req.Status)
		}
		return nil
	case ActionUpdateLocation, ActionStopTracking, ActionViewTracking:
		if !CanTrack(req.Status) {
			return fmt.Errorf("%w: tracking is not available for a %s request", models.ErrInvalidState, req.Status)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
}

func requireStatus(req *models.Request, action Action, want models.Status) error {
	if req.Status != want {
		return fmt.Errorf("%w: cannot %s a %s request", models.ErrInvalidState, action, req.Status)
	}
	return nil
}

// CanMessage reports whether the thread accepts new messages in status s.
func CanMessage(s models.Status) bool {
	return s == models.StatusPending || s == models.StatusAccepted
}

// CanTrack reports whether location reads and writes are open in status s.
func CanTrack(s models.Status) bool {
	return s == models.StatusAccepted
}

// ClientLocationVisibleToWorker reports whether the worker may see the
// client's location. It stops once the engagement has started.
func ClientLocationVisibleToWorker(req *models.Request) bool {
	return CanTrack(req.Status) && !req.Started()
}

// WorkerLocationVisibleToClient reports whether the client may see the
// worker's location.
func WorkerLocationVisibleToClient(req *models.Request) bool {
	return CanTrack(req.Status) && req.TrackingActiveWorker
}

// TrackingView returns a copy of req with the locations the actor may not
// see removed. The caller must have passed Decide for ActionViewTracking.
func TrackingView(actor models.Actor, req *models.Request) models.Request {
	view := *req
	role, _ := req.RoleOf(actor.UserID)
	switch role {
	case models.RoleWorker:
		if !ClientLocationVisibleToWorker(req) {
			view.ClientLocation = nil
		}
	case models.RoleClient:
		if !WorkerLocationVisibleToClient(req) {
			view.WorkerLocation = nil
		}
	}
	return view
}

// PartyView returns a copy of req for a plain read: the actor keeps their own
// location and never sees the counterpart's. Counterpart locations are only
// served through TrackingView.
func PartyView(actor models.Actor, req *models.Request) models.Request {
	view := *req
	role, _ := req.RoleOf(actor.UserID)
	switch role {
	case models.RoleWorker:
		view.ClientLocation = nil
	case models.RoleClient:
		view.WorkerLocation = nil
	default:
		view.ClientLocation = nil
		view.WorkerLocation = nil
	}
	return view
}
