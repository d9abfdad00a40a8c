package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// CreateRequestBody is the body of POST /requests.
type CreateRequestBody struct {
	WorkerProfileID   string          `json:"workerProfileId" validate:"required,uuid"`
	Price             decimal.Decimal `json:"price"`
	Message           string          `json:"message" validate:"max=1000"`
	PreferredDateTime *time.Time      `json:"preferredDateTime"`
}

// MessageBody is the body of POST /requests/{id}/messages.
type MessageBody struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// LocationBody is the body of POST /requests/{id}/location.
type LocationBody struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

// RequestListResponse wraps a page of requests.
type RequestListResponse struct {
	Requests []models.Request `json:"requests"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// MessagesResponse wraps a request thread.
type MessagesResponse struct {
	RequestID uuid.UUID        `json:"requestId"`
	Messages  []models.Message `json:"messages"`
}

// CreateRequest handles POST /requests.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := h.decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}

	req, err := h.requests.Create(r.Context(), actor(r), models.NewRequest{
		WorkerProfileID:   uuid.MustParse(body.WorkerProfileID),
		Price:             body.Price,
		Message:           sanitizeText(body.Message),
		PreferredDateTime: body.PreferredDateTime,
	})
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, req)
}

// ListRequests handles GET /requests.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	status := models.Status(r.URL.Query().Get("status"))

	requests, err := h.requests.ListForActor(r.Context(), actor(r), status, limit, offset)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, RequestListResponse{Requests: requests, Limit: limit, Offset: offset})
}

// GetRequest handles GET /requests/{id}.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.Get)
}

// AcceptRequest handles POST /requests/{id}/accept.
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.Accept)
}

// RejectRequest handles POST /requests/{id}/reject.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.Reject)
}

// StartRequest handles POST /requests/{id}/start.
func (h *Handler) StartRequest(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.MarkStarted)
}

// CompleteRequest handles POST /requests/{id}/complete.
func (h *Handler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.Complete)
}

// Tracking handles GET /requests/{id}/tracking.
func (h *Handler) Tracking(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.TrackingView)
}

// StopTracking handles DELETE /requests/{id}/location.
func (h *Handler) StopTracking(w http.ResponseWriter, r *http.Request) {
	h.withRequest(w, r, h.requests.StopTracking)
}

type requestOp func(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Request, error)

// withRequest runs op on the {id} request and writes the result.
func (h *Handler) withRequest(w http.ResponseWriter, r *http.Request, op requestOp) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	req, err := op(r.Context(), actor(r), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, req)
}

// UpdateLocation handles POST /requests/{id}/location.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var body LocationBody
	if err := h.decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}

	req, err := h.requests.UpdateLocation(r.Context(), actor(r), id, *body.Lat, *body.Lng)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, req)
}

// ListMessages handles GET /requests/{id}/messages.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	msgs, err := h.requests.ListMessages(r.Context(), actor(r), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, MessagesResponse{RequestID: id, Messages: msgs})
}

// PostMessage handles POST /requests/{id}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var body MessageBody
	if err := h.decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}

	msg, err := h.requests.PostMessage(r.Context(), actor(r), id, sanitizeText(body.Text))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}
