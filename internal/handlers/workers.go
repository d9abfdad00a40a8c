package handlers

import (
	"fmt"
	"net/http"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

// WorkerStatusBody is the body of PUT /workers/{id}/status.
type WorkerStatusBody struct {
	Status models.WorkerStatus `json:"status" validate:"required,oneof=available offline"`
}

// SetWorkerStatus handles PUT /workers/{id}/status. Only the profile's worker
// may toggle it, and a busy profile stays busy until its request completes.
func (h *Handler) SetWorkerStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	var body WorkerStatusBody
	if err := h.decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}

	ctx := r.Context()
	profile, err := h.db.GetWorkerProfile(ctx, id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	caller := actor(r)
	if caller.Role != models.RoleWorker || profile.WorkerID != caller.UserID {
		h.Fail(w, r, fmt.Errorf("%w: not your profile", models.ErrUnauthorized))
		return
	}
	if profile.Status == models.WorkerBusy {
		h.Fail(w, r, fmt.Errorf("%w: profile is busy with an accepted request", models.ErrInvalidState))
		return
	}

	if err := h.db.SetWorkerStatus(ctx, id, body.Status); err != nil {
		h.Fail(w, r, err)
		return
	}
	profile.Status = body.Status
	h.JSON(w, http.StatusOK, profile)
}
