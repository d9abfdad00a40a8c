package handlers

import (
	"net/http"
)

// CountResponse reports an affected or counted number of notifications.
type CountResponse struct {
	Count int64 `json:"count"`
}

// ListNotifications handles GET /notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	res, err := h.notifications.List(r.Context(), actor(r).UserID, page, limit)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, res)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.UnreadCount(r.Context(), actor(r).UserID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, CountResponse{Count: n})
}

// MarkNotificationRead handles PUT /notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	n, err := h.notifications.MarkRead(r.Context(), id, actor(r).UserID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, n)
}

// MarkAllNotificationsRead handles PUT /notifications/read-all.
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), actor(r).UserID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, CountResponse{Count: n})
}

// DeleteNotification handles DELETE /notifications/{id}.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	if err := h.notifications.Delete(r.Context(), id, actor(r).UserID); err != nil {
		h.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteReadNotifications handles DELETE /notifications/read.
func (h *Handler) DeleteReadNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.DeleteRead(r.Context(), actor(r).UserID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, CountResponse{Count: n})
}
