package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentBody is reported by the payment collaborator once a charge succeeds.
type PaymentBody struct {
	RequestID string          `json:"requestId" validate:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
}

// PaymentReceived handles POST /internal/payments.
func (h *Handler) PaymentReceived(w http.ResponseWriter, r *http.Request) {
	var body PaymentBody
	if err := h.decode(r, &body); err != nil {
		h.Fail(w, r, err)
		return
	}

	n, err := h.notifications.PaymentReceived(r.Context(), uuid.MustParse(body.RequestID), body.Amount)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.logger.Info().
		Str("request", body.RequestID).
		Str("amount", body.Amount.String()).
		Msg("payment recorded")
	h.JSON(w, http.StatusCreated, n)
}
