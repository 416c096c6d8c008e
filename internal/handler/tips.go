package handler

import (
	"io"
	"net/http"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/models"
)

// CreateTip records a tip. Without an explicit creator_id the tip goes to
// the session creator.
func (h *Handler) CreateTip(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTipInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if req.CreatorID == 0 {
		if cur := h.app.Sessions.Current(); cur != nil {
			req.CreatorID = cur.ID
		}
	}
	created, err := h.app.Queries.CreateTip(r.Context(), req)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func tipsOrEmpty(tips []models.Tip) []models.Tip {
	if tips == nil {
		return []models.Tip{}
	}
	return tips
}

func (h *Handler) RecentTips(w http.ResponseWriter, r *http.Request) {
	tips, err := h.app.Queries.RecentTips(r.Context())
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tipsOrEmpty(tips))
}

func (h *Handler) TipsForCreator(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	tips, err := h.app.Queries.TipsForCreator(r.Context(), id)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tipsOrEmpty(tips))
}

func (h *Handler) TipTotal(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	total, err := h.app.Queries.TipTotal(r.Context(), id)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, total)
}

// Quote converts ?amount= (USD) into SOL.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.app.Prices == nil {
		writeMessage(w, http.StatusServiceUnavailable, "pricing is not configured")
		return
	}
	amount, err := models.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, h.app.Logger, &api.ValidationError{Field: "amount", Message: "must be a decimal number", Err: err})
		return
	}
	if !amount.IsPositive() {
		writeError(w, h.app.Logger, api.Invalid("amount", "must be greater than zero"))
		return
	}
	q, err := h.app.Prices.Quote(r.Context(), amount)
	if err != nil {
		h.app.Logger.Warn("price lookup failed", "error", err)
		writeMessage(w, http.StatusBadGateway, "price lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Webhook validates a provider event and forwards it to the backend.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev, err := api.ParseWebhook(raw)
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	if err := h.app.Queries.ForwardWebhook(r.Context(), ev); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"type": ev.EventType(), "status": "forwarded"})
}
