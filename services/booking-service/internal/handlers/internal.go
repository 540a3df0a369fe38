package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type completeRequest struct {
	AsOf string `json:"asOf"`
}

// completePast is the maintenance hook for the confirmed→completed sweep.
// asOf defaults to now; dates strictly before it are completed.
func (a *API) completePast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, "could not read body")
		return
	}
	var req completeRequest
	if err := decodeOptional(body, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	asOf := a.bookings.Now()
	if req.AsOf != "" {
		d, err := model.ParseDate(req.AsOf)
		if err != nil {
			badRequest(w, "asOf must be YYYY-MM-DD")
			return
		}
		asOf = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, asOf.Location())
	}
	n, err := a.bookings.CompletePast(r.Context(), asOf)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"completed": n,
		"asOf":      asOf.Format(model.DateLayout),
	})
}

type messageRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Preview     string `json:"preview"`
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	n, err := a.notifier.Message(r.Context(), req.SenderID, req.RecipientID, req.Preview)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toNotifications([]model.Notification{n})[0])
}
