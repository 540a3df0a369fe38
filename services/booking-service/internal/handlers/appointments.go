package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

const idempotencyHeader = "Idempotency-Key"

type createAppointmentRequest struct {
	ProviderID string       `json:"providerId"`
	Weekday    *weekday     `json:"weekday"`
	StartTime  *model.Clock `json:"startTime"`
	Reason     string       `json:"reason"`
}

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Weekday == nil || req.StartTime == nil {
		badRequest(w, "weekday and startTime are required")
		return
	}

	appt, replayed, err := a.bookings.Book(r.Context(), actor, booking.BookRequest{
		ProviderID:     strings.TrimSpace(req.ProviderID),
		Weekday:        time.Weekday(*req.Weekday),
		StartTime:      *req.StartTime,
		Reason:         req.Reason,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, toAppointment(appt))
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Version *int   `json:"version,omitempty"`
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	to, ok := model.ParseStatus(req.Status)
	if !ok {
		badRequest(w, "status must be one of pending, confirmed, cancelled, completed")
		return
	}
	appt, err := a.bookings.Transition(r.Context(), actor, r.PathValue("id"), to, req.Version)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(appt))
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var statuses []model.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			s, ok := model.ParseStatus(strings.TrimSpace(part))
			if !ok {
				badRequest(w, "unknown status "+strings.TrimSpace(part))
				return
			}
			statuses = append(statuses, s)
		}
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	upcoming, ok := queryBool(r, "upcoming")
	if !ok {
		badRequest(w, "upcoming must be true or false")
		return
	}
	var from time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			badRequest(w, "from must be a YYYY-MM-DD date")
			return
		}
		from = d
	}
	items, err := a.bookings.List(r.Context(), actor, booking.ListQuery{
		Statuses: statuses,
		From:     from,
		Upcoming: upcoming,
		Limit:    limit,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": toAppointments(items)})
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	appt, err := a.bookings.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointment(appt))
}
