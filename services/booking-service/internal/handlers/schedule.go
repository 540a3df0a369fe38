package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type ruleRequest struct {
	Weekday     *weekday     `json:"weekday"`
	StartTime   *model.Clock `json:"startTime"`
	EndTime     *model.Clock `json:"endTime"`
	SlotMinutes int          `json:"slotMinutes"`
	IsActive    *bool        `json:"isActive"`
}

type setScheduleRequest struct {
	Rules []ruleRequest `json:"rules"`
}

func (a *API) setSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req setScheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	rules := make([]booking.RuleInput, 0, len(req.Rules))
	for i, rr := range req.Rules {
		if rr.Weekday == nil || rr.StartTime == nil || rr.EndTime == nil {
			badRequest(w, fmt.Sprintf("rules[%d]: weekday, startTime and endTime are required", i))
			return
		}
		active := true
		if rr.IsActive != nil {
			active = *rr.IsActive
		}
		rules = append(rules, booking.RuleInput{
			Weekday:     time.Weekday(*rr.Weekday),
			Start:       *rr.StartTime,
			End:         *rr.EndTime,
			SlotMinutes: rr.SlotMinutes,
			Active:      active,
		})
	}
	saved, err := a.bookings.SetSchedule(r.Context(), actor, rules)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": toRules(saved)})
}

func (a *API) ownSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	rules, err := a.bookings.Schedule(r.Context(), actor.UserID, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": toRules(rules)})
}

func (a *API) providerSchedule(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	rules, err := a.bookings.Schedule(r.Context(), r.PathValue("id"), true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"providerId": r.PathValue("id"),
		"rules":      toRules(rules),
	})
}

func (a *API) providerSlots(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	var anchor time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("anchor")); raw != "" {
		parsed, err := model.ParseDate(raw)
		if err != nil {
			badRequest(w, "anchor must be YYYY-MM-DD")
			return
		}
		anchor = parsed
	}
	slots, err := a.bookings.Slots(r.Context(), r.PathValue("id"), anchor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"providerId": r.PathValue("id"),
		"slots":      toSlots(slots),
	})
}
