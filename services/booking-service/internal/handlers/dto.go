package handlers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/syncgw"
)

// weekday accepts "monday", "mon" or 0-6, as a string or a JSON number.
type weekday time.Weekday

func (w *weekday) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	d, err := model.ParseWeekday(raw)
	if err != nil {
		return err
	}
	*w = weekday(d)
	return nil
}

type appointmentResponse struct {
	ID          string      `json:"id"`
	ProviderID  string      `json:"providerId"`
	RequesterID string      `json:"requesterId"`
	Date        string      `json:"date"`
	Weekday     string      `json:"weekday"`
	Time        model.Clock `json:"time"`
	Reason      string      `json:"reason"`
	Status      string      `json:"status"`
	Version     int         `json:"version"`
	CancelledBy string      `json:"cancelledBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func toAppointment(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		RequesterID: a.RequesterID,
		Date:        a.Date.Format(model.DateLayout),
		Weekday:     model.WeekdayName(a.Date.Weekday()),
		Time:        a.Time,
		Reason:      a.Reason,
		Status:      string(a.Status),
		Version:     a.Version,
		CancelledBy: a.CancelledBy,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointments(items []model.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointment(a))
	}
	return out
}

type ruleResponse struct {
	Weekday     string      `json:"weekday"`
	StartTime   model.Clock `json:"startTime"`
	EndTime     model.Clock `json:"endTime"`
	SlotMinutes int         `json:"slotMinutes"`
	IsActive    bool        `json:"isActive"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func toRules(rules []model.AvailabilityRule) []ruleResponse {
	out := make([]ruleResponse, 0, len(rules))
	for _, r := range rules {
		out = append(out, ruleResponse{
			Weekday:     model.WeekdayName(r.Weekday),
			StartTime:   r.Start,
			EndTime:     r.End,
			SlotMinutes: r.SlotMinutes,
			IsActive:    r.Active,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return out
}

type slotResponse struct {
	Weekday   string      `json:"weekday"`
	Date      string      `json:"date"`
	StartTime model.Clock `json:"startTime"`
	EndTime   model.Clock `json:"endTime"`
	Taken     bool        `json:"taken"`
}

func toSlots(slots []availability.Slot) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			Weekday:   model.WeekdayName(s.Weekday),
			Date:      s.Date.Format(model.DateLayout),
			StartTime: s.Start,
			EndTime:   s.End,
			Taken:     s.Taken,
		})
	}
	return out
}

type notificationResponse struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Type        string    `json:"type"`
	RelatedID   string    `json:"relatedId"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toNotifications(items []model.Notification) []notificationResponse {
	out := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			Type:        string(n.Type),
			RelatedID:   n.RelatedID,
			Message:     n.Message,
			IsRead:      n.IsRead,
			CreatedAt:   n.CreatedAt,
		})
	}
	return out
}

type syncResponse struct {
	ServerTime     time.Time              `json:"serverTime"`
	PollIntervalMs int64                  `json:"pollIntervalMs"`
	Appointments   []appointmentResponse  `json:"appointments"`
	Notifications  []notificationResponse `json:"notifications"`
	UnreadCount    int                    `json:"unreadCount"`
}

func toSync(s syncgw.Snapshot) syncResponse {
	return syncResponse{
		ServerTime:     s.ServerTime,
		PollIntervalMs: s.PollInterval.Milliseconds(),
		Appointments:   toAppointments(s.Appointments),
		Notifications:  toNotifications(s.Notifications),
		UnreadCount:    s.UnreadCount,
	}
}

// decodeOptional is used for bodies that may be omitted: an empty body leaves
// dst untouched.
func decodeOptional(body []byte, dst any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
