package notify

import (
	"fmt"
	"unicode/utf8"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

const previewLimit = 80

func when(a model.Appointment) string {
	return fmt.Sprintf("%s %s at %s", model.WeekdayName(a.Date.Weekday()), a.Date.Format(model.DateLayout), a.Time)
}

func CreatedText(a model.Appointment) string {
	return "New appointment request for " + when(a)
}

// StatusText describes a transition from the recipient's point of view.
func StatusText(a model.Appointment, actorRole string) string {
	switch a.Status {
	case model.StatusConfirmed:
		return "Your appointment on " + when(a) + " was confirmed"
	case model.StatusCancelled:
		if actorRole != "" {
			return fmt.Sprintf("Appointment on %s was cancelled by the %s", when(a), actorRole)
		}
		return "Appointment on " + when(a) + " was cancelled"
	case model.StatusCompleted:
		return "Appointment on " + when(a) + " was completed"
	default:
		return fmt.Sprintf("Appointment on %s is now %s", when(a), a.Status)
	}
}

func MessageText(preview string) string {
	if preview == "" {
		return "New message"
	}
	if utf8.RuneCountInString(preview) > previewLimit {
		r := []rune(preview)
		preview = string(r[:previewLimit]) + "…"
	}
	return "New message: " + preview
}
