package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

type RuleInput struct {
	Weekday     time.Weekday
	Start       model.Clock
	End         model.Clock
	SlotMinutes int
	Active      bool
}

// SetSchedule stores the provider's weekly template. Each weekday in rules is
// upserted; weekdays left out of a submission are deactivated, so the
// submission always describes the whole week. Existing appointments are not
// touched.
func (s *Service) SetSchedule(ctx context.Context, actor Actor, rules []RuleInput) ([]model.AvailabilityRule, error) {
	if actor.Role != auth.RoleProvider {
		return nil, apperr.Forbidden(apperr.ReasonProviderOnly, "only providers can publish availability")
	}
	seen := make(map[time.Weekday]bool, len(rules))
	out := make([]model.AvailabilityRule, 0, len(rules))
	now := s.now().UTC()
	for _, r := range rules {
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return nil, apperr.Validation(apperr.ReasonInvalidSchedule, "weekday %d is out of range", r.Weekday)
		}
		day := model.WeekdayName(r.Weekday)
		if seen[r.Weekday] {
			return nil, apperr.Validation(apperr.ReasonInvalidSchedule, "%s appears more than once", day)
		}
		seen[r.Weekday] = true
		if r.Start < 0 || r.End > model.EndOfDay || r.Start >= r.End {
			return nil, apperr.Validation(apperr.ReasonInvalidSchedule, "%s: startTime must be before endTime", day)
		}
		if r.SlotMinutes < 0 || model.Clock(r.SlotMinutes) > r.End-r.Start {
			return nil, apperr.Validation(apperr.ReasonInvalidSchedule, "%s: slotMinutes must fit inside the window", day)
		}
		out = append(out, model.AvailabilityRule{
			ProviderID:  actor.UserID,
			Weekday:     r.Weekday,
			Start:       r.Start,
			End:         r.End,
			SlotMinutes: r.SlotMinutes,
			Active:      r.Active,
			UpdatedAt:   now,
		})
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.ReplaceRules(ctx, actor.UserID, out)
	})
	if err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	s.logger.Info("schedule updated", "provider_id", actor.UserID, "rules", len(out))
	return s.Schedule(ctx, actor.UserID, false)
}

// Schedule returns the provider's rules ordered Sunday first.
func (s *Service) Schedule(ctx context.Context, providerID string, activeOnly bool) ([]model.AvailabilityRule, error) {
	rules, err := s.store.ListRules(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := rules[:0]
	for _, r := range rules {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

// Slots lists the provider's published slots as they would be booked from
// anchor. A zero anchor means now.
func (s *Service) Slots(ctx context.Context, providerID string, anchor time.Time) ([]availability.Slot, error) {
	rules, err := s.Schedule(ctx, providerID, true)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if !anchor.IsZero() {
		now = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, s.loc)
	}
	busy, err := s.store.ListAppointments(ctx, AppointmentFilter{
		ProviderID: providerID,
		Statuses:   []model.Status{model.StatusPending, model.StatusConfirmed},
		From:       model.DateOf(now),
	})
	if err != nil {
		return nil, fmt.Errorf("list busy appointments: %w", err)
	}
	return availability.PublishedSlots(rules, busy, now, s.resolver), nil
}
