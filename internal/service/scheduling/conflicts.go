package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

// constraintReader is the read surface shared by the repository and its
// transactional view, so conflict evaluation runs identically against a
// lock-free snapshot and against the locked state inside Reserve.
type constraintReader interface {
	ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error)
	ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error)
	ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
}

// constraintSet holds all constraint sources for one provider, fetched once
// per request and filtered in memory.
type constraintSet struct {
	rules        map[domain.DayOfWeek]domain.WeeklyScheduleRule
	timeOff      []domain.TimeOffPeriod
	appointments []domain.Appointment
}

// loadConstraints fetches the rules, time off and active appointments that
// constrain the window. margin widens the appointment fetch so bookings just
// outside the window still register when buffers are enforced; reporting
// paths pass zero so only in-range appointments are counted.
func (s *Service) loadConstraints(ctx context.Context, r constraintReader, providerID string, windowStart, windowEnd time.Time, margin time.Duration) (constraintSet, error) {
	rules, err := r.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return constraintSet{}, err
	}
	timeOff, err := r.ListTimeOff(ctx, providerID, domain.DateOf(windowStart), domain.DateOf(windowEnd))
	if err != nil {
		return constraintSet{}, err
	}
	appts, err := r.ListActiveAppointments(ctx, providerID, windowStart.Add(-margin), windowEnd.Add(margin))
	if err != nil {
		return constraintSet{}, err
	}

	byDay := make(map[domain.DayOfWeek]domain.WeeklyScheduleRule, len(rules))
	for _, rule := range rules {
		byDay[rule.Weekday] = rule
	}
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].ScheduledAt.Before(appts[j].ScheduledAt)
	})

	return constraintSet{rules: byDay, timeOff: timeOff, appointments: appts}, nil
}

// fetchConstraints loads a constraint snapshot outside any transaction,
// retrying transient storage failures with the same bounded backoff Reserve
// uses. In-transaction loads go through loadConstraints directly; the
// transaction itself is retried there.
func (s *Service) fetchConstraints(ctx context.Context, providerID string, windowStart, windowEnd time.Time, margin time.Duration) (constraintSet, error) {
	var cs constraintSet
	backoff := retry.WithMaxRetries(s.cfg.ReserveRetries, retry.NewExponential(s.cfg.ReserveRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		cs, err = s.loadConstraints(ctx, s.repo, providerID, windowStart, windowEnd, margin)
		if errors.Is(err, store.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return constraintSet{}, err
	}
	return cs, nil
}

func (s *Service) bufferMargin() time.Duration {
	return time.Duration(s.cfg.BufferMinutes) * time.Minute
}

func (cs constraintSet) ruleFor(day time.Time) (domain.WeeklyScheduleRule, bool) {
	rule, ok := cs.rules[domain.DayOfWeekFromTime(day.Weekday())]
	return rule, ok
}

func (cs constraintSet) timeOffCovering(day time.Time) (domain.TimeOffPeriod, bool) {
	for _, p := range cs.timeOff {
		if p.Covers(day) {
			return p, true
		}
	}
	return domain.TimeOffPeriod{}, false
}

// evaluateConflicts reports every reason the proposed interval cannot be
// booked, in stable order: unavailable, outside hours, break time, then
// overlaps sorted by the conflicting appointment's start. Appointments
// matching exclude are skipped so a reschedule never collides with itself.
func (s *Service) evaluateConflicts(cs constraintSet, start time.Time, durationMinutes int, exclude uuid.UUID) domain.ConflictReport {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	var report domain.ConflictReport

	rule, hasRule := cs.ruleFor(start)
	switch {
	case !hasRule:
		report = append(report, domain.Conflict{
			Kind:    domain.ConflictUnavailable,
			Message: fmt.Sprintf("provider has no working hours on %s", start.Weekday()),
		})
	case !rule.IsAvailable:
		report = append(report, domain.Conflict{
			Kind:    domain.ConflictUnavailable,
			Message: fmt.Sprintf("provider is not available on %s", start.Weekday()),
		})
	}
	if p, off := cs.timeOffCovering(start); off {
		msg := fmt.Sprintf("provider is off on %s", domain.DateOf(start).Format("2006-01-02"))
		if p.Reason != "" {
			msg += " (" + p.Reason + ")"
		}
		report = append(report, domain.Conflict{Kind: domain.ConflictUnavailable, Message: msg})
	}

	if hasRule && rule.IsAvailable {
		window := rule.WindowOn(start)
		if !domain.Contains(window.Start, window.End, start, end) {
			report = append(report, domain.Conflict{
				Kind:    domain.ConflictOutsideHours,
				Message: fmt.Sprintf("outside working hours %s-%s", rule.Start, rule.End),
			})
		}
		if br, ok := rule.BreakOn(start); ok && domain.Overlaps(start, end, br.Start, br.End) {
			report = append(report, domain.Conflict{
				Kind:    domain.ConflictBreakTime,
				Message: fmt.Sprintf("overlaps break %s-%s", *rule.BreakStart, *rule.BreakEnd),
			})
		}
	}

	margin := s.bufferMargin()
	for _, a := range cs.appointments {
		if exclude != uuid.Nil && a.ID == exclude {
			continue
		}
		if !domain.Overlaps(start, end, a.StartTime().Add(-margin), a.EndTime().Add(margin)) {
			continue
		}
		appt := a
		report = append(report, domain.Conflict{
			Kind: domain.ConflictOverlap,
			Message: fmt.Sprintf("occupied by appointment %s from %s to %s",
				a.ID, a.StartTime().Format("15:04"), a.EndTime().Format("15:04")),
			Appointment: &appt,
		})
	}

	return report
}

type DetectConflictsInput struct {
	ProviderID           string
	Start                time.Time
	DurationMinutes      int
	ExcludeAppointmentID uuid.UUID
}

// DetectConflicts evaluates all constraint sources for a proposed interval
// and returns the complete conflict set. An empty report means the interval
// is bookable as-is. The call performs no mutation and, given unchanged
// repository state, always returns the same report in the same order.
func (s *Service) DetectConflicts(ctx context.Context, in DetectConflictsInput) (domain.ConflictReport, error) {
	if err := validateProposal(in.ProviderID, in.Start, in.DurationMinutes, s.cfg.MaxAppointmentMinutes); err != nil {
		return nil, err
	}

	if in.ExcludeAppointmentID != uuid.Nil {
		if _, err := s.repo.GetAppointment(ctx, in.ProviderID, in.ExcludeAppointmentID); err != nil {
			return nil, err
		}
	}

	start := in.Start.UTC()
	end := start.Add(time.Duration(in.DurationMinutes) * time.Minute)
	cs, err := s.fetchConstraints(ctx, in.ProviderID, start, end, s.bufferMargin())
	if err != nil {
		return nil, err
	}

	return s.evaluateConflicts(cs, start, in.DurationMinutes, in.ExcludeAppointmentID), nil
}

func validateProposal(providerID string, start time.Time, durationMinutes, maxMinutes int) error {
	if providerID == "" {
		return validationError("provider_id is required")
	}
	if start.IsZero() {
		return validationError("start is required")
	}
	if durationMinutes <= 0 {
		return validationError("duration_minutes must be positive")
	}
	if durationMinutes > maxMinutes {
		return validationError("duration too long")
	}
	return nil
}

// ensure the repository satisfies the shared read surface.
var _ constraintReader = (store.ScheduleRepository)(nil)
var _ constraintReader = (store.ScheduleTx)(nil)
