package scheduling

import (
	"context"
	"time"

	"clinsched/backend/internal/domain"
)

type ComputeUtilizationInput struct {
	ProviderID string
	RangeStart time.Time
	RangeEnd   time.Time
}

// ComputeUtilization aggregates working minutes against booked minutes over
// the range. Days with no rule, an unavailable rule, or covering time-off
// contribute zero working minutes. The computation is read-only and runs
// lock-free; it is a reporting view, not a correctness gate.
func (s *Service) ComputeUtilization(ctx context.Context, in ComputeUtilizationInput) (domain.UtilizationSummary, error) {
	if in.ProviderID == "" {
		return domain.UtilizationSummary{}, validationError("provider_id is required")
	}
	rangeStart := domain.DateOf(in.RangeStart)
	rangeEnd := domain.DateOf(in.RangeEnd)
	if rangeEnd.Before(rangeStart) {
		return domain.UtilizationSummary{}, validationError("range_end must not be before range_start")
	}
	if rangeEnd.Sub(rangeStart) > time.Duration(s.cfg.MaxRangeDays)*24*time.Hour {
		return domain.UtilizationSummary{}, validationError("range too long")
	}

	// No buffer margin here: buffers gate bookings, they are not booked
	// time, so only appointments inside the range count.
	cs, err := s.fetchConstraints(ctx, in.ProviderID, rangeStart, rangeEnd.AddDate(0, 0, 1), 0)
	if err != nil {
		return domain.UtilizationSummary{}, err
	}

	var summary domain.UtilizationSummary
	for day := rangeStart; !day.After(rangeEnd); day = day.AddDate(0, 0, 1) {
		rule, ok := cs.ruleFor(day)
		if !ok || !rule.IsAvailable {
			continue
		}
		if _, off := cs.timeOffCovering(day); off {
			continue
		}
		summary.WorkingMinutes += rule.WorkingMinutes()
	}

	for _, a := range cs.appointments {
		summary.BookedMinutes += a.DurationMinutes
		summary.AppointmentCount++
	}

	if summary.WorkingMinutes > 0 {
		summary.UtilizationPercent = float64(summary.BookedMinutes) / float64(summary.WorkingMinutes) * 100
	}
	return summary, nil
}
