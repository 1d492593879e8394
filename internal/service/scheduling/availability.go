package scheduling

import (
	"context"
	"time"

	"clinsched/backend/internal/domain"
)

type GenerateAvailabilityInput struct {
	ProviderID          string
	RangeStart          time.Time
	RangeEnd            time.Time
	SlotDurationMinutes int
}

// GenerateAvailability returns the open slots of the requested duration for
// every calendar date in [RangeStart, RangeEnd], in chronological order.
// Constraint sources are fetched once for the whole range and filtered in
// memory per day.
func (s *Service) GenerateAvailability(ctx context.Context, in GenerateAvailabilityInput) ([]domain.AvailabilitySlot, error) {
	if in.ProviderID == "" {
		return nil, validationError("provider_id is required")
	}
	if in.SlotDurationMinutes <= 0 {
		return nil, validationError("slot_duration_minutes must be positive")
	}
	rangeStart := domain.DateOf(in.RangeStart)
	rangeEnd := domain.DateOf(in.RangeEnd)
	if rangeEnd.Before(rangeStart) {
		return nil, validationError("range_end must not be before range_start")
	}
	if rangeEnd.Sub(rangeStart) > time.Duration(s.cfg.MaxRangeDays)*24*time.Hour {
		return nil, validationError("range too long")
	}

	cs, err := s.fetchConstraints(ctx, in.ProviderID, rangeStart, rangeEnd.AddDate(0, 0, 1), s.bufferMargin())
	if err != nil {
		return nil, err
	}

	slots := make([]domain.AvailabilitySlot, 0, 32)
	for day := rangeStart; !day.After(rangeEnd); day = day.AddDate(0, 0, 1) {
		slots = append(slots, s.daySlots(cs, day, in.SlotDurationMinutes)...)
	}
	return slots, nil
}

// daySlots walks one day's working window in fixed slot-duration steps and
// keeps every candidate that clears the break and all active appointments.
// Candidates extending past the end of the window are never emitted.
func (s *Service) daySlots(cs constraintSet, day time.Time, slotMinutes int) []domain.AvailabilitySlot {
	rule, ok := cs.ruleFor(day)
	if !ok || !rule.IsAvailable {
		return nil
	}
	if _, off := cs.timeOffCovering(day); off {
		return nil
	}

	window := rule.WindowOn(day)
	br, hasBreak := rule.BreakOn(day)
	step := time.Duration(slotMinutes) * time.Minute
	margin := s.bufferMargin()

	var out []domain.AvailabilitySlot
	for start := window.Start; !start.Add(step).After(window.End); start = start.Add(step) {
		end := start.Add(step)
		if hasBreak && domain.Overlaps(start, end, br.Start, br.End) {
			continue
		}
		busy := false
		for _, a := range cs.appointments {
			if domain.Overlaps(start, end, a.StartTime().Add(-margin), a.EndTime().Add(margin)) {
				busy = true
				break
			}
		}
		if busy {
			continue
		}
		out = append(out, domain.AvailabilitySlot{Start: start, End: end, DurationMinutes: slotMinutes})
	}
	return out
}

type NextAvailableSlotInput struct {
	ProviderID          string
	SlotDurationMinutes int
	SearchFrom          time.Time
	MaxDaysAhead        int
}

// NextAvailableSlot returns the earliest open slot at or after SearchFrom
// within the search horizon, or nil when the horizon holds none.
func (s *Service) NextAvailableSlot(ctx context.Context, in NextAvailableSlotInput) (*domain.AvailabilitySlot, error) {
	if in.ProviderID == "" {
		return nil, validationError("provider_id is required")
	}
	if in.SlotDurationMinutes <= 0 {
		return nil, validationError("slot_duration_minutes must be positive")
	}
	if in.MaxDaysAhead <= 0 || in.MaxDaysAhead > s.cfg.MaxRangeDays {
		return nil, validationError("max_days_ahead out of range")
	}
	if in.SearchFrom.IsZero() {
		return nil, validationError("search_from is required")
	}

	searchFrom := in.SearchFrom.UTC()
	rangeStart := domain.DateOf(searchFrom)
	rangeEnd := rangeStart.AddDate(0, 0, in.MaxDaysAhead)

	cs, err := s.fetchConstraints(ctx, in.ProviderID, rangeStart, rangeEnd.AddDate(0, 0, 1), s.bufferMargin())
	if err != nil {
		return nil, err
	}

	for day := rangeStart; !day.After(rangeEnd); day = day.AddDate(0, 0, 1) {
		for _, slot := range s.daySlots(cs, day, in.SlotDurationMinutes) {
			if slot.Start.Before(searchFrom) {
				continue
			}
			found := slot
			return &found, nil
		}
	}
	return nil, nil
}
