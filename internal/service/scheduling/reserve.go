package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

type ReserveInput struct {
	ProviderID      string
	Start           time.Time
	DurationMinutes int
	// AppointmentID, when set, reschedules that appointment in place; the
	// appointment excludes itself from its own overlap check.
	AppointmentID uuid.UUID
	PatientRef    string
	Notes         string
}

// Reserve atomically validates and books the proposed interval. Conflict
// detection and the write run as one unit inside the provider's serialized
// transaction, so two concurrent calls for overlapping intervals cannot
// both succeed: one receives a Reservation, the other the full
// ConflictReport. A non-empty report is an expected outcome, not an error;
// the error return is reserved for validation and infrastructure failures.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (domain.Reservation, domain.ConflictReport, error) {
	if err := validateProposal(in.ProviderID, in.Start, in.DurationMinutes, s.cfg.MaxAppointmentMinutes); err != nil {
		return domain.Reservation{}, nil, err
	}
	if in.AppointmentID == uuid.Nil && strings.TrimSpace(in.PatientRef) == "" {
		return domain.Reservation{}, nil, validationError("patient_ref is required")
	}

	start := in.Start.UTC()
	end := start.Add(time.Duration(in.DurationMinutes) * time.Minute)

	var (
		booked domain.Appointment
		report domain.ConflictReport
	)

	backoff := retry.WithMaxRetries(s.cfg.ReserveRetries, retry.NewExponential(s.cfg.ReserveRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		booked = domain.Appointment{}
		report = nil

		err := s.repo.InProviderTransaction(ctx, in.ProviderID, func(ctx context.Context, tx store.ScheduleTx) error {
			if in.AppointmentID != uuid.Nil {
				existing, err := tx.GetAppointment(ctx, in.ProviderID, in.AppointmentID)
				if err != nil {
					return err
				}
				if !existing.Status.Active() {
					return store.ErrNotFound
				}
			}

			cs, err := s.loadConstraints(ctx, tx, in.ProviderID, start, end, s.bufferMargin())
			if err != nil {
				return err
			}
			if rep := s.evaluateConflicts(cs, start, in.DurationMinutes, in.AppointmentID); !rep.Empty() {
				report = rep
				return nil
			}

			if in.AppointmentID != uuid.Nil {
				a, err := tx.RescheduleAppointment(ctx, in.ProviderID, in.AppointmentID, start, in.DurationMinutes)
				if err != nil {
					return err
				}
				booked = a
				return nil
			}

			a, err := tx.CreateAppointment(ctx, domain.Appointment{
				ProviderID:      in.ProviderID,
				PatientRef:      strings.TrimSpace(in.PatientRef),
				ScheduledAt:     start,
				DurationMinutes: in.DurationMinutes,
				Status:          domain.AppointmentScheduled,
				Notes:           in.Notes,
			})
			if err != nil {
				return err
			}
			booked = a
			return nil
		})
		if errors.Is(err, store.ErrTransient) {
			return retry.RetryableError(err)
		}
		return err
	})

	if errors.Is(err, store.ErrConflict) {
		// The exclusion constraint fired at commit: a competing writer won
		// the interval. Re-read to build the report the caller renders.
		rep, derr := s.DetectConflicts(ctx, DetectConflictsInput{
			ProviderID:           in.ProviderID,
			Start:                start,
			DurationMinutes:      in.DurationMinutes,
			ExcludeAppointmentID: in.AppointmentID,
		})
		if derr != nil || rep.Empty() {
			rep = domain.ConflictReport{{
				Kind:    domain.ConflictOverlap,
				Message: "a competing booking was committed for an overlapping time",
			}}
		}
		report = rep
		err = nil
	}
	if err != nil {
		return domain.Reservation{}, nil, err
	}

	if !report.Empty() {
		s.emitReservation(ctx, ReservationEvent{
			ProviderID:    in.ProviderID,
			Start:         start,
			End:           end,
			Outcome:       "rejected",
			ConflictKinds: kindStrings(report),
		}, EventReservationRejected)
		return domain.Reservation{}, report, nil
	}

	s.emitReservation(ctx, ReservationEvent{
		ProviderID:    in.ProviderID,
		AppointmentID: booked.ID.String(),
		Start:         booked.StartTime(),
		End:           booked.EndTime(),
		Outcome:       "confirmed",
	}, EventReservationConfirmed)

	return domain.Reservation{
		AppointmentID: booked.ID,
		ProviderID:    booked.ProviderID,
		Start:         booked.StartTime(),
		End:           booked.EndTime(),
		CreatedAt:     booked.CreatedAt,
	}, nil, nil
}

// emitReservation publishes a reservation outcome. Publish failures are
// logged and swallowed: the booking already committed (or was rejected)
// and must not be unwound by an observability hiccup.
func (s *Service) emitReservation(ctx context.Context, ev ReservationEvent, eventType string) {
	id, err := uuid.NewV7()
	if err == nil {
		ev.EventID = id.String()
	}
	ev.EventType = eventType
	ev.OccurredAt = time.Now().UTC()

	if err := s.events.PublishReservation(ctx, ev); err != nil {
		s.log.Warn("reservation event publish failed",
			slog.Any("err", err),
			slog.String("event_type", eventType),
			slog.String("provider_id", ev.ProviderID),
		)
	}
}

func kindStrings(report domain.ConflictReport) []string {
	kinds := report.Kinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
