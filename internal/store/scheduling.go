package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinsched/backend/internal/domain"
)

// ScheduleRepository is the persistence contract for one provider's
// scheduling state: weekly rules, time-off periods and appointments.
// Read methods may observe slightly stale data; Reserve re-validates
// inside InProviderTransaction regardless of what a prior read saw.
type ScheduleRepository interface {
	ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error)
	UpsertWeeklyRule(ctx context.Context, rule domain.WeeklyScheduleRule) (domain.WeeklyScheduleRule, error)

	ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error)
	CreateTimeOff(ctx context.Context, period domain.TimeOffPeriod) (domain.TimeOffPeriod, error)

	GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error)
	// ListActiveAppointments returns active-status appointments whose
	// interval overlaps [windowStart, windowEnd), ordered by start time.
	ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)

	// InProviderTransaction runs fn inside a transaction that holds the
	// provider's write lock, serializing mutators per provider. Bookings
	// for different providers never block each other.
	InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx ScheduleTx) error) error
}

// ScheduleTx is the transactional view handed to InProviderTransaction
// callbacks. Reads through it observe the locked, current state.
type ScheduleTx interface {
	ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error)
	ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error)
	GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error)
	ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error)

	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// RescheduleAppointment moves an existing appointment to a new start
	// and duration. ErrNotFound when the appointment does not exist or is
	// not active.
	RescheduleAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID, scheduledAt time.Time, durationMinutes int) (domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, providerID string, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error)
}
