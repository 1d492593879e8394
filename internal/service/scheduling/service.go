package scheduling

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ReservationEvent is emitted once per Reserve outcome, accepted or
// rejected. It carries identifiers and the proposed interval only.
type ReservationEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	ProviderID    string    `json:"provider_id"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Outcome       string    `json:"outcome"`
	ConflictKinds []string  `json:"conflict_kinds,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const (
	EventReservationConfirmed = "reservation.confirmed"
	EventReservationRejected  = "reservation.rejected"
)

type EventPublisher interface {
	PublishReservation(ctx context.Context, ev ReservationEvent) error
}

// NopPublisher discards reservation events.
type NopPublisher struct{}

func (NopPublisher) PublishReservation(ctx context.Context, ev ReservationEvent) error {
	return nil
}

type Config struct {
	// BufferMinutes pads every existing appointment on both sides during
	// conflict evaluation. Zero means back-to-back booking is allowed.
	BufferMinutes int
	// MaxRangeDays caps availability and utilization query ranges.
	MaxRangeDays int
	// ReserveRetries caps retries on transient storage failures, for the
	// Reserve transaction and for lock-free reads alike.
	ReserveRetries uint64
	// ReserveRetryBase is the initial backoff between retries.
	ReserveRetryBase time.Duration
	// MaxAppointmentMinutes caps a single appointment's duration.
	MaxAppointmentMinutes int
}

func (c Config) withDefaults() Config {
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 90
	}
	if c.ReserveRetries == 0 {
		c.ReserveRetries = 3
	}
	if c.ReserveRetryBase <= 0 {
		c.ReserveRetryBase = 50 * time.Millisecond
	}
	if c.MaxAppointmentMinutes <= 0 {
		c.MaxAppointmentMinutes = 24 * 60
	}
	return c
}

type Service struct {
	repo   store.ScheduleRepository
	events EventPublisher
	log    *slog.Logger
	cfg    Config
}

func NewService(repo store.ScheduleRepository, events EventPublisher, log *slog.Logger, cfg Config) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		events: events,
		log:    log.With(slog.String("component", "scheduling")),
		cfg:    cfg.withDefaults(),
	}
}

type UpsertWeeklyRuleInput struct {
	ProviderID  string
	Weekday     domain.DayOfWeek
	Start       domain.WallClockTime
	End         domain.WallClockTime
	BreakStart  *domain.WallClockTime
	BreakEnd    *domain.WallClockTime
	IsAvailable bool
}

// UpsertWeeklyRule creates or replaces the provider's rule for one weekday.
func (s *Service) UpsertWeeklyRule(ctx context.Context, in UpsertWeeklyRuleInput) (domain.WeeklyScheduleRule, error) {
	if strings.TrimSpace(in.ProviderID) == "" {
		return domain.WeeklyScheduleRule{}, validationError("provider_id is required")
	}

	rule := domain.WeeklyScheduleRule{
		ProviderID:  in.ProviderID,
		Weekday:     in.Weekday,
		Start:       in.Start,
		End:         in.End,
		BreakStart:  in.BreakStart,
		BreakEnd:    in.BreakEnd,
		IsAvailable: in.IsAvailable,
	}
	if err := rule.Validate(); err != nil {
		return domain.WeeklyScheduleRule{}, validationError(err.Error())
	}

	return s.repo.UpsertWeeklyRule(ctx, rule)
}

type CreateTimeOffInput struct {
	ProviderID string
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

func (s *Service) CreateTimeOff(ctx context.Context, in CreateTimeOffInput) (domain.TimeOffPeriod, error) {
	if strings.TrimSpace(in.ProviderID) == "" {
		return domain.TimeOffPeriod{}, validationError("provider_id is required")
	}

	period := domain.TimeOffPeriod{
		ProviderID: in.ProviderID,
		StartDate:  domain.DateOf(in.StartDate),
		EndDate:    domain.DateOf(in.EndDate),
		Reason:     strings.TrimSpace(in.Reason),
	}
	if err := period.Validate(); err != nil {
		return domain.TimeOffPeriod{}, validationError(err.Error())
	}

	return s.repo.CreateTimeOff(ctx, period)
}

// CancelAppointment marks an appointment cancelled, releasing its interval
// from the conflict universe.
func (s *Service) CancelAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	if providerID == "" {
		return domain.Appointment{}, validationError("provider_id is required")
	}
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}

	var out domain.Appointment
	err := s.repo.InProviderTransaction(ctx, providerID, func(ctx context.Context, tx store.ScheduleTx) error {
		a, err := tx.UpdateAppointmentStatus(ctx, providerID, appointmentID, domain.AppointmentCancelled)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}
