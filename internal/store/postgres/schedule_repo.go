package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

var activeStatuses = []domain.AppointmentStatus{
	domain.AppointmentScheduled,
	domain.AppointmentConfirmed,
	domain.AppointmentCheckedIn,
}

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

type scheduleTx struct {
	tx bun.Tx
}

func (r *ScheduleRepo) ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error) {
	return listWeeklyRules(ctx, r.db, providerID)
}

func (r *ScheduleRepo) UpsertWeeklyRule(ctx context.Context, rule domain.WeeklyScheduleRule) (domain.WeeklyScheduleRule, error) {
	m := rule
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id, day_of_week) DO UPDATE").
		Set("start_minute = EXCLUDED.start_minute").
		Set("end_minute = EXCLUDED.end_minute").
		Set("break_start_minute = EXCLUDED.break_start_minute").
		Set("break_end_minute = EXCLUDED.break_end_minute").
		Set("is_available = EXCLUDED.is_available").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.WeeklyScheduleRule{}, mapPgError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error) {
	return listTimeOff(ctx, r.db, providerID, from, to)
}

func (r *ScheduleRepo) CreateTimeOff(ctx context.Context, period domain.TimeOffPeriod) (domain.TimeOffPeriod, error) {
	m := period
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.TimeOffPeriod{}, mapPgError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, providerID, appointmentID)
}

func (r *ScheduleRepo) ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActiveAppointments(ctx, r.db, providerID, windowStart, windowEnd)
}

// InProviderTransaction serializes mutators per provider with a transaction
// scoped advisory lock, so bookings for different providers never contend.
func (r *ScheduleRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProviderSchedule(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, scheduleTx{tx: tx})
	})
	return mapPgError(err)
}

func lockProviderSchedule(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerID).Exec(ctx)
	return err
}

func (t scheduleTx) ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error) {
	return listWeeklyRules(ctx, t.tx, providerID)
}

func (t scheduleTx) ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error) {
	return listTimeOff(ctx, t.tx, providerID, from, to)
}

func (t scheduleTx) GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, providerID, appointmentID)
}

func (t scheduleTx) ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActiveAppointments(ctx, t.tx, providerID, windowStart, windowEnd)
}

func (t scheduleTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	_, err := t.tx.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	return m, nil
}

func (t scheduleTx) RescheduleAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID, scheduledAt time.Time, durationMinutes int) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:              appointmentID,
		ProviderID:      providerID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: durationMinutes,
	}
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("scheduled_at", "duration_minutes", "updated_at").
		Where("id = ?", appointmentID).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func (t scheduleTx) UpdateAppointmentStatus(ctx context.Context, providerID string, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	m := domain.Appointment{
		ID:         appointmentID,
		ProviderID: providerID,
		Status:     status,
	}
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("status", "updated_at").
		Where("id = ?", appointmentID).
		Where("provider_id = ?", providerID).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func listWeeklyRules(ctx context.Context, db bun.IDB, providerID string) ([]domain.WeeklyScheduleRule, error) {
	var rows []domain.WeeklyScheduleRule
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("day_of_week ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	return rows, nil
}

func listTimeOff(ctx context.Context, db bun.IDB, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error) {
	var rows []domain.TimeOffPeriod
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("start_date <= ?", to).
		Where("end_date >= ?", from).
		OrderExpr("start_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	return rows, nil
}

func getAppointment(ctx context.Context, db bun.IDB, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	var row domain.Appointment
	err := db.NewSelect().
		Model(&row).
		Where("provider_id = ?", providerID).
		Where("id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, mapPgError(err)
	}
	return row, nil
}

func listActiveAppointments(ctx context.Context, db bun.IDB, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("scheduled_at < ?", windowEnd).
		Where("scheduled_at + make_interval(mins => duration_minutes) > ?", windowStart).
		OrderExpr("scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapPgError(err)
	}
	return rows, nil
}

// mapPgError translates backend failures into the store's error taxonomy:
// the no-overlap exclusion constraint becomes ErrConflict, and retryable
// states (serialization abort, deadlock, lock-wait timeout) become
// ErrTransient so the booking coordinator can back off and retry.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		if pgErr.ConstraintName == "appointments_no_provider_overlap" {
			return store.ErrConflict
		}
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %v", store.ErrTransient, err)
	}
	return err
}
