package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WeeklyScheduleRule is a provider's recurring work-hours definition for one
// day of the week. At most one rule exists per (provider, weekday); writes
// use upsert semantics.
type WeeklyScheduleRule struct {
	bun.BaseModel `bun:"table:weekly_schedule_rules"`

	ID          uuid.UUID      `bun:"id,pk,type:uuid"`
	ProviderID  string         `bun:"provider_id,notnull"`
	Weekday     DayOfWeek      `bun:"day_of_week,notnull"`
	Start       WallClockTime  `bun:"start_minute,notnull"`
	End         WallClockTime  `bun:"end_minute,notnull"`
	BreakStart  *WallClockTime `bun:"break_start_minute"`
	BreakEnd    *WallClockTime `bun:"break_end_minute"`
	IsAvailable bool           `bun:"is_available,notnull"`
	CreatedAt   time.Time      `bun:"created_at,notnull"`
	UpdatedAt   time.Time      `bun:"updated_at,notnull"`
}

func (r *WeeklyScheduleRule) Validate() error {
	if !r.Weekday.Valid() {
		return errors.New("day_of_week out of range")
	}
	if !r.Start.Valid() || !r.End.Valid() {
		return errors.New("start and end must be within the day")
	}
	if r.Start >= r.End {
		return errors.New("start must be before end")
	}
	if (r.BreakStart == nil) != (r.BreakEnd == nil) {
		return errors.New("break start and end must both be set or both be empty")
	}
	if r.BreakStart != nil {
		if !r.BreakStart.Valid() || !r.BreakEnd.Valid() {
			return errors.New("break must be within the day")
		}
		if *r.BreakStart >= *r.BreakEnd {
			return errors.New("break start must be before break end")
		}
		if *r.BreakStart < r.Start || *r.BreakEnd > r.End {
			return errors.New("break must lie within working hours")
		}
	}
	return nil
}

// HasBreak reports whether the rule carries a break window.
func (r *WeeklyScheduleRule) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil
}

// WindowOn returns the working window pinned to day's calendar date.
func (r *WeeklyScheduleRule) WindowOn(day time.Time) Interval {
	return Interval{Start: r.Start.OnDate(day), End: r.End.OnDate(day)}
}

// BreakOn returns the break window pinned to day's calendar date.
func (r *WeeklyScheduleRule) BreakOn(day time.Time) (Interval, bool) {
	if !r.HasBreak() {
		return Interval{}, false
	}
	return Interval{Start: r.BreakStart.OnDate(day), End: r.BreakEnd.OnDate(day)}, true
}

// WorkingMinutes is the working window length minus the break length.
func (r *WeeklyScheduleRule) WorkingMinutes() int {
	if !r.IsAvailable {
		return 0
	}
	m := r.End.Minutes() - r.Start.Minutes()
	if r.HasBreak() {
		m -= r.BreakEnd.Minutes() - r.BreakStart.Minutes()
	}
	return m
}

func (r *WeeklyScheduleRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if r.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			r.ID = id
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		r.UpdatedAt = now
	}
	return nil
}

// TimeOffPeriod blocks every calendar date in [StartDate, EndDate],
// inclusive, overriding the weekly rule. Periods may overlap; a date is
// blocked when any period covers it.
type TimeOffPeriod struct {
	bun.BaseModel `bun:"table:time_off_periods"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ProviderID string    `bun:"provider_id,notnull"`
	StartDate  time.Time `bun:"start_date,notnull"`
	EndDate    time.Time `bun:"end_date,notnull"`
	Reason     string    `bun:"reason"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (p *TimeOffPeriod) Validate() error {
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return errors.New("start_date and end_date are required")
	}
	if DateOf(p.EndDate).Before(DateOf(p.StartDate)) {
		return errors.New("end_date must not be before start_date")
	}
	return nil
}

// Covers reports whether the period blocks day's calendar date.
func (p *TimeOffPeriod) Covers(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}

func (p *TimeOffPeriod) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if p.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			p.ID = id
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		p.UpdatedAt = now
	}
	return nil
}

// DateOf truncates t to midnight UTC, the canonical date representation.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
