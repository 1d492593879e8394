package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

// memoryRepo is an in-memory store.ScheduleRepository. Transactions hold a
// single mutex for their whole callback, matching the per-provider
// serialization of the real repository, and CreateAppointment enforces the
// no-overlap backstop the real schema enforces with its exclusion
// constraint.
type memoryRepo struct {
	mu           sync.Mutex
	rules        []domain.WeeklyScheduleRule
	timeOff      []domain.TimeOffPeriod
	appointments []domain.Appointment

	// txErrs are popped one per InProviderTransaction call before the
	// callback runs, for transient-failure tests.
	txErrs []error
	// readErrs are popped one per lock-free ListWeeklyRules call, for
	// transient read-failure tests. In-transaction reads never see them.
	readErrs []error
}

type memoryTx struct {
	r *memoryRepo
}

func (m *memoryRepo) ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.readErrs) > 0 {
		err := m.readErrs[0]
		m.readErrs = m.readErrs[1:]
		return nil, err
	}
	return m.listWeeklyRulesLocked(providerID), nil
}

func (m *memoryRepo) UpsertWeeklyRule(ctx context.Context, rule domain.WeeklyScheduleRule) (domain.WeeklyScheduleRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = time.Now().UTC()
	rule.UpdatedAt = rule.CreatedAt
	for i, existing := range m.rules {
		if existing.ProviderID == rule.ProviderID && existing.Weekday == rule.Weekday {
			rule.ID = existing.ID
			m.rules[i] = rule
			return rule, nil
		}
	}
	m.rules = append(m.rules, rule)
	return rule, nil
}

func (m *memoryRepo) ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTimeOffLocked(providerID, from, to), nil
}

func (m *memoryRepo) CreateTimeOff(ctx context.Context, period domain.TimeOffPeriod) (domain.TimeOffPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if period.ID == uuid.Nil {
		period.ID = uuid.New()
	}
	m.timeOff = append(m.timeOff, period)
	return period, nil
}

func (m *memoryRepo) GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAppointmentLocked(providerID, appointmentID)
}

func (m *memoryRepo) ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listActiveLocked(providerID, windowStart, windowEnd), nil
}

func (m *memoryRepo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.ScheduleTx) error) error {
	m.mu.Lock()
	if len(m.txErrs) > 0 {
		err := m.txErrs[0]
		m.txErrs = m.txErrs[1:]
		m.mu.Unlock()
		return err
	}
	defer m.mu.Unlock()
	return fn(ctx, memoryTx{r: m})
}

func (t memoryTx) ListWeeklyRules(ctx context.Context, providerID string) ([]domain.WeeklyScheduleRule, error) {
	return t.r.listWeeklyRulesLocked(providerID), nil
}

func (t memoryTx) ListTimeOff(ctx context.Context, providerID string, from, to time.Time) ([]domain.TimeOffPeriod, error) {
	return t.r.listTimeOffLocked(providerID, from, to), nil
}

func (t memoryTx) GetAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	return t.r.getAppointmentLocked(providerID, appointmentID)
}

func (t memoryTx) ListActiveAppointments(ctx context.Context, providerID string, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return t.r.listActiveLocked(providerID, windowStart, windowEnd), nil
}

func (t memoryTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	for _, a := range t.r.appointments {
		if a.ProviderID != appt.ProviderID || !a.Status.Active() {
			continue
		}
		if domain.Overlaps(appt.StartTime(), appt.EndTime(), a.StartTime(), a.EndTime()) {
			return domain.Appointment{}, store.ErrConflict
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	t.r.appointments = append(t.r.appointments, appt)
	return appt, nil
}

func (t memoryTx) RescheduleAppointment(ctx context.Context, providerID string, appointmentID uuid.UUID, scheduledAt time.Time, durationMinutes int) (domain.Appointment, error) {
	for i, a := range t.r.appointments {
		if a.ProviderID != providerID || a.ID != appointmentID {
			continue
		}
		if !a.Status.Active() {
			return domain.Appointment{}, store.ErrNotFound
		}
		a.ScheduledAt = scheduledAt
		a.DurationMinutes = durationMinutes
		a.UpdatedAt = time.Now().UTC()
		t.r.appointments[i] = a
		return a, nil
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (t memoryTx) UpdateAppointmentStatus(ctx context.Context, providerID string, appointmentID uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	for i, a := range t.r.appointments {
		if a.ProviderID != providerID || a.ID != appointmentID {
			continue
		}
		a.Status = status
		a.UpdatedAt = time.Now().UTC()
		t.r.appointments[i] = a
		return a, nil
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (m *memoryRepo) listWeeklyRulesLocked(providerID string) []domain.WeeklyScheduleRule {
	var out []domain.WeeklyScheduleRule
	for _, r := range m.rules {
		if r.ProviderID == providerID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryRepo) listTimeOffLocked(providerID string, from, to time.Time) []domain.TimeOffPeriod {
	var out []domain.TimeOffPeriod
	for _, p := range m.timeOff {
		if p.ProviderID != providerID {
			continue
		}
		if domain.DateOf(p.StartDate).After(domain.DateOf(to)) || domain.DateOf(p.EndDate).Before(domain.DateOf(from)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (m *memoryRepo) getAppointmentLocked(providerID string, appointmentID uuid.UUID) (domain.Appointment, error) {
	for _, a := range m.appointments {
		if a.ProviderID == providerID && a.ID == appointmentID {
			return a, nil
		}
	}
	return domain.Appointment{}, store.ErrNotFound
}

func (m *memoryRepo) listActiveLocked(providerID string, windowStart, windowEnd time.Time) []domain.Appointment {
	var out []domain.Appointment
	for _, a := range m.appointments {
		if a.ProviderID != providerID || !a.Status.Active() {
			continue
		}
		if domain.Overlaps(a.StartTime(), a.EndTime(), windowStart, windowEnd) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

// capturePublisher records published reservation events.
type capturePublisher struct {
	mu     sync.Mutex
	events []ReservationEvent
}

func (p *capturePublisher) PublishReservation(ctx context.Context, ev ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) byType(eventType string) []ReservationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ReservationEvent
	for _, ev := range p.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
