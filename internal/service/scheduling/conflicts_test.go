package scheduling

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"clinsched/backend/internal/domain"
	"clinsched/backend/internal/store"
)

func TestDetectConflicts_HalfOpenBoundary(t *testing.T) {
	existing := activeAppointment(monday.Add(10*time.Hour), 30)
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			weekdayRule(t, domain.Monday, "09:00", "17:00", "", "", true),
		},
		appointments: []domain.Appointment{existing},
	}
	svc := newTestService(repo)

	// 10:15 overlaps the 10:00-10:30 appointment.
	report, err := svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(10*time.Hour + 15*time.Minute),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("len(report) = %d, want 1", len(report))
	}
	if report[0].Kind != domain.ConflictOverlap {
		t.Fatalf("kind = %s, want %s", report[0].Kind, domain.ConflictOverlap)
	}
	if report[0].Appointment == nil || report[0].Appointment.ID != existing.ID {
		t.Fatalf("conflict does not reference appointment %s", existing.ID)
	}

	// 10:30, exactly at the prior end, does not.
	report, err = svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(10*time.Hour + 30*time.Minute),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("report = %v, want empty", report)
	}
}

func TestDetectConflicts_BufferPadsAppointments(t *testing.T) {
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			weekdayRule(t, domain.Monday, "09:00", "17:00", "", "", true),
		},
		appointments: []domain.Appointment{
			activeAppointment(monday.Add(10*time.Hour), 30),
		},
	}
	svc := NewService(repo, NopPublisher{}, nil, Config{BufferMinutes: 15})

	// With a 15-minute buffer the back-to-back 10:30 start now collides.
	report, err := svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(10*time.Hour + 30*time.Minute),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if len(report) != 1 || report[0].Kind != domain.ConflictOverlap {
		t.Fatalf("report = %v, want one overlap", report)
	}

	// Starting at 10:45 clears the padded interval.
	report, err = svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(10*time.Hour + 45*time.Minute),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("report = %v, want empty", report)
	}
}

func TestDetectConflicts_TimeOffIsUnavailable(t *testing.T) {
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			weekdayRule(t, domain.Monday, "09:00", "17:00", "", "", true),
		},
		timeOff: []domain.TimeOffPeriod{
			{ProviderID: testProvider, StartDate: monday, EndDate: monday.AddDate(0, 0, 4), Reason: "vacation"},
		},
	}
	svc := newTestService(repo)

	report, err := svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(10 * time.Hour),
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("len(report) = %d, want 1", len(report))
	}
	if report[0].Kind != domain.ConflictUnavailable {
		t.Fatalf("kind = %s, want %s", report[0].Kind, domain.ConflictUnavailable)
	}
}

func TestDetectConflicts_StableOrderAndExhaustive(t *testing.T) {
	early := activeAppointment(monday.Add(11*time.Hour+45*time.Minute), 30)
	late := activeAppointment(monday.Add(12*time.Hour+30*time.Minute), 30)
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			// The proposal crosses the break, runs past the window end,
			// hits two booked overlaps, and the whole day is time-off.
			// Every applicable kind must be reported.
			weekdayRule(t, domain.Monday, "09:00", "12:30", "12:00", "12:15", true),
		},
		timeOff: []domain.TimeOffPeriod{
			{ProviderID: testProvider, StartDate: monday, EndDate: monday},
		},
		// Listed latest-first so the report order proves the sort.
		appointments: []domain.Appointment{late, early},
	}
	svc := newTestService(repo)

	in := DetectConflictsInput{
		ProviderID:      testProvider,
		Start:           monday.Add(11*time.Hour + 30*time.Minute),
		DurationMinutes: 90,
	}
	report, err := svc.DetectConflicts(context.Background(), in)
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}

	if len(report) != 5 {
		t.Fatalf("len(report) = %d, want 5", len(report))
	}
	wantKinds := []domain.ConflictKind{
		domain.ConflictUnavailable,
		domain.ConflictOutsideHours,
		domain.ConflictBreakTime,
		domain.ConflictOverlap,
	}
	if got := report.Kinds(); !reflect.DeepEqual(got, wantKinds) {
		t.Fatalf("kinds = %v, want %v", got, wantKinds)
	}
	if report[3].Appointment.ID != early.ID || report[4].Appointment.ID != late.ID {
		t.Fatalf("overlaps not sorted by appointment start")
	}

	// Same input, unchanged state: identical report.
	again, err := svc.DetectConflicts(context.Background(), in)
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if !reflect.DeepEqual(again, report) {
		t.Fatalf("repeat report differs:\n got %v\nwant %v", again, report)
	}
}

func TestDetectConflicts_ExcludeSelf(t *testing.T) {
	existing := activeAppointment(monday.Add(10*time.Hour), 30)
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			weekdayRule(t, domain.Monday, "09:00", "17:00", "", "", true),
		},
		appointments: []domain.Appointment{existing},
	}
	svc := newTestService(repo)

	// Shifting the appointment 15 minutes within its own interval is fine
	// once it is excluded from the overlap check.
	report, err := svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:           testProvider,
		Start:                monday.Add(10*time.Hour + 15*time.Minute),
		DurationMinutes:      30,
		ExcludeAppointmentID: existing.ID,
	})
	if err != nil {
		t.Fatalf("DetectConflicts error: %v", err)
	}
	if !report.Empty() {
		t.Fatalf("report = %v, want empty", report)
	}
}

func TestDetectConflicts_UnknownExcludeID(t *testing.T) {
	repo := &memoryRepo{
		rules: []domain.WeeklyScheduleRule{
			weekdayRule(t, domain.Monday, "09:00", "17:00", "", "", true),
		},
	}
	svc := newTestService(repo)

	_, err := svc.DetectConflicts(context.Background(), DetectConflictsInput{
		ProviderID:           testProvider,
		Start:                monday.Add(10 * time.Hour),
		DurationMinutes:      30,
		ExcludeAppointmentID: uuid.New(),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestDetectConflicts_Validation(t *testing.T) {
	svc := newTestService(&memoryRepo{})

	cases := []struct {
		name string
		in   DetectConflictsInput
	}{
		{"missing provider", DetectConflictsInput{Start: monday, DurationMinutes: 30}},
		{"zero start", DetectConflictsInput{ProviderID: testProvider, DurationMinutes: 30}},
		{"zero duration", DetectConflictsInput{ProviderID: testProvider, Start: monday}},
		{"negative duration", DetectConflictsInput{ProviderID: testProvider, Start: monday, DurationMinutes: -15}},
		{"duration too long", DetectConflictsInput{ProviderID: testProvider, Start: monday, DurationMinutes: 36 * 60}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.DetectConflicts(context.Background(), tc.in)
			assertValidationError(t, err)
		})
	}
}
