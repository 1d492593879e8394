package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConflictKind string

const (
	ConflictOverlap      ConflictKind = "overlap"
	ConflictOutsideHours ConflictKind = "outside_hours"
	ConflictBreakTime    ConflictKind = "break_time"
	ConflictUnavailable  ConflictKind = "unavailable"
)

// Conflict is one reason a proposed interval cannot be booked. Overlap
// conflicts reference the colliding appointment.
type Conflict struct {
	Kind        ConflictKind `json:"kind"`
	Message     string       `json:"message"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

// ConflictReport lists every applicable conflict in stable order:
// unavailable, outside hours, break time, then overlaps by the conflicting
// appointment's start. An empty report means the interval is bookable.
type ConflictReport []Conflict

func (r ConflictReport) Empty() bool {
	return len(r) == 0
}

// Kinds returns the distinct conflict kinds in report order.
func (r ConflictReport) Kinds() []ConflictKind {
	seen := make(map[ConflictKind]struct{}, len(r))
	out := make([]ConflictKind, 0, len(r))
	for _, c := range r {
		if _, ok := seen[c.Kind]; ok {
			continue
		}
		seen[c.Kind] = struct{}{}
		out = append(out, c.Kind)
	}
	return out
}

// AvailabilitySlot is a computed, unbooked candidate interval. Slots are
// never persisted; they are regenerated on every query.
type AvailabilitySlot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// Reservation is the successful result of an atomic booking.
type Reservation struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProviderID    string    `json:"provider_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CreatedAt     time.Time `json:"created_at"`
}

// UtilizationSummary aggregates working vs. booked minutes over a range.
type UtilizationSummary struct {
	WorkingMinutes     int     `json:"working_minutes"`
	BookedMinutes      int     `json:"booked_minutes"`
	UtilizationPercent float64 `json:"utilization_percent"`
	AppointmentCount   int     `json:"appointment_count"`
}
