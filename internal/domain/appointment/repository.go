package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new appointment. Returns ErrSlotTaken when the slot
	// unique index rejects the insert; the constraint, not the earlier
	// availability read, is the source of truth for conflicts.
	Create(ctx context.Context, a *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListByDoctorDate returns all non-cancelled appointments for a doctor on
	// a given date, the booked-slot snapshot behind availability reads.
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error)

	// UpdateStatus persists a status change (cancel/complete) already applied
	// to the entity.
	UpdateStatus(ctx context.Context, a *Appointment) error

	List(ctx context.Context, q *ListAppointmentsQuery) (*PagedAppointments, error)

	// StatusCountsByPatient returns per-status appointment counts for rollups.
	StatusCountsByPatient(ctx context.Context, patientID uuid.UUID) (map[Status]int64, error)
}
