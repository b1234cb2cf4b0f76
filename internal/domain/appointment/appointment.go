package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the canonical wire format for appointment dates.
const DateLayout = "2006-01-02"

// State transitions possibilities:
//
//	scheduled → completed
//	scheduled → cancelled
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Appointment occupies exactly one slot on a doctor's daily grid. A partial
// unique index on (doctor_id, appointment_date, appointment_time) where
// status <> 'cancelled' enforces the one-active-booking-per-slot invariant
// at the store; availability reads are advisory snapshots only.
type Appointment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	Date     string `gorm:"column:appointment_date;type:varchar(10);not null;index"`
	TimeSlot string `gorm:"column:appointment_time;type:varchar(10);not null"`
	Status   Status `gorm:"column:status;type:varchar(20);not null;default:'scheduled';index"`

	Notes string `gorm:"column:notes;type:text"`

	// Cancellation tracking
	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	CompletedAt *time.Time `gorm:"column:completed_at"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusScheduled: {StatusCompleted, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.CancelledBy = &cancelledBy
	return nil
}

func (a *Appointment) Complete() error {
	if !a.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	return nil
}

// ConflictError reports a booking attempt on an occupied slot. It carries the
// doctor's open slots for the same date so callers can offer alternatives
// without a second round trip.
type ConflictError struct {
	DoctorID       uuid.UUID
	Date           string
	TimeSlot       string
	AvailableSlots []string
}

func (e *ConflictError) Error() string {
	if len(e.AvailableSlots) == 0 {
		return fmt.Sprintf("slot %s on %s is already booked; no slots remain for this date", e.TimeSlot, e.Date)
	}
	return fmt.Sprintf("slot %s on %s is already booked; available: %s",
		e.TimeSlot, e.Date, strings.Join(e.AvailableSlots, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrSlotTaken
}

type BookAppointmentCommand struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      string
	TimeSlot  string
	Notes     string
	CreatedBy uuid.UUID
}

type CancelAppointmentCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}

type ListAppointmentsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	DateFrom  *string
	DateTo    *string
	Page      int
	PageSize  int
}

type PagedAppointments struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
