package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/domain/patient"
)

func bookCmd(patientID, doctorID uuid.UUID, date, slot string) *appointment.BookAppointmentCommand {
	return &appointment.BookAppointmentCommand{
		PatientID: patientID,
		DoctorID:  doctorID,
		Date:      date,
		TimeSlot:  slot,
		CreatedBy: patientID,
	}
}

func TestBookAppointment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patientID := env.seedPatient(t)
	doctorID := uuid.New()

	a, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(1), "09:00 AM"), patientID, "patient", "127.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, appointment.StatusScheduled, a.Status)
	assert.Equal(t, "09:00 AM", a.TimeSlot)
	assert.NotEqual(t, uuid.Nil, a.ID)
}

func TestBookAppointmentSlotConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	date := futureDate(2)

	first := env.seedPatient(t)
	_, err := env.appointmentSvc.Book(ctx, bookCmd(first, doctorID, date, "10:00 AM"), first, "patient", "127.0.0.1")
	require.NoError(t, err)

	second := env.seedPatient(t)
	_, err = env.appointmentSvc.Book(ctx, bookCmd(second, doctorID, date, "10:00 AM"), second, "patient", "127.0.0.1")
	require.Error(t, err)

	assert.ErrorIs(t, err, appointment.ErrSlotTaken)

	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "10:00 AM", conflict.TimeSlot)
	assert.NotContains(t, conflict.AvailableSlots, "10:00 AM")
	assert.Contains(t, conflict.AvailableSlots, "09:00 AM")
	assert.Len(t, conflict.AvailableSlots, len(testSlotGrid)-1)
}

func TestBookAppointmentLosesInsertRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	date := futureDate(3)
	patientID := env.seedPatient(t)

	// Occupy the slot behind the availability read, as a concurrent booking
	// committing between check and insert would.
	other := env.seedPatient(t)
	require.NoError(t, env.appointments.Create(ctx, &appointment.Appointment{
		PatientID: other,
		DoctorID:  doctorID,
		Date:      date,
		TimeSlot:  "11:00 AM",
		Status:    appointment.StatusScheduled,
		CreatedBy: other,
	}))

	_, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, date, "11:00 AM"), patientID, "patient", "127.0.0.1")

	var conflict *appointment.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.NotContains(t, conflict.AvailableSlots, "11:00 AM")
}

func TestBookAppointmentRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patientID := env.seedPatient(t)
	doctorID := uuid.New()

	t.Run("non canonical slot", func(t *testing.T) {
		_, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(1), "09:30 AM"), patientID, "patient", "")
		assert.ErrorIs(t, err, appointment.ErrInvalidSlot)
	})

	t.Run("malformed date", func(t *testing.T) {
		_, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, "01-02-2026", "09:00 AM"), patientID, "patient", "")
		assert.ErrorIs(t, err, appointment.ErrInvalidDate)
	})

	t.Run("past date", func(t *testing.T) {
		_, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(-1), "09:00 AM"), patientID, "patient", "")
		assert.ErrorIs(t, err, appointment.ErrDateInPast)
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := env.appointmentSvc.Book(ctx, bookCmd(uuid.New(), doctorID, futureDate(1), "09:00 AM"), patientID, "patient", "")
		assert.ErrorIs(t, err, patient.ErrPatientNotFound)
	})
}

func TestBookAppointmentInactivePatient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()

	p := &patient.Patient{
		FirstName: "Ravi",
		LastName:  "Nair",
		Email:     "ravi@example.com",
		Status:    patient.StatusInactive,
	}
	require.NoError(t, env.patients.Create(ctx, p))

	_, err := env.appointmentSvc.Book(ctx, bookCmd(p.ID, doctorID, futureDate(1), "09:00 AM"), p.ID, "patient", "")
	assert.ErrorIs(t, err, patient.ErrPatientInactive)
}

func TestCancelFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	date := futureDate(5)
	patientID := env.seedPatient(t)

	a, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, date, "02:00 PM"), patientID, "patient", "")
	require.NoError(t, err)

	cancelled, err := env.appointmentSvc.Cancel(ctx, a.ID, &appointment.CancelAppointmentCommand{
		Reason:      "schedule change",
		CancelledBy: patientID,
	}, patientID, "patient", &patientID, "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	// Slot is bookable again once the hold is cancelled.
	other := env.seedPatient(t)
	rebooked, err := env.appointmentSvc.Book(ctx, bookCmd(other, doctorID, date, "02:00 PM"), other, "patient", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, rebooked.Status)
}

func TestCancelOtherPatientsAppointmentForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	patientID := env.seedPatient(t)

	a, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(1), "03:00 PM"), patientID, "patient", "")
	require.NoError(t, err)

	intruder := uuid.New()
	_, err = env.appointmentSvc.Cancel(ctx, a.ID, &appointment.CancelAppointmentCommand{
		Reason:      "not mine",
		CancelledBy: intruder,
	}, intruder, "patient", &intruder, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCompletedAppointmentCannotBeCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	patientID := env.seedPatient(t)

	a, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(1), "04:00 PM"), patientID, "patient", "")
	require.NoError(t, err)

	completed, err := env.appointmentSvc.Complete(ctx, a.ID, doctorID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)

	_, err = env.appointmentSvc.Cancel(ctx, a.ID, &appointment.CancelAppointmentCommand{
		Reason:      "too late",
		CancelledBy: patientID,
	}, patientID, "patient", &patientID, "")
	assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
}

func TestAvailableSlotsExcludesBooked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()
	date := futureDate(4)
	patientID := env.seedPatient(t)

	_, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, date, "09:00 AM"), patientID, "patient", "")
	require.NoError(t, err)

	slots, err := env.appointmentSvc.AvailableSlots(ctx, doctorID, date)
	require.NoError(t, err)
	assert.NotContains(t, slots, "09:00 AM")
	assert.Len(t, slots, len(testSlotGrid)-1)

	// A different doctor's grid is untouched.
	otherSlots, err := env.appointmentSvc.AvailableSlots(ctx, uuid.New(), date)
	require.NoError(t, err)
	assert.Len(t, otherSlots, len(testSlotGrid))
}

func TestListAppointmentsScopesPatients(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctorID := uuid.New()

	mine := env.seedPatient(t)
	other := env.seedPatient(t)

	_, err := env.appointmentSvc.Book(ctx, bookCmd(mine, doctorID, futureDate(1), "09:00 AM"), mine, "patient", "")
	require.NoError(t, err)
	_, err = env.appointmentSvc.Book(ctx, bookCmd(other, doctorID, futureDate(1), "10:00 AM"), other, "patient", "")
	require.NoError(t, err)

	page, err := env.appointmentSvc.List(ctx, &appointment.ListAppointmentsQuery{}, "patient", &mine)
	require.NoError(t, err)
	require.Len(t, page.Appointments, 1)
	assert.Equal(t, mine, page.Appointments[0].PatientID)

	// An error path: ensure errors.Is works through the repo lookup.
	_, err = env.appointmentSvc.GetAppointment(ctx, uuid.New(), "doctor", nil)
	assert.True(t, errors.Is(err, appointment.ErrAppointmentNotFound))
}
