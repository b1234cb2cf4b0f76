package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/domain/patient"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

type AppointmentService struct {
	repo        appointment.Repository
	patientRepo patient.Repository
	slots       *SlotService
	auditSvc    *AuditService
	metrics     *metrics.Collector
	log         *zap.Logger
}

func NewAppointmentService(
	repo appointment.Repository,
	patientRepo patient.Repository,
	slots *SlotService,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *AppointmentService {
	return &AppointmentService{
		repo:        repo,
		patientRepo: patientRepo,
		slots:       slots,
		auditSvc:    auditSvc,
		metrics:     m,
		log:         log,
	}
}

// Book places an appointment on the doctor's slot grid. The availability
// read before the insert is advisory; two racing bookings for the same slot
// are decided by the partial unique index, and the loser gets a
// *appointment.ConflictError carrying the remaining open slots.
func (s *AppointmentService) Book(
	ctx context.Context,
	cmd *appointment.BookAppointmentCommand,
	callerID uuid.UUID,
	callerRole string,
	ip string,
) (*appointment.Appointment, error) {
	if err := validateBookCommand(cmd); err != nil {
		return nil, err
	}

	if _, err := time.ParseInLocation(appointment.DateLayout, cmd.Date, time.Local); err != nil {
		return nil, appointment.ErrInvalidDate
	}
	// ISO dates compare lexicographically, so string comparison against
	// today's date is enough to reject booking in the past.
	if cmd.Date < time.Now().Format(appointment.DateLayout) {
		return nil, appointment.ErrDateInPast
	}

	if !s.slots.IsCanonical(cmd.TimeSlot) {
		return nil, appointment.ErrInvalidSlot
	}

	p, err := s.patientRepo.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}
	if !p.IsActive() {
		return nil, patient.ErrPatientInactive
	}

	// Fast path rejection. The insert below still decides races.
	available, err := s.slots.IsAvailable(ctx, cmd.DoctorID, cmd.Date, cmd.TimeSlot)
	if err != nil {
		return nil, fmt.Errorf("checking availability: %w", err)
	}
	if !available {
		return nil, s.conflict(ctx, cmd)
	}

	a := &appointment.Appointment{
		PatientID: cmd.PatientID,
		DoctorID:  cmd.DoctorID,
		Date:      cmd.Date,
		TimeSlot:  cmd.TimeSlot,
		Status:    appointment.StatusScheduled,
		Notes:     cmd.Notes,
		CreatedBy: cmd.CreatedBy,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, appointment.ErrSlotTaken) {
			return nil, s.conflict(ctx, cmd)
		}
		s.log.Error("failed to create appointment", zap.Error(err))
		if s.metrics != nil {
			s.metrics.BookingsTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("creating appointment: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues("booked").Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		IPAddress:    ip,
	})

	s.log.Info("appointment booked",
		zap.String("appointment_id", a.ID.String()),
		zap.String("doctor_id", cmd.DoctorID.String()),
		zap.String("date", cmd.Date),
		zap.String("slot", cmd.TimeSlot),
	)

	return a, nil
}

// conflict builds the rejection with a fresh alternatives snapshot. If that
// snapshot read fails the conflict is still reported, just without
// suggestions.
func (s *AppointmentService) conflict(ctx context.Context, cmd *appointment.BookAppointmentCommand) error {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues("conflict").Inc()
		s.metrics.SlotConflictsTotal.Inc()
	}

	alternatives, err := s.slots.AvailableSlots(ctx, cmd.DoctorID, cmd.Date)
	if err != nil {
		s.log.Warn("failed to load alternative slots", zap.Error(err))
		alternatives = nil
	}

	return &appointment.ConflictError{
		DoctorID:       cmd.DoctorID,
		Date:           cmd.Date,
		TimeSlot:       cmd.TimeSlot,
		AvailableSlots: alternatives,
	}
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id uuid.UUID, callerRole string, callerPatientID *uuid.UUID) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != a.PatientID {
			return nil, ErrForbidden
		}
	}

	return a, nil
}

// Cancel frees the slot: the partial unique index ignores cancelled rows, so
// the slot becomes bookable the moment this commits.
func (s *AppointmentService) Cancel(ctx context.Context, id uuid.UUID, cmd *appointment.CancelAppointmentCommand, callerID uuid.UUID, callerRole string, callerPatientID *uuid.UUID, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != a.PatientID {
			return nil, ErrForbidden
		}
	}

	if err := a.Cancel(cmd.Reason, cmd.CancelledBy); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues("cancelled").Inc()
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"cancelled","reason":%q}`, cmd.Reason),
	})

	return a, nil
}

func (s *AppointmentService) Complete(ctx context.Context, id uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := a.Complete(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, a); err != nil {
		return nil, fmt.Errorf("updating appointment status: %w", err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "appointment", ResourceID: id.String(), IPAddress: ip,
		Changes: `{"status":"completed"}`,
	})

	return a, nil
}

func (s *AppointmentService) List(ctx context.Context, q *appointment.ListAppointmentsQuery, callerRole string, callerPatientID *uuid.UUID) (*appointment.PagedAppointments, error) {
	// Patients can only see their own appointments
	if callerRole == "patient" && callerPatientID != nil {
		q.PatientID = callerPatientID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.List(ctx, q)
}

// AvailableSlots exposes the advisory grid snapshot for date pickers.
func (s *AppointmentService) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	if _, err := time.ParseInLocation(appointment.DateLayout, date, time.Local); err != nil {
		return nil, appointment.ErrInvalidDate
	}
	return s.slots.AvailableSlots(ctx, doctorID, date)
}

func validateBookCommand(cmd *appointment.BookAppointmentCommand) error {
	var errs []string

	if cmd.PatientID == uuid.Nil {
		errs = append(errs, "patient_id is required")
	}
	if cmd.DoctorID == uuid.Nil {
		errs = append(errs, "doctor_id is required")
	}
	if strings.TrimSpace(cmd.Date) == "" {
		errs = append(errs, "date is required")
	}
	if strings.TrimSpace(cmd.TimeSlot) == "" {
		errs = append(errs, "time_slot is required")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
