package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/cache"
	"github.com/medhaven/clinicflow/internal/domain/billing"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/internal/extract"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

type BillingService struct {
	repo            billing.Repository
	labRepo         labtest.Repository
	auditSvc        *AuditService
	cache           *cache.Cache
	metrics         *metrics.Collector
	log             *zap.Logger
	defaultDuration int
}

func NewBillingService(
	repo billing.Repository,
	labRepo labtest.Repository,
	auditSvc *AuditService,
	c *cache.Cache,
	m *metrics.Collector,
	log *zap.Logger,
	defaultTestDurationMins int,
) *BillingService {
	return &BillingService{
		repo:            repo,
		labRepo:         labRepo,
		auditSvc:        auditSvc,
		cache:           c,
		metrics:         m,
		log:             log,
		defaultDuration: defaultTestDurationMins,
	}
}

// CreateOrUpdate handles a doctor submitting a diagnosis. When a pending bill
// request already exists for the appointment (explicit link first, then the
// legacy most-recent-pending-by-patient fallback) the request is rewritten in
// place; tests already tracked remain authoritative, and are derived on edit
// only when none exist yet. Otherwise a new request is created and its test
// requests derived from the selection.
//
// Test derivation failure after a successful create or update is reported as
// a *billing.DerivationError so callers can distinguish the partial state
// from a full failure: the bill request exists, its tests do not.
func (s *BillingService) CreateOrUpdate(ctx context.Context, d *billing.Diagnosis, callerID uuid.UUID, callerRole string, ip string) (*billing.BillRequest, error) {
	if err := validateDiagnosis(d); err != nil {
		return nil, err
	}

	amount := d.TotalAmount()
	notes := billing.ComposeNotes(d)

	if existing := s.findEditable(ctx, d); existing != nil {
		updated, err := s.repo.UpdateBillRequest(ctx, existing.ID, amount, notes)
		if err != nil {
			return nil, fmt.Errorf("updating bill request: %w", err)
		}

		if s.metrics != nil {
			s.metrics.BillRequestsTotal.WithLabelValues("updated").Inc()
		}
		s.auditSvc.LogAsync(ctx, AuditEntry{
			UserID: callerID, UserRole: callerRole,
			Action: "update", ResourceType: "bill_request", ResourceID: updated.ID.String(), IPAddress: ip,
		})
		s.log.Info("bill request updated",
			zap.String("bill_request_id", updated.ID.String()),
			zap.Int64("amount", amount),
		)

		tracked, err := s.labRepo.ListByBillRequest(ctx, updated.ID)
		if err != nil {
			return updated, &billing.DerivationError{BillRequest: updated, Err: fmt.Errorf("listing test requests: %w", err)}
		}
		if len(tracked) == 0 {
			if err := s.deriveTests(ctx, updated, d.SelectedTests, false); err != nil {
				s.log.Error("test derivation failed after bill request update",
					zap.String("bill_request_id", updated.ID.String()),
					zap.Error(err),
				)
				return updated, &billing.DerivationError{BillRequest: updated, Err: err}
			}
		}
		s.invalidateRollup(ctx, updated.PatientID)
		return updated, nil
	}

	br := &billing.BillRequest{
		PatientID:     d.PatientID,
		DoctorID:      d.DoctorID,
		AppointmentID: d.AppointmentID,
		Amount:        amount,
		Notes:         notes,
		Status:        billing.RequestPending,
	}

	if err := s.repo.CreateBillRequest(ctx, br); err != nil {
		s.log.Error("failed to create bill request", zap.Error(err))
		return nil, fmt.Errorf("creating bill request: %w", err)
	}

	if s.metrics != nil {
		s.metrics.BillRequestsTotal.WithLabelValues("created").Inc()
	}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "create", ResourceType: "bill_request", ResourceID: br.ID.String(), IPAddress: ip,
	})

	if err := s.deriveTests(ctx, br, d.SelectedTests, false); err != nil {
		s.log.Error("test derivation failed after bill request creation",
			zap.String("bill_request_id", br.ID.String()),
			zap.Error(err),
		)
		return br, &billing.DerivationError{BillRequest: br, Err: err}
	}

	s.invalidateRollup(ctx, br.PatientID)

	s.log.Info("bill request created",
		zap.String("bill_request_id", br.ID.String()),
		zap.Int64("amount", amount),
	)

	return br, nil
}

// findEditable resolves the bill request an edit should target, or nil when
// the submission is a fresh diagnosis. Only pending requests are editable.
func (s *BillingService) findEditable(ctx context.Context, d *billing.Diagnosis) *billing.BillRequest {
	if d.AppointmentID != nil {
		br, err := s.repo.GetBillRequestByAppointment(ctx, *d.AppointmentID)
		if err == nil && br.Status == billing.RequestPending {
			return br
		}
		if err != nil && !errors.Is(err, billing.ErrBillRequestNotFound) {
			s.log.Warn("appointment-linked bill request lookup failed", zap.Error(err))
		}
		return nil
	}

	// Legacy rows carry no appointment link; fall back to the most recent
	// pending request for the patient.
	br, err := s.repo.GetLatestPendingByPatient(ctx, d.PatientID)
	if err != nil {
		if !errors.Is(err, billing.ErrBillRequestNotFound) {
			s.log.Warn("pending bill request lookup failed", zap.Error(err))
		}
		return nil
	}
	return br
}

// deriveTests turns the diagnosis into trackable lab test requests. The
// structured selection is authoritative, and a diagnosis naming no tests
// creates none. Free-text extraction from the stored notes runs only when
// fromNotes is set: the rederive path for legacy rows, where no structured
// selection survives.
func (s *BillingService) deriveTests(ctx context.Context, br *billing.BillRequest, selected []string, fromNotes bool) error {
	var tests []extract.ExtractedTest
	for _, name := range selected {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tests = append(tests, extract.ExtractedTest{Name: name, Type: extract.DetectType(name)})
	}

	if len(tests) == 0 && fromNotes {
		tests = extract.Extract(br.Notes)
		if len(tests) > 0 && s.metrics != nil {
			s.metrics.ExtractionFallbacks.Inc()
		}
	}

	if len(tests) == 0 {
		return nil
	}

	reqs := make([]*labtest.TestRequest, 0, len(tests))
	for _, t := range tests {
		reqs = append(reqs, &labtest.TestRequest{
			BillRequestID:         br.ID,
			PatientID:             br.PatientID,
			DoctorID:              br.DoctorID,
			TestName:              t.Name,
			TestType:              t.Type,
			Status:                labtest.StatusPending,
			Priority:              labtest.PriorityNormal,
			EstimatedDurationMins: s.defaultDuration,
		})
	}

	if err := s.labRepo.CreateBatch(ctx, reqs); err != nil {
		return fmt.Errorf("creating test requests: %w", err)
	}
	return nil
}

// RederiveTests retries test derivation for a bill request whose original
// derivation failed. It is idempotent: when test requests already exist it
// returns them without creating more.
func (s *BillingService) RederiveTests(ctx context.Context, billRequestID uuid.UUID) ([]*labtest.TestRequest, error) {
	br, err := s.repo.GetBillRequest(ctx, billRequestID)
	if err != nil {
		return nil, err
	}

	existing, err := s.labRepo.ListByBillRequest(ctx, billRequestID)
	if err != nil {
		return nil, fmt.Errorf("listing test requests: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if err := s.deriveTests(ctx, br, nil, true); err != nil {
		return nil, &billing.DerivationError{BillRequest: br, Err: err}
	}
	s.invalidateRollup(ctx, br.PatientID)

	return s.labRepo.ListByBillRequest(ctx, billRequestID)
}

// Finalize approves a pending bill request and creates its bill exactly once.
// A repeat call, or a concurrent one losing the unique-index race, returns
// the already-created bill rather than an error. An empty payment method
// finalizes the bill as pending payment; any other value marks it paid.
func (s *BillingService) Finalize(ctx context.Context, billRequestID uuid.UUID, paymentMethod string, callerID uuid.UUID, callerRole string, ip string) (*billing.Bill, error) {
	br, err := s.repo.GetBillRequest(ctx, billRequestID)
	if err != nil {
		return nil, err
	}

	// Idempotency short-circuit: a bill already exists for this request. A
	// prior call may have crashed between bill insert and approval, so repair
	// the request status before returning.
	if existing, err := s.repo.GetBillByRequestID(ctx, billRequestID); err == nil {
		s.ensureApproved(ctx, br)
		return existing, nil
	} else if !errors.Is(err, billing.ErrBillNotFound) {
		return nil, fmt.Errorf("checking for existing bill: %w", err)
	}

	if br.Status == billing.RequestRejected {
		return nil, billing.ErrRequestResolved
	}

	status := billing.BillPaid
	if strings.TrimSpace(paymentMethod) == "" {
		status = billing.BillPending
	}

	bill := &billing.Bill{
		BillRequestID: br.ID,
		PatientID:     br.PatientID,
		Amount:        br.Amount,
		Status:        status,
		PaymentMethod: strings.TrimSpace(paymentMethod),
	}

	if err := s.repo.CreateBill(ctx, bill); err != nil {
		if errors.Is(err, billing.ErrBillExists) {
			// Lost the race; the winner's bill is the bill. The winner may
			// still be short of the approval update, so repair here too.
			s.ensureApproved(ctx, br)
			return s.repo.GetBillByRequestID(ctx, billRequestID)
		}
		s.log.Error("failed to create bill", zap.Error(err))
		return nil, fmt.Errorf("creating bill: %w", err)
	}

	if err := s.repo.UpdateBillRequestStatus(ctx, br.ID, billing.RequestApproved); err != nil {
		// The bill exists; the request status lags. A retry of Finalize
		// repairs this via the short-circuit above plus this update.
		s.log.Error("bill created but request status update failed",
			zap.String("bill_request_id", br.ID.String()),
			zap.Error(err),
		)
	}

	s.invalidateRollup(ctx, br.PatientID)

	if s.metrics != nil {
		s.metrics.BillsFinalizedTotal.Inc()
	}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "bill_request", ResourceID: br.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":"approved","bill_id":%q}`, bill.ID.String()),
	})

	s.log.Info("bill finalized",
		zap.String("bill_request_id", br.ID.String()),
		zap.String("bill_id", bill.ID.String()),
		zap.Int64("amount", bill.Amount),
	)

	return bill, nil
}

// ensureApproved closes the billed-but-still-pending gap left when a bill
// insert succeeded but the approval update did not.
func (s *BillingService) ensureApproved(ctx context.Context, br *billing.BillRequest) {
	if br.Status == billing.RequestApproved {
		return
	}
	if err := s.repo.UpdateBillRequestStatus(ctx, br.ID, billing.RequestApproved); err != nil {
		s.log.Error("bill exists but request approval update failed",
			zap.String("bill_request_id", br.ID.String()),
			zap.Error(err),
		)
		return
	}
	br.Status = billing.RequestApproved
	s.invalidateRollup(ctx, br.PatientID)
}

// Reject declines a pending bill request. Approved or already-rejected
// requests cannot be rejected.
func (s *BillingService) Reject(ctx context.Context, billRequestID uuid.UUID, callerID uuid.UUID, callerRole string, ip string) (*billing.BillRequest, error) {
	br, err := s.repo.GetBillRequest(ctx, billRequestID)
	if err != nil {
		return nil, err
	}
	if br.Status != billing.RequestPending {
		return nil, billing.ErrRequestResolved
	}

	if err := s.repo.UpdateBillRequestStatus(ctx, br.ID, billing.RequestRejected); err != nil {
		return nil, fmt.Errorf("rejecting bill request: %w", err)
	}
	br.Status = billing.RequestRejected

	if s.metrics != nil {
		s.metrics.BillRequestsTotal.WithLabelValues("rejected").Inc()
	}
	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "bill_request", ResourceID: br.ID.String(), IPAddress: ip,
		Changes: `{"status":"rejected"}`,
	})

	return br, nil
}

// MarkBillStatus records a payment outcome on a finalized bill: a pending
// bill moves to paid or overdue, an overdue bill to paid. Paid is terminal.
func (s *BillingService) MarkBillStatus(ctx context.Context, billID uuid.UUID, status billing.BillStatus, callerID uuid.UUID, callerRole string, ip string) (*billing.Bill, error) {
	if status != billing.BillPaid && status != billing.BillOverdue {
		return nil, &ValidationError{Fields: []string{"status must be paid or overdue"}}
	}

	b, err := s.repo.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if b.Status == billing.BillPaid {
		return nil, billing.ErrBillResolved
	}

	if err := s.repo.UpdateBillStatus(ctx, billID, status); err != nil {
		return nil, fmt.Errorf("updating bill status: %w", err)
	}
	b.Status = status

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "bill", ResourceID: b.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"status":%q}`, status),
	})
	s.log.Info("bill status updated",
		zap.String("bill_id", b.ID.String()),
		zap.String("status", string(status)),
	)

	return b, nil
}

func (s *BillingService) GetBillRequest(ctx context.Context, id uuid.UUID, callerRole string, callerPatientID *uuid.UUID) (*billing.BillRequest, error) {
	br, err := s.repo.GetBillRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != br.PatientID {
			return nil, ErrForbidden
		}
	}
	return br, nil
}

func (s *BillingService) ListBillRequests(ctx context.Context, q *billing.ListBillRequestsQuery, callerRole string, callerPatientID *uuid.UUID) (*billing.PagedBillRequests, error) {
	if callerRole == "patient" && callerPatientID != nil {
		q.PatientID = callerPatientID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.repo.ListBillRequests(ctx, q)
}

func (s *BillingService) ListBillsByPatient(ctx context.Context, patientID uuid.UUID, callerRole string, callerPatientID *uuid.UUID) ([]*billing.Bill, error) {
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != patientID {
			return nil, ErrForbidden
		}
	}
	return s.repo.ListBillsByPatient(ctx, patientID)
}

func (s *BillingService) invalidateRollup(ctx context.Context, patientID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rollupKey(patientID)); err != nil {
		s.log.Warn("rollup cache invalidation failed", zap.Error(err))
	}
}

func validateDiagnosis(d *billing.Diagnosis) error {
	var errs []string

	if d.PatientID == uuid.Nil {
		errs = append(errs, "patient_id is required")
	}
	if d.DoctorID == uuid.Nil {
		errs = append(errs, "doctor_id is required")
	}
	if strings.TrimSpace(d.DiseaseName) == "" {
		errs = append(errs, "disease_name is required")
	}
	if d.ConsultationFee < 0 {
		errs = append(errs, "consultation_fee cannot be negative")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
