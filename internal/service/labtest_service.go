package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/cache"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

type LabTestService struct {
	repo     labtest.Repository
	auditSvc *AuditService
	cache    *cache.Cache
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewLabTestService(
	repo labtest.Repository,
	auditSvc *AuditService,
	c *cache.Cache,
	m *metrics.Collector,
	log *zap.Logger,
) *LabTestService {
	return &LabTestService{repo: repo, auditSvc: auditSvc, cache: c, metrics: m, log: log}
}

// Transition moves a test request to newStatus. The state machine on the
// entity decides validity; every accepted move writes exactly one history
// row in the same transaction as the status change.
func (s *LabTestService) Transition(ctx context.Context, id uuid.UUID, newStatus labtest.Status, reason string, callerID uuid.UUID, callerRole string, ip string) (*labtest.TestRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldStatus := req.Status
	if err := req.ApplyTransition(newStatus); err != nil {
		return nil, err
	}

	hist := &labtest.TestStatusHistory{
		TestRequestID: req.ID,
		OldStatus:     oldStatus,
		NewStatus:     newStatus,
		ChangedBy:     callerID,
		Reason:        reason,
	}

	if err := s.repo.SaveTransition(ctx, req, hist); err != nil {
		s.log.Error("failed to persist test transition", zap.Error(err))
		return nil, fmt.Errorf("saving transition: %w", err)
	}

	s.afterTransition(ctx, req, oldStatus, newStatus, callerID, callerRole, ip)
	return req, nil
}

// RecordResult stores a lab result and implicitly completes the request in
// one transaction. Results are only accepted while the request is pending or
// in progress.
func (s *LabTestService) RecordResult(ctx context.Context, cmd *labtest.RecordResultCommand, callerRole string, ip string) (*labtest.TestRequest, error) {
	if err := validateResultCommand(cmd); err != nil {
		return nil, err
	}

	req, err := s.repo.GetByID(ctx, cmd.TestRequestID)
	if err != nil {
		return nil, err
	}

	if !req.AcceptsResult() {
		return nil, labtest.ErrResultNotAllowed
	}

	oldStatus := req.Status
	if err := req.ApplyTransition(labtest.StatusCompleted); err != nil {
		return nil, err
	}

	res := &labtest.TestResult{
		TestRequestID:   req.ID,
		LabTechnicianID: cmd.LabTechnicianID,
		ResultValue:     cmd.ResultValue,
		NormalRange:     cmd.NormalRange,
		Status:          cmd.Status,
		Units:           cmd.Units,
		ReferenceRange:  cmd.ReferenceRange,
		Interpretation:  cmd.Interpretation,
		Notes:           cmd.Notes,
	}

	hist := &labtest.TestStatusHistory{
		TestRequestID: req.ID,
		OldStatus:     oldStatus,
		NewStatus:     labtest.StatusCompleted,
		ChangedBy:     cmd.LabTechnicianID,
		Reason:        "result recorded",
	}

	if err := s.repo.SaveResultAndTransition(ctx, req, res, hist); err != nil {
		s.log.Error("failed to persist test result", zap.Error(err))
		return nil, fmt.Errorf("saving result: %w", err)
	}

	s.afterTransition(ctx, req, oldStatus, labtest.StatusCompleted, cmd.LabTechnicianID, callerRole, ip)
	return req, nil
}

func (s *LabTestService) afterTransition(ctx context.Context, req *labtest.TestRequest, oldStatus, newStatus labtest.Status, callerID uuid.UUID, callerRole string, ip string) {
	if s.metrics != nil {
		s.metrics.TestTransitionsTotal.WithLabelValues(string(newStatus)).Inc()
	}

	s.invalidateRollup(ctx, req.PatientID)

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID: callerID, UserRole: callerRole,
		Action: "update", ResourceType: "test_request", ResourceID: req.ID.String(), IPAddress: ip,
		Changes: fmt.Sprintf(`{"old_status":%q,"new_status":%q}`, oldStatus, newStatus),
	})

	s.log.Info("test request transitioned",
		zap.String("test_request_id", req.ID.String()),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(newStatus)),
	)
}

func (s *LabTestService) GetTestRequest(ctx context.Context, id uuid.UUID, callerRole string, callerPatientID *uuid.UUID) (*labtest.TestRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != req.PatientID {
			return nil, ErrForbidden
		}
	}
	return req, nil
}

// ListQueue is the lab technician worklist view.
func (s *LabTestService) ListQueue(ctx context.Context, q *labtest.ListTestRequestsQuery, callerRole string, callerPatientID *uuid.UUID) (*labtest.PagedTestRequests, error) {
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

func (s *LabTestService) ListHistory(ctx context.Context, testRequestID uuid.UUID) ([]*labtest.TestStatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, testRequestID); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, testRequestID)
}

func (s *LabTestService) ListResults(ctx context.Context, testRequestID uuid.UUID, callerRole string, callerPatientID *uuid.UUID) ([]*labtest.TestResult, error) {
	req, err := s.repo.GetByID(ctx, testRequestID)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != req.PatientID {
			return nil, ErrForbidden
		}
	}
	return s.repo.ListResults(ctx, testRequestID)
}

func (s *LabTestService) invalidateRollup(ctx context.Context, patientID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rollupKey(patientID)); err != nil {
		s.log.Warn("rollup cache invalidation failed", zap.Error(err))
	}
}

func validateResultCommand(cmd *labtest.RecordResultCommand) error {
	var errs []string

	if cmd.TestRequestID == uuid.Nil {
		errs = append(errs, "test_request_id is required")
	}
	if cmd.LabTechnicianID == uuid.Nil {
		errs = append(errs, "lab_technician_id is required")
	}
	if strings.TrimSpace(cmd.ResultValue) == "" {
		errs = append(errs, "result_value is required")
	}
	if strings.TrimSpace(cmd.NormalRange) == "" {
		errs = append(errs, "normal_range is required")
	}
	if !cmd.Status.IsValid() {
		errs = append(errs, "status is invalid")
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
