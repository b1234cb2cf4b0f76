package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/cache"
	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/domain/billing"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

// PatientRollup is the dashboard summary of a patient's visit: appointment,
// bill request and lab test counts per status, plus the completion predicate
// billers gate finalization on.
type PatientRollup struct {
	PatientID uuid.UUID `json:"patient_id"`

	AppointmentsByStatus map[string]int `json:"appointments_by_status"`
	BillRequestsByStatus map[string]int `json:"bill_requests_by_status"`
	BillCount            int            `json:"bill_count"`

	TotalTests       int            `json:"total_tests"`
	TestsByStatus    map[string]int `json:"tests_by_status"`
	AllTestsComplete bool           `json:"all_tests_complete"`

	ComputedAt time.Time `json:"computed_at"`
}

// AggregatorService computes read-side rollups over the workflow stores.
// Rollups are cached briefly and invalidated on every transition, so stale
// reads are bounded by the TTL even if an invalidation is lost.
type AggregatorService struct {
	labRepo     labtest.Repository
	apptRepo    appointment.Repository
	billingRepo billing.Repository
	cache       *cache.Cache
	metrics     *metrics.Collector
	log         *zap.Logger
	cacheTTL    time.Duration
}

func NewAggregatorService(
	labRepo labtest.Repository,
	apptRepo appointment.Repository,
	billingRepo billing.Repository,
	c *cache.Cache,
	m *metrics.Collector,
	log *zap.Logger,
	cacheTTL time.Duration,
) *AggregatorService {
	return &AggregatorService{
		labRepo:     labRepo,
		apptRepo:    apptRepo,
		billingRepo: billingRepo,
		cache:       c,
		metrics:     m,
		log:         log,
		cacheTTL:    cacheTTL,
	}
}

func rollupKey(patientID uuid.UUID) string {
	return "rollup:patient:" + patientID.String()
}

// AllTestsComplete reports whether every test request for the bill request is
// strictly completed. Requests already sent to the patient or cancelled keep
// the set incomplete; a bill request with no tests at all counts as complete.
func (s *AggregatorService) AllTestsComplete(ctx context.Context, billRequestID uuid.UUID) (bool, error) {
	reqs, err := s.labRepo.ListByBillRequest(ctx, billRequestID)
	if err != nil {
		return false, fmt.Errorf("listing test requests: %w", err)
	}
	return allComplete(reqs), nil
}

func allComplete(reqs []*labtest.TestRequest) bool {
	for _, r := range reqs {
		if r.Status != labtest.StatusCompleted {
			return false
		}
	}
	return true
}

// Rollup returns the patient's visit summary, served from cache when fresh.
func (s *AggregatorService) Rollup(ctx context.Context, patientID uuid.UUID, callerRole string, callerPatientID *uuid.UUID) (*PatientRollup, error) {
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != patientID {
			return nil, ErrForbidden
		}
	}

	if s.cache != nil {
		var cached PatientRollup
		err := s.cache.Get(ctx, rollupKey(patientID), &cached)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RollupCacheHits.Inc()
			}
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("rollup cache read failed", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.RollupCacheMisses.Inc()
	}

	rollup, err := s.compute(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rollupKey(patientID), rollup, s.cacheTTL); err != nil {
			s.log.Warn("rollup cache write failed", zap.Error(err))
		}
	}

	return rollup, nil
}

func (s *AggregatorService) compute(ctx context.Context, patientID uuid.UUID) (*PatientRollup, error) {
	apptCounts, err := s.apptRepo.StatusCountsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("counting patient appointments: %w", err)
	}

	requestCounts, err := s.billingRepo.RequestStatusCountsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("counting patient bill requests: %w", err)
	}

	billCount, err := s.billingRepo.CountBillsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("counting patient bills: %w", err)
	}

	reqs, err := s.labRepo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("listing patient test requests: %w", err)
	}

	rollup := &PatientRollup{
		PatientID:            patientID,
		AppointmentsByStatus: make(map[string]int, len(apptCounts)),
		BillRequestsByStatus: make(map[string]int, len(requestCounts)),
		BillCount:            int(billCount),
		TotalTests:           len(reqs),
		TestsByStatus:        make(map[string]int),
		AllTestsComplete:     allComplete(reqs),
		ComputedAt:           time.Now(),
	}
	for status, n := range apptCounts {
		rollup.AppointmentsByStatus[string(status)] = int(n)
	}
	for status, n := range requestCounts {
		rollup.BillRequestsByStatus[string(status)] = int(n)
	}
	for _, r := range reqs {
		rollup.TestsByStatus[string(r.Status)]++
	}

	return rollup, nil
}
