package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medhaven/clinicflow/internal/domain/labtest"
)

type LabTestRepository struct {
	db *gorm.DB
}

func NewLabTestRepository(db *gorm.DB) *LabTestRepository {
	return &LabTestRepository{db: db}
}

func (r *LabTestRepository) CreateBatch(ctx context.Context, reqs []*labtest.TestRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(reqs).Error; err != nil {
		return fmt.Errorf("inserting test requests: %w", err)
	}
	return nil
}

func (r *LabTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*labtest.TestRequest, error) {
	var req labtest.TestRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, labtest.ErrTestRequestNotFound
		}
		return nil, fmt.Errorf("fetching test request: %w", err)
	}
	return &req, nil
}

func (r *LabTestRepository) ListByBillRequest(ctx context.Context, billRequestID uuid.UUID) ([]*labtest.TestRequest, error) {
	var reqs []*labtest.TestRequest
	err := r.db.WithContext(ctx).
		Where("bill_request_id = ?", billRequestID).
		Order("created_at").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing test requests for bill request: %w", err)
	}
	return reqs, nil
}

func (r *LabTestRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*labtest.TestRequest, error) {
	var reqs []*labtest.TestRequest
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing test requests for patient: %w", err)
	}
	return reqs, nil
}

func (r *LabTestRepository) List(ctx context.Context, q *labtest.ListTestRequestsQuery) (*labtest.PagedTestRequests, error) {
	tx := r.db.WithContext(ctx).Model(&labtest.TestRequest{})

	if q.BillRequestID != nil {
		tx = tx.Where("bill_request_id = ?", *q.BillRequestID)
	}
	if q.PatientID != nil {
		tx = tx.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		tx = tx.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		tx = tx.Where("status = ?", *q.Status)
	}
	if q.Priority != nil {
		tx = tx.Where("priority = ?", *q.Priority)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting test requests: %w", err)
	}

	var reqs []*labtest.TestRequest
	err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing test requests: %w", err)
	}

	return &labtest.PagedTestRequests{
		TestRequests: reqs,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages(total, q.PageSize),
	}, nil
}

// SaveTransition writes the status change and its history row atomically so
// the trail can never miss an accepted transition.
func (r *LabTestRepository) SaveTransition(ctx context.Context, req *labtest.TestRequest, hist *labtest.TestStatusHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&labtest.TestRequest{}).
			Where("id = ?", req.ID).
			Select("status", "started_at", "completed_at", "sent_to_user_at").
			Updates(req).Error
		if err != nil {
			return fmt.Errorf("updating test request status: %w", err)
		}
		if err := tx.Create(hist).Error; err != nil {
			return fmt.Errorf("appending status history: %w", err)
		}
		return nil
	})
}

func (r *LabTestRepository) SaveResultAndTransition(ctx context.Context, req *labtest.TestRequest, res *labtest.TestResult, hist *labtest.TestStatusHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(res).Error; err != nil {
			return fmt.Errorf("inserting test result: %w", err)
		}
		err := tx.Model(&labtest.TestRequest{}).
			Where("id = ?", req.ID).
			Select("status", "started_at", "completed_at", "sent_to_user_at").
			Updates(req).Error
		if err != nil {
			return fmt.Errorf("updating test request status: %w", err)
		}
		if err := tx.Create(hist).Error; err != nil {
			return fmt.Errorf("appending status history: %w", err)
		}
		return nil
	})
}

func (r *LabTestRepository) ListHistory(ctx context.Context, testRequestID uuid.UUID) ([]*labtest.TestStatusHistory, error) {
	var hist []*labtest.TestStatusHistory
	err := r.db.WithContext(ctx).
		Where("test_request_id = ?", testRequestID).
		Order("created_at DESC").
		Find(&hist).Error
	if err != nil {
		return nil, fmt.Errorf("listing status history: %w", err)
	}
	return hist, nil
}

func (r *LabTestRepository) ListResults(ctx context.Context, testRequestID uuid.UUID) ([]*labtest.TestResult, error) {
	var results []*labtest.TestResult
	err := r.db.WithContext(ctx).
		Where("test_request_id = ?", testRequestID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}
	return results, nil
}
