package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medhaven/clinicflow/internal/domain/billing"
)

type BillingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

func (r *BillingRepository) CreateBillRequest(ctx context.Context, br *billing.BillRequest) error {
	if err := r.db.WithContext(ctx).Create(br).Error; err != nil {
		return fmt.Errorf("inserting bill request: %w", err)
	}
	return nil
}

func (r *BillingRepository) GetBillRequest(ctx context.Context, id uuid.UUID) (*billing.BillRequest, error) {
	var br billing.BillRequest
	err := r.db.WithContext(ctx).First(&br, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrBillRequestNotFound
		}
		return nil, fmt.Errorf("fetching bill request: %w", err)
	}
	return &br, nil
}

func (r *BillingRepository) GetBillRequestByAppointment(ctx context.Context, appointmentID uuid.UUID) (*billing.BillRequest, error) {
	var br billing.BillRequest
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at DESC").
		First(&br).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrBillRequestNotFound
		}
		return nil, fmt.Errorf("fetching bill request by appointment: %w", err)
	}
	return &br, nil
}

func (r *BillingRepository) GetLatestPendingByPatient(ctx context.Context, patientID uuid.UUID) (*billing.BillRequest, error) {
	var br billing.BillRequest
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND status = ?", patientID, billing.RequestPending).
		Order("created_at DESC").
		First(&br).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrBillRequestNotFound
		}
		return nil, fmt.Errorf("fetching latest pending bill request: %w", err)
	}
	return &br, nil
}

func (r *BillingRepository) UpdateBillRequest(ctx context.Context, id uuid.UUID, amount int64, notes string) (*billing.BillRequest, error) {
	res := r.db.WithContext(ctx).
		Model(&billing.BillRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{"amount": amount, "notes": notes})
	if res.Error != nil {
		return nil, fmt.Errorf("updating bill request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, billing.ErrBillRequestNotFound
	}
	return r.GetBillRequest(ctx, id)
}

func (r *BillingRepository) UpdateBillRequestStatus(ctx context.Context, id uuid.UUID, status billing.BillRequestStatus) error {
	res := r.db.WithContext(ctx).
		Model(&billing.BillRequest{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("updating bill request status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrBillRequestNotFound
	}
	return nil
}

func (r *BillingRepository) ListBillRequests(ctx context.Context, q *billing.ListBillRequestsQuery) (*billing.PagedBillRequests, error) {
	tx := r.db.WithContext(ctx).Model(&billing.BillRequest{})

	if q.PatientID != nil {
		tx = tx.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		tx = tx.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		tx = tx.Where("status = ?", *q.Status)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting bill requests: %w", err)
	}

	var reqs []*billing.BillRequest
	err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing bill requests: %w", err)
	}

	return &billing.PagedBillRequests{
		BillRequests: reqs,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages(total, q.PageSize),
	}, nil
}

func (r *BillingRepository) CreateBill(ctx context.Context, b *billing.Bill) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		// Unique index on bill_request_id: a duplicate insert means another
		// finalize already won; callers return the existing bill instead.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return billing.ErrBillExists
		}
		return fmt.Errorf("inserting bill: %w", err)
	}
	return nil
}

func (r *BillingRepository) GetBill(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var b billing.Bill
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrBillNotFound
		}
		return nil, fmt.Errorf("fetching bill: %w", err)
	}
	return &b, nil
}

func (r *BillingRepository) GetBillByRequestID(ctx context.Context, billRequestID uuid.UUID) (*billing.Bill, error) {
	var b billing.Bill
	err := r.db.WithContext(ctx).First(&b, "bill_request_id = ?", billRequestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrBillNotFound
		}
		return nil, fmt.Errorf("fetching bill by request: %w", err)
	}
	return &b, nil
}

func (r *BillingRepository) ListBillsByPatient(ctx context.Context, patientID uuid.UUID) ([]*billing.Bill, error) {
	var bills []*billing.Bill
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("created_at DESC").
		Find(&bills).Error
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

func (r *BillingRepository) UpdateBillStatus(ctx context.Context, id uuid.UUID, status billing.BillStatus) error {
	res := r.db.WithContext(ctx).
		Model(&billing.Bill{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("updating bill status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func (r *BillingRepository) RequestStatusCountsByPatient(ctx context.Context, patientID uuid.UUID) (map[billing.BillRequestStatus]int64, error) {
	var rows []struct {
		Status billing.BillRequestStatus
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&billing.BillRequest{}).
		Select("status, count(*) as n").
		Where("patient_id = ?", patientID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting bill requests by status: %w", err)
	}

	counts := make(map[billing.BillRequestStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func (r *BillingRepository) CountBillsByPatient(ctx context.Context, patientID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&billing.Bill{}).
		Where("patient_id = ?", patientID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting bills: %w", err)
	}
	return n, nil
}
