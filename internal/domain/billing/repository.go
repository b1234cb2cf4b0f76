package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateBillRequest(ctx context.Context, br *BillRequest) error
	GetBillRequest(ctx context.Context, id uuid.UUID) (*BillRequest, error)

	// GetBillRequestByAppointment resolves the explicit appointment link used
	// by the edit path. Returns ErrBillRequestNotFound when no row matches.
	GetBillRequestByAppointment(ctx context.Context, appointmentID uuid.UUID) (*BillRequest, error)

	// GetLatestPendingByPatient is the legacy edit-path fallback for rows
	// created before the appointment link existed: most recent pending
	// request for the patient.
	GetLatestPendingByPatient(ctx context.Context, patientID uuid.UUID) (*BillRequest, error)

	// UpdateBillRequest rewrites amount and notes in place (edit path).
	UpdateBillRequest(ctx context.Context, id uuid.UUID, amount int64, notes string) (*BillRequest, error)

	UpdateBillRequestStatus(ctx context.Context, id uuid.UUID, status BillRequestStatus) error

	ListBillRequests(ctx context.Context, q *ListBillRequestsQuery) (*PagedBillRequests, error)

	// CreateBill persists the finalized bill. Returns ErrBillExists when the
	// bill_request_id unique index rejects the insert.
	CreateBill(ctx context.Context, b *Bill) error

	GetBill(ctx context.Context, id uuid.UUID) (*Bill, error)

	GetBillByRequestID(ctx context.Context, billRequestID uuid.UUID) (*Bill, error)

	ListBillsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Bill, error)

	UpdateBillStatus(ctx context.Context, id uuid.UUID, status BillStatus) error

	// RequestStatusCountsByPatient returns per-status bill request counts for
	// rollups.
	RequestStatusCountsByPatient(ctx context.Context, patientID uuid.UUID) (map[BillRequestStatus]int64, error)

	CountBillsByPatient(ctx context.Context, patientID uuid.UUID) (int64, error)
}
