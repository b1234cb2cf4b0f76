package labtest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateBatch inserts the test requests derived from one bill request.
	CreateBatch(ctx context.Context, reqs []*TestRequest) error

	GetByID(ctx context.Context, id uuid.UUID) (*TestRequest, error)

	ListByBillRequest(ctx context.Context, billRequestID uuid.UUID) ([]*TestRequest, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*TestRequest, error)

	List(ctx context.Context, q *ListTestRequestsQuery) (*PagedTestRequests, error)

	// SaveTransition persists an already-applied status change together with
	// its history row in a single transaction. Exactly one history row per
	// accepted transition.
	SaveTransition(ctx context.Context, req *TestRequest, hist *TestStatusHistory) error

	// SaveResultAndTransition persists a new result row plus the implicit
	// transition to completed in one transaction, so result entry is not a
	// separate untracked write path.
	SaveResultAndTransition(ctx context.Context, req *TestRequest, res *TestResult, hist *TestStatusHistory) error

	ListHistory(ctx context.Context, testRequestID uuid.UUID) ([]*TestStatusHistory, error)

	ListResults(ctx context.Context, testRequestID uuid.UUID) ([]*TestResult, error)
}
