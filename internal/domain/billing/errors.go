package billing

import (
	"errors"
	"fmt"
)

var (
	ErrBillRequestNotFound  = errors.New("bill request not found")
	ErrBillNotFound         = errors.New("bill not found")
	ErrBillExists           = errors.New("a bill already exists for this bill request")
	ErrRequestResolved      = errors.New("bill request is already approved or rejected")
	ErrBillResolved         = errors.New("bill is already paid")
	ErrTestDerivationFailed = errors.New("bill request created but test derivation failed")
)

// DerivationError reports the partial-failure mode of bill creation: the
// BillRequest row exists but its TestRequests could not be materialized.
// Callers retry only the derivation step, not the whole creation.
type DerivationError struct {
	BillRequest *BillRequest
	Err         error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("bill request %s created but test derivation failed: %v", e.BillRequest.ID, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return ErrTestDerivationFailed
}
