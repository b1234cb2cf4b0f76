package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BillRequestStatus string

const (
	RequestPending  BillRequestStatus = "pending"
	RequestApproved BillRequestStatus = "approved"
	RequestRejected BillRequestStatus = "rejected"
)

func (s BillRequestStatus) IsValid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected:
		return true
	}
	return false
}

type BillStatus string

const (
	BillPending BillStatus = "pending"
	BillPaid    BillStatus = "paid"
	BillOverdue BillStatus = "overdue"
)

// BillRequest is a doctor-originated, biller-resolved request for payment
// covering a diagnosis and its tests. AppointmentID is the explicit link used
// by the edit path; legacy rows without it fall back to a
// most-recent-pending-by-patient lookup.
type BillRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PatientID     uuid.UUID  `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID      uuid.UUID  `gorm:"column:doctor_id;type:uuid;not null;index"`
	AppointmentID *uuid.UUID `gorm:"column:appointment_id;type:uuid;index"`

	// Amount is whole rupees: the cost tables carry no fractions and integer
	// math keeps the finalized bill amount exact.
	Amount int64  `gorm:"column:amount;not null"`
	Notes  string `gorm:"column:notes;type:text;not null"`

	Status BillRequestStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
}

func (BillRequest) TableName() string {
	return "billing.bill_requests"
}

// Bill is the immutable record created exactly once per approved BillRequest.
// The unique index on bill_request_id makes duplicate finalization a
// detectable constraint violation rather than a double charge.
type Bill struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	BillRequestID uuid.UUID `gorm:"column:bill_request_id;type:uuid;not null;uniqueIndex"`
	PatientID     uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`

	Amount        int64      `gorm:"column:amount;not null"`
	Status        BillStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	PaymentMethod string     `gorm:"column:payment_method;type:varchar(30)"`
}

func (Bill) TableName() string {
	return "billing.bills"
}

// Diagnosis is the structured input for bill-request creation. SelectedTests
// is the primary path; free-text extraction from the composed notes only
// kicks in when it is empty (legacy input compatibility).
type Diagnosis struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AppointmentID   *uuid.UUID
	ConsultationFee int64
	DiseaseName     string
	SelectedTests   []string
	CreatedBy       uuid.UUID
}

// TotalAmount computes consultation fee + disease cost + per-test costs.
// Unknown diseases and tests cost zero.
func (d *Diagnosis) TotalAmount() int64 {
	total := d.ConsultationFee + DiseaseCost(d.DiseaseName)
	for _, t := range d.SelectedTests {
		total += TestCost(t)
	}
	return total
}

// ComposeNotes renders the human-readable breakdown stored on the bill
// request. The format is an internal convention the test-name extractor
// depends on: "<Disease> - Consultation Fee: ₹<n>, Tests: <t1>, <t2>".
func ComposeNotes(d *Diagnosis) string {
	return fmt.Sprintf("%s - Consultation Fee: ₹%d, Tests: %s",
		d.DiseaseName, d.ConsultationFee, strings.Join(d.SelectedTests, ", "))
}

type ListBillRequestsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *BillRequestStatus
	Page      int
	PageSize  int
}

type PagedBillRequests struct {
	BillRequests []*BillRequest
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
