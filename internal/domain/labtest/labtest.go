package labtest

import (
	"time"

	"github.com/google/uuid"
)

type TestType string

const (
	TypeBlood   TestType = "blood"
	TypeUrine   TestType = "urine"
	TypeImaging TestType = "imaging"
	TypeOther   TestType = "other"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// State transitions possibilities:
//
//	pending → in_progress → completed → sent_to_user
//	pending → completed (result recorded without an explicit start)
//	any non-terminal → cancelled
//
// sent_to_user and cancelled are terminal. No backward moves.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSentToUser Status = "sent_to_user"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusSentToUser, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusSentToUser || s == StatusCancelled
}

// TestRequest is one trackable unit of lab work derived from a bill request.
type TestRequest struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	BillRequestID uuid.UUID `gorm:"column:bill_request_id;type:uuid;not null;index"`
	PatientID     uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID      uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	TestName string   `gorm:"column:test_name;type:varchar(255);not null"`
	TestType TestType `gorm:"column:test_type;type:varchar(20);not null;index"`

	Status   Status   `gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	Priority Priority `gorm:"column:priority;type:varchar(10);not null;default:'normal';index"`

	EstimatedDurationMins int `gorm:"column:estimated_duration_mins;not null;default:30"`

	StartedAt    *time.Time `gorm:"column:started_at"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
	SentToUserAt *time.Time `gorm:"column:sent_to_user_at"`

	Notes string `gorm:"column:notes;type:text"`
}

func (TestRequest) TableName() string {
	return "lab.test_requests"
}

func (t *TestRequest) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusCompleted:  {StatusSentToUser, StatusCancelled},
		StatusSentToUser: {},
		StatusCancelled:  {},
	}

	for _, s := range allowed[t.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// ApplyTransition mutates status and the matching timestamp after validating
// the move is forward-or-cancel. Invalid moves are rejected, never clamped.
func (t *TestRequest) ApplyTransition(newStatus Status) error {
	if !newStatus.IsValid() {
		return ErrInvalidStatus
	}
	if !t.CanTransitionTo(newStatus) {
		return ErrInvalidStatusTransition
	}

	now := time.Now()
	switch newStatus {
	case StatusInProgress:
		t.StartedAt = &now
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusSentToUser:
		t.SentToUserAt = &now
	}
	t.Status = newStatus
	return nil
}

// AcceptsResult reports whether a lab result may be recorded in the current
// state. Recording a result implicitly completes the request.
func (t *TestRequest) AcceptsResult() bool {
	return t.Status == StatusPending || t.Status == StatusInProgress
}

type ResultStatus string

const (
	ResultNormal     ResultStatus = "normal"
	ResultAbnormal   ResultStatus = "abnormal"
	ResultPositive   ResultStatus = "positive"
	ResultNegative   ResultStatus = "negative"
	ResultBorderline ResultStatus = "borderline"
)

func (s ResultStatus) IsValid() bool {
	switch s {
	case ResultNormal, ResultAbnormal, ResultPositive, ResultNegative, ResultBorderline:
		return true
	}
	return false
}

// TestResult is append-only: one row per completed test request, never
// overwritten. Optional fields are explicit columns rather than a free-form
// JSON blob so new readers don't have to guess at nesting.
type TestResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	TestRequestID   uuid.UUID `gorm:"column:test_request_id;type:uuid;not null;index"`
	LabTechnicianID uuid.UUID `gorm:"column:lab_technician_id;type:uuid;not null;index"`

	ResultValue string       `gorm:"column:result_value;type:text;not null"`
	NormalRange string       `gorm:"column:normal_range;type:varchar(100);not null"`
	Status      ResultStatus `gorm:"column:status;type:varchar(20);not null"`

	Units          string `gorm:"column:units;type:varchar(50)"`
	ReferenceRange string `gorm:"column:reference_range;type:varchar(100)"`
	Interpretation string `gorm:"column:interpretation;type:text"`
	Notes          string `gorm:"column:notes;type:text"`
}

func (TestResult) TableName() string {
	return "lab.test_results"
}

// TestStatusHistory is the append-only audit trail: exactly one row per
// accepted transition.
type TestStatusHistory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	TestRequestID uuid.UUID `gorm:"column:test_request_id;type:uuid;not null;index"`

	OldStatus Status    `gorm:"column:old_status;type:varchar(20);not null"`
	NewStatus Status    `gorm:"column:new_status;type:varchar(20);not null"`
	ChangedBy uuid.UUID `gorm:"column:changed_by;type:uuid;not null"`
	Reason    string    `gorm:"column:reason;type:text"`
}

func (TestStatusHistory) TableName() string {
	return "lab.test_status_history"
}

type RecordResultCommand struct {
	TestRequestID   uuid.UUID
	LabTechnicianID uuid.UUID
	ResultValue     string
	NormalRange     string
	Status          ResultStatus
	Units           string
	ReferenceRange  string
	Interpretation  string
	Notes           string
}

type ListTestRequestsQuery struct {
	BillRequestID *uuid.UUID
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	Status        *Status
	Priority      *Priority
	Page          int
	PageSize      int
}

type PagedTestRequests struct {
	TestRequests []*TestRequest
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
