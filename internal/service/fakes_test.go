package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medhaven/clinicflow/internal/domain"
	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/domain/billing"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/internal/domain/patient"
)

// In-memory repository fakes. They enforce the same uniqueness rules the
// Postgres indexes do, so service-level conflict handling is exercised for
// real.

type fakeAppointmentRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*appointment.Appointment
}

func newFakeAppointmentRepo() *fakeAppointmentRepo {
	return &fakeAppointmentRepo{items: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *fakeAppointmentRepo) Create(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.DoctorID == a.DoctorID &&
			existing.Date == a.Date &&
			existing.TimeSlot == a.TimeSlot &&
			existing.Status != appointment.StatusCancelled {
			return appointment.ErrSlotTaken
		}
	}

	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *fakeAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAppointmentRepo) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date string) ([]*appointment.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*appointment.Appointment
	for _, a := range r.items {
		if a.DoctorID == doctorID && a.Date == date && a.Status != appointment.StatusCancelled {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeSlot < out[j].TimeSlot })
	return out, nil
}

func (r *fakeAppointmentRepo) UpdateStatus(_ context.Context, a *appointment.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[a.ID]; !ok {
		return appointment.ErrAppointmentNotFound
	}
	cp := *a
	r.items[a.ID] = &cp
	return nil
}

func (r *fakeAppointmentRepo) List(_ context.Context, q *appointment.ListAppointmentsQuery) (*appointment.PagedAppointments, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*appointment.Appointment
	for _, a := range r.items {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && a.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return &appointment.PagedAppointments{
		Appointments: out,
		TotalCount:   int64(len(out)),
		Page:         q.Page,
		PageSize:     q.PageSize,
	}, nil
}

func (r *fakeAppointmentRepo) StatusCountsByPatient(_ context.Context, patientID uuid.UUID) (map[appointment.Status]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[appointment.Status]int64)
	for _, a := range r.items {
		if a.PatientID == patientID {
			counts[a.Status]++
		}
	}
	return counts, nil
}

type fakePatientRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*patient.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{items: make(map[uuid.UUID]*patient.Patient)}
}

func (r *fakePatientRepo) Create(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Email == p.Email {
			return patient.ErrPatientAlreadyExists
		}
	}
	p.ID = uuid.New()
	cp := *p
	r.items[p.ID] = &cp
	return nil
}

func (r *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeBillingRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*billing.BillRequest
	bills    map[uuid.UUID]*billing.Bill
	seq      int
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{
		requests: make(map[uuid.UUID]*billing.BillRequest),
		bills:    make(map[uuid.UUID]*billing.Bill),
	}
}

func (r *fakeBillingRepo) CreateBillRequest(_ context.Context, br *billing.BillRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	br.ID = uuid.New()
	r.seq++
	br.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	cp := *br
	r.requests[br.ID] = &cp
	return nil
}

func (r *fakeBillingRepo) GetBillRequest(_ context.Context, id uuid.UUID) (*billing.BillRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	br, ok := r.requests[id]
	if !ok {
		return nil, billing.ErrBillRequestNotFound
	}
	cp := *br
	return &cp, nil
}

func (r *fakeBillingRepo) GetBillRequestByAppointment(_ context.Context, appointmentID uuid.UUID) (*billing.BillRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *billing.BillRequest
	for _, br := range r.requests {
		if br.AppointmentID == nil || *br.AppointmentID != appointmentID {
			continue
		}
		if latest == nil || br.CreatedAt.After(latest.CreatedAt) {
			latest = br
		}
	}
	if latest == nil {
		return nil, billing.ErrBillRequestNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeBillingRepo) GetLatestPendingByPatient(_ context.Context, patientID uuid.UUID) (*billing.BillRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *billing.BillRequest
	for _, br := range r.requests {
		if br.PatientID != patientID || br.Status != billing.RequestPending {
			continue
		}
		if latest == nil || br.CreatedAt.After(latest.CreatedAt) {
			latest = br
		}
	}
	if latest == nil {
		return nil, billing.ErrBillRequestNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeBillingRepo) UpdateBillRequest(_ context.Context, id uuid.UUID, amount int64, notes string) (*billing.BillRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	br, ok := r.requests[id]
	if !ok {
		return nil, billing.ErrBillRequestNotFound
	}
	br.Amount = amount
	br.Notes = notes
	cp := *br
	return &cp, nil
}

func (r *fakeBillingRepo) UpdateBillRequestStatus(_ context.Context, id uuid.UUID, status billing.BillRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	br, ok := r.requests[id]
	if !ok {
		return billing.ErrBillRequestNotFound
	}
	br.Status = status
	return nil
}

func (r *fakeBillingRepo) ListBillRequests(_ context.Context, q *billing.ListBillRequestsQuery) (*billing.PagedBillRequests, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*billing.BillRequest
	for _, br := range r.requests {
		if q.PatientID != nil && br.PatientID != *q.PatientID {
			continue
		}
		if q.DoctorID != nil && br.DoctorID != *q.DoctorID {
			continue
		}
		if q.Status != nil && br.Status != *q.Status {
			continue
		}
		cp := *br
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return &billing.PagedBillRequests{
		BillRequests: out,
		TotalCount:   int64(len(out)),
		Page:         q.Page,
		PageSize:     q.PageSize,
	}, nil
}

func (r *fakeBillingRepo) CreateBill(_ context.Context, b *billing.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.bills {
		if existing.BillRequestID == b.BillRequestID {
			return billing.ErrBillExists
		}
	}
	b.ID = uuid.New()
	cp := *b
	r.bills[b.ID] = &cp
	return nil
}

func (r *fakeBillingRepo) GetBill(_ context.Context, id uuid.UUID) (*billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bills[id]
	if !ok {
		return nil, billing.ErrBillNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBillingRepo) GetBillByRequestID(_ context.Context, billRequestID uuid.UUID) (*billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.bills {
		if b.BillRequestID == billRequestID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, billing.ErrBillNotFound
}

func (r *fakeBillingRepo) ListBillsByPatient(_ context.Context, patientID uuid.UUID) ([]*billing.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*billing.Bill
	for _, b := range r.bills {
		if b.PatientID == patientID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeBillingRepo) UpdateBillStatus(_ context.Context, id uuid.UUID, status billing.BillStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bills[id]
	if !ok {
		return billing.ErrBillNotFound
	}
	b.Status = status
	return nil
}

func (r *fakeBillingRepo) RequestStatusCountsByPatient(_ context.Context, patientID uuid.UUID) (map[billing.BillRequestStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[billing.BillRequestStatus]int64)
	for _, br := range r.requests {
		if br.PatientID == patientID {
			counts[br.Status]++
		}
	}
	return counts, nil
}

func (r *fakeBillingRepo) CountBillsByPatient(_ context.Context, patientID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, b := range r.bills {
		if b.PatientID == patientID {
			n++
		}
	}
	return n, nil
}

type fakeLabRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*labtest.TestRequest
	results  []*labtest.TestResult
	history  []*labtest.TestStatusHistory
	seq      int
}

func newFakeLabRepo() *fakeLabRepo {
	return &fakeLabRepo{requests: make(map[uuid.UUID]*labtest.TestRequest)}
}

func (r *fakeLabRepo) CreateBatch(_ context.Context, reqs []*labtest.TestRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, req := range reqs {
		req.ID = uuid.New()
		r.seq++
		req.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
		cp := *req
		r.requests[req.ID] = &cp
	}
	return nil
}

func (r *fakeLabRepo) GetByID(_ context.Context, id uuid.UUID) (*labtest.TestRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, labtest.ErrTestRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeLabRepo) ListByBillRequest(_ context.Context, billRequestID uuid.UUID) ([]*labtest.TestRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*labtest.TestRequest
	for _, req := range r.requests {
		if req.BillRequestID == billRequestID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeLabRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*labtest.TestRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*labtest.TestRequest
	for _, req := range r.requests {
		if req.PatientID == patientID {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeLabRepo) List(_ context.Context, q *labtest.ListTestRequestsQuery) (*labtest.PagedTestRequests, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*labtest.TestRequest
	for _, req := range r.requests {
		if q.BillRequestID != nil && req.BillRequestID != *q.BillRequestID {
			continue
		}
		if q.PatientID != nil && req.PatientID != *q.PatientID {
			continue
		}
		if q.Status != nil && req.Status != *q.Status {
			continue
		}
		if q.Priority != nil && req.Priority != *q.Priority {
			continue
		}
		cp := *req
		out = append(out, &cp)
	}

	return &labtest.PagedTestRequests{
		TestRequests: out,
		TotalCount:   int64(len(out)),
		Page:         q.Page,
		PageSize:     q.PageSize,
	}, nil
}

func (r *fakeLabRepo) SaveTransition(_ context.Context, req *labtest.TestRequest, hist *labtest.TestStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.requests[req.ID]
	if !ok {
		return labtest.ErrTestRequestNotFound
	}
	stored.Status = req.Status
	stored.StartedAt = req.StartedAt
	stored.CompletedAt = req.CompletedAt
	stored.SentToUserAt = req.SentToUserAt

	cp := *hist
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.history = append(r.history, &cp)
	return nil
}

func (r *fakeLabRepo) SaveResultAndTransition(ctx context.Context, req *labtest.TestRequest, res *labtest.TestResult, hist *labtest.TestStatusHistory) error {
	r.mu.Lock()
	cp := *res
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	r.results = append(r.results, &cp)
	r.mu.Unlock()

	return r.SaveTransition(ctx, req, hist)
}

func (r *fakeLabRepo) ListHistory(_ context.Context, testRequestID uuid.UUID) ([]*labtest.TestStatusHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*labtest.TestStatusHistory
	for _, h := range r.history {
		if h.TestRequestID == testRequestID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLabRepo) ListResults(_ context.Context, testRequestID uuid.UUID) ([]*labtest.TestResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*labtest.TestResult
	for _, res := range r.results {
		if res.TestRequestID == testRequestID {
			cp := *res
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (r *fakeAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}
