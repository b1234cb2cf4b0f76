package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medhaven/clinicflow/internal/domain/billing"
	"github.com/medhaven/clinicflow/internal/handler/middleware"
	"github.com/medhaven/clinicflow/internal/service"
)

type BillingHandler struct {
	svc *service.BillingService
}

func NewBillingHandler(svc *service.BillingService) *BillingHandler {
	return &BillingHandler{svc: svc}
}

type diagnosisRequest struct {
	PatientID       uuid.UUID  `json:"patient_id" binding:"required"`
	AppointmentID   *uuid.UUID `json:"appointment_id"`
	ConsultationFee int64      `json:"consultation_fee"`
	DiseaseName     string     `json:"disease_name" binding:"required"`
	SelectedTests   []string   `json:"selected_tests"`
}

// SubmitDiagnosis is the doctor's entry point: it creates a bill request (and
// derives its lab tests) or rewrites a still-pending one for the same
// appointment. Partial failure (request created, tests not) comes back as
// 201 with a warning so the client can offer a retry.
func (h *BillingHandler) SubmitDiagnosis(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	var req diagnosisRequest
	if !bindJSON(c, &req) {
		return
	}

	doctorID := claims.UserID
	if claims.StaffID != nil {
		doctorID = *claims.StaffID
	}

	br, err := h.svc.CreateOrUpdate(c.Request.Context(), &billing.Diagnosis{
		PatientID:       req.PatientID,
		DoctorID:        doctorID,
		AppointmentID:   req.AppointmentID,
		ConsultationFee: req.ConsultationFee,
		DiseaseName:     req.DiseaseName,
		SelectedTests:   req.SelectedTests,
		CreatedBy:       claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		var derivErr *billing.DerivationError
		if errors.As(err, &derivErr) {
			c.JSON(http.StatusCreated, APIResponse[any]{
				Data:    derivErr.BillRequest,
				Message: "bill request created but test derivation failed; retry via rederive",
			})
			return
		}
		respondServiceError(c, err)
		return
	}

	respondCreated(c, br)
}

func (h *BillingHandler) GetBillRequest(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	br, err := h.svc.GetBillRequest(c.Request.Context(), id, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, br)
}

func (h *BillingHandler) ListBillRequests(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	q := &billing.ListBillRequestsQuery{
		PatientID: parseQueryUUID(c, "patient_id"),
		DoctorID:  parseQueryUUID(c, "doctor_id"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := billing.BillRequestStatus(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &status
	}

	page, err := h.svc.ListBillRequests(c.Request.Context(), q, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, page)
}

type finalizeRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// Finalize approves the bill request and creates its bill. Safe to retry:
// repeat calls return the existing bill.
func (h *BillingHandler) Finalize(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req finalizeRequest
	if !bindJSON(c, &req) {
		return
	}

	bill, err := h.svc.Finalize(c.Request.Context(), id, req.PaymentMethod, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, bill)
}

func (h *BillingHandler) Reject(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	br, err := h.svc.Reject(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, br)
}

// Rederive retries lab test derivation for a bill request whose derivation
// previously failed. Idempotent.
func (h *BillingHandler) Rederive(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	tests, err := h.svc.RederiveTests(c.Request.Context(), id)
	if err != nil {
		var derivErr *billing.DerivationError
		if errors.As(err, &derivErr) {
			respondError(c, http.StatusUnprocessableEntity, "test derivation failed: "+derivErr.Err.Error())
			return
		}
		respondServiceError(c, err)
		return
	}

	respondOK(c, tests)
}

type billStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateBillStatus records a payment outcome on a finalized bill (the biller
// marking it paid, or flagging it overdue).
func (h *BillingHandler) UpdateBillStatus(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req billStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	bill, err := h.svc.MarkBillStatus(c.Request.Context(), id, billing.BillStatus(req.Status), claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, bill)
}

type testCatalogEntry struct {
	Name string `json:"name"`
	Cost int64  `json:"cost"`
}

// TestCatalog lists the orderable lab tests with their prices, feeding the
// diagnosis form's test picker.
func (h *BillingHandler) TestCatalog(c *gin.Context) {
	names := billing.TestList()
	entries := make([]testCatalogEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, testCatalogEntry{Name: name, Cost: billing.TestCost(name)})
	}
	respondOK(c, entries)
}

func (h *BillingHandler) ListPatientBills(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	bills, err := h.svc.ListBillsByPatient(c.Request.Context(), patientID, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, bills)
}
