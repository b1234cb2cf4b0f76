package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/internal/handler/middleware"
	"github.com/medhaven/clinicflow/internal/service"
)

type LabTestHandler struct {
	svc *service.LabTestService
}

func NewLabTestHandler(svc *service.LabTestService) *LabTestHandler {
	return &LabTestHandler{svc: svc}
}

type transitionRequest struct {
	Status labtest.Status `json:"status" binding:"required"`
	Reason string         `json:"reason"`
}

func (h *LabTestHandler) Transition(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req transitionRequest
	if !bindJSON(c, &req) {
		return
	}

	tr, err := h.svc.Transition(c.Request.Context(), id, req.Status, req.Reason, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, tr)
}

type recordResultRequest struct {
	ResultValue    string               `json:"result_value" binding:"required"`
	NormalRange    string               `json:"normal_range" binding:"required"`
	Status         labtest.ResultStatus `json:"status" binding:"required"`
	Units          string               `json:"units"`
	ReferenceRange string               `json:"reference_range"`
	Interpretation string               `json:"interpretation"`
	Notes          string               `json:"notes"`
}

// RecordResult stores a lab result; the test request completes implicitly in
// the same transaction.
func (h *LabTestHandler) RecordResult(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req recordResultRequest
	if !bindJSON(c, &req) {
		return
	}

	technicianID := claims.UserID
	if claims.StaffID != nil {
		technicianID = *claims.StaffID
	}

	tr, err := h.svc.RecordResult(c.Request.Context(), &labtest.RecordResultCommand{
		TestRequestID:   id,
		LabTechnicianID: technicianID,
		ResultValue:     req.ResultValue,
		NormalRange:     req.NormalRange,
		Status:          req.Status,
		Units:           req.Units,
		ReferenceRange:  req.ReferenceRange,
		Interpretation:  req.Interpretation,
		Notes:           req.Notes,
	}, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, tr)
}

func (h *LabTestHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	tr, err := h.svc.GetTestRequest(c.Request.Context(), id, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, tr)
}

func (h *LabTestHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	q := &labtest.ListTestRequestsQuery{
		BillRequestID: parseQueryUUID(c, "bill_request_id"),
		PatientID:     parseQueryUUID(c, "patient_id"),
		DoctorID:      parseQueryUUID(c, "doctor_id"),
		Page:          parseQueryInt(c, "page", 1),
		PageSize:      parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := labtest.Status(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &status
	}
	if raw := c.Query("priority"); raw != "" {
		priority := labtest.Priority(raw)
		if !priority.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid priority filter")
			return
		}
		q.Priority = &priority
	}

	page, err := h.svc.ListQueue(c.Request.Context(), q, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, page)
}

func (h *LabTestHandler) History(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	hist, err := h.svc.ListHistory(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, hist)
}

func (h *LabTestHandler) Results(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	results, err := h.svc.ListResults(c.Request.Context(), id, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, results)
}
