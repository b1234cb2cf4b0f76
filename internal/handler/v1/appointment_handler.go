package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/handler/middleware"
	"github.com/medhaven/clinicflow/internal/service"
)

type AppointmentHandler struct {
	svc *service.AppointmentService
}

func NewAppointmentHandler(svc *service.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

type bookAppointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID  uuid.UUID `json:"doctor_id" binding:"required"`
	Date      string    `json:"date" binding:"required"`
	TimeSlot  string    `json:"time_slot" binding:"required"`
	Notes     string    `json:"notes"`
}

func (h *AppointmentHandler) Book(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	var req bookAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	// Patients can only book for themselves.
	if claims.Role == "patient" {
		if claims.PatientID == nil || *claims.PatientID != req.PatientID {
			respondError(c, http.StatusForbidden, "access denied")
			return
		}
	}

	a, err := h.svc.Book(c.Request.Context(), &appointment.BookAppointmentCommand{
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		TimeSlot:  req.TimeSlot,
		Notes:     req.Notes,
		CreatedBy: claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, a)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.GetAppointment(c.Request.Context(), id, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelAppointmentRequest
	if !bindJSON(c, &req) {
		return
	}

	a, err := h.svc.Cancel(c.Request.Context(), id, &appointment.CancelAppointmentCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	}, claims.UserID, string(claims.Role), claims.PatientID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) Complete(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.svc.Complete(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, a)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	q := &appointment.ListAppointmentsQuery{
		PatientID: parseQueryUUID(c, "patient_id"),
		DoctorID:  parseQueryUUID(c, "doctor_id"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := appointment.Status(raw)
		if !status.IsValid() {
			respondError(c, http.StatusBadRequest, "invalid status filter")
			return
		}
		q.Status = &status
	}
	if raw := c.Query("date_from"); raw != "" {
		q.DateFrom = &raw
	}
	if raw := c.Query("date_to"); raw != "" {
		q.DateTo = &raw
	}

	page, err := h.svc.List(c.Request.Context(), q, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, page)
}

// AvailableSlots reports the open grid slots for a doctor on a date. The
// answer is advisory; booking still races through the unique index.
func (h *AppointmentHandler) AvailableSlots(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	date := c.Query("date")
	if date == "" {
		respondError(c, http.StatusBadRequest, "date query parameter is required")
		return
	}

	slots, err := h.svc.AvailableSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{
		"doctor_id":       doctorID,
		"date":            date,
		"available_slots": slots,
	})
}
