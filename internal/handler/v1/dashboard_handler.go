package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/medhaven/clinicflow/internal/handler/middleware"
	"github.com/medhaven/clinicflow/internal/service"
)

// DashboardHandler serves the read-side rollups the role dashboards poll.
type DashboardHandler struct {
	aggSvc *service.AggregatorService
}

func NewDashboardHandler(aggSvc *service.AggregatorService) *DashboardHandler {
	return &DashboardHandler{aggSvc: aggSvc}
}

// PatientRollup returns per-status appointment, bill request and lab test
// counts for one patient, cached briefly on the read side.
func (h *DashboardHandler) PatientRollup(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	patientID, ok := parseUUID(c, "patientId")
	if !ok {
		return
	}

	rollup, err := h.aggSvc.Rollup(c.Request.Context(), patientID, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, rollup)
}

// TestsComplete answers the biller's pre-finalization check: are all lab
// tests for this bill request strictly completed?
func (h *DashboardHandler) TestsComplete(c *gin.Context) {
	billRequestID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	complete, err := h.aggSvc.AllTestsComplete(c.Request.Context(), billRequestID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, gin.H{
		"bill_request_id":    billRequestID,
		"all_tests_complete": complete,
	})
}
