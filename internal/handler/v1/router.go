package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/domain"
	"github.com/medhaven/clinicflow/internal/handler/middleware"
	"github.com/medhaven/clinicflow/pkg/auth"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

type RouterDeps struct {
	AuthHandler        *AuthHandler
	AppointmentHandler *AppointmentHandler
	BillingHandler     *BillingHandler
	LabTestHandler     *LabTestHandler
	DashboardHandler   *DashboardHandler

	JWTManager *auth.JWTManager
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Log        *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", deps.AuthHandler.Register)
		authGroup.POST("/login", deps.AuthHandler.Login)
		authGroup.POST("/refresh", deps.AuthHandler.Refresh)
		authGroup.POST("/change-password", middleware.Auth(deps.JWTManager), deps.AuthHandler.ChangePassword)
	}

	authed := api.Group("")
	authed.Use(middleware.Auth(deps.JWTManager))

	staff := middleware.RequireRoles(domain.RoleAdmin, domain.RoleDoctor, domain.RoleBiller, domain.RoleLabTechnician)
	doctors := middleware.RequireRoles(domain.RoleAdmin, domain.RoleDoctor)
	billers := middleware.RequireRoles(domain.RoleAdmin, domain.RoleBiller)
	lab := middleware.RequireRoles(domain.RoleAdmin, domain.RoleLabTechnician)

	appointments := authed.Group("/appointments")
	{
		appointments.POST("", deps.AppointmentHandler.Book)
		appointments.GET("", deps.AppointmentHandler.List)
		appointments.GET("/:id", deps.AppointmentHandler.Get)
		appointments.POST("/:id/cancel", deps.AppointmentHandler.Cancel)
		appointments.POST("/:id/complete", doctors, deps.AppointmentHandler.Complete)
	}
	authed.GET("/doctors/:doctorId/slots", deps.AppointmentHandler.AvailableSlots)

	billingGroup := authed.Group("/bill-requests")
	{
		billingGroup.POST("", doctors, deps.BillingHandler.SubmitDiagnosis)
		billingGroup.GET("", deps.BillingHandler.ListBillRequests)
		billingGroup.GET("/:id", deps.BillingHandler.GetBillRequest)
		billingGroup.POST("/:id/finalize", billers, deps.BillingHandler.Finalize)
		billingGroup.POST("/:id/reject", billers, deps.BillingHandler.Reject)
		billingGroup.POST("/:id/rederive-tests", staff, deps.BillingHandler.Rederive)
		billingGroup.GET("/:id/tests-complete", staff, deps.DashboardHandler.TestsComplete)
	}
	authed.GET("/patients/:patientId/bills", deps.BillingHandler.ListPatientBills)
	authed.POST("/bills/:id/status", billers, deps.BillingHandler.UpdateBillStatus)
	authed.GET("/catalog/tests", staff, deps.BillingHandler.TestCatalog)

	tests := authed.Group("/test-requests")
	{
		tests.GET("", deps.LabTestHandler.List)
		tests.GET("/:id", deps.LabTestHandler.Get)
		tests.POST("/:id/transition", lab, deps.LabTestHandler.Transition)
		tests.POST("/:id/result", lab, deps.LabTestHandler.RecordResult)
		tests.GET("/:id/history", staff, deps.LabTestHandler.History)
		tests.GET("/:id/results", deps.LabTestHandler.Results)
	}

	authed.GET("/patients/:patientId/rollup", deps.DashboardHandler.PatientRollup)

	return r
}
