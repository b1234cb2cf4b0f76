package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/config"
	"github.com/medhaven/clinicflow/internal/domain/patient"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

var testSlotGrid = []string{"09:00 AM", "10:00 AM", "11:00 AM", "02:00 PM", "03:00 PM", "04:00 PM"}

type testEnv struct {
	appointments *fakeAppointmentRepo
	patients     *fakePatientRepo
	billing      *fakeBillingRepo
	lab          *fakeLabRepo
	auditRepo    *fakeAuditRepo

	auditSvc       *AuditService
	slotSvc        *SlotService
	appointmentSvc *AppointmentService
	billingSvc     *BillingService
	labSvc         *LabTestService
	aggSvc         *AggregatorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zap.NewNop()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	env := &testEnv{
		appointments: newFakeAppointmentRepo(),
		patients:     newFakePatientRepo(),
		billing:      newFakeBillingRepo(),
		lab:          newFakeLabRepo(),
		auditRepo:    &fakeAuditRepo{},
	}

	env.auditSvc = NewAuditService(env.auditRepo, log, collector)
	t.Cleanup(env.auditSvc.Shutdown)

	clinicCfg := config.ClinicConfig{
		SlotTimes:               testSlotGrid,
		DefaultTestDurationMins: 30,
		RollupCacheTTL:          30 * time.Second,
	}

	env.slotSvc = NewSlotService(env.appointments, clinicCfg)
	env.appointmentSvc = NewAppointmentService(env.appointments, env.patients, env.slotSvc, env.auditSvc, collector, log)
	env.billingSvc = NewBillingService(env.billing, env.lab, env.auditSvc, nil, collector, log, clinicCfg.DefaultTestDurationMins)
	env.labSvc = NewLabTestService(env.lab, env.auditSvc, nil, collector, log)
	env.aggSvc = NewAggregatorService(env.lab, env.appointments, env.billing, nil, collector, log, clinicCfg.RollupCacheTTL)

	return env
}

func (env *testEnv) seedPatient(t *testing.T) uuid.UUID {
	t.Helper()

	p := &patient.Patient{
		FirstName: "Asha",
		LastName:  "Verma",
		Email:     "asha." + uuid.NewString()[:8] + "@example.com",
		Status:    patient.StatusActive,
	}
	require.NoError(t, env.patients.Create(context.Background(), p))
	return p.ID
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format("2006-01-02")
}
