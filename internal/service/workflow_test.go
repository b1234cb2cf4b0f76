package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medhaven/clinicflow/internal/domain/appointment"
	"github.com/medhaven/clinicflow/internal/domain/billing"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
)

// Walks the full clinic path: a booked visit, the doctor's diagnosis, the lab
// working the derived tests, and the biller finalizing once everything is
// complete.
func TestVisitToBillWorkflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	patientID := env.seedPatient(t)
	doctorID := uuid.New()
	techID := uuid.New()

	appt, err := env.appointmentSvc.Book(ctx, bookCmd(patientID, doctorID, futureDate(1), "09:00 AM"), patientID, "patient", "")
	require.NoError(t, err)

	br, err := env.billingSvc.CreateOrUpdate(ctx, &billing.Diagnosis{
		PatientID:       patientID,
		DoctorID:        doctorID,
		AppointmentID:   &appt.ID,
		ConsultationFee: 500,
		DiseaseName:     "Fever",
		SelectedTests:   []string{"CBC Test", "Dengue Test"},
		CreatedBy:       doctorID,
	}, doctorID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), br.Amount)
	assert.Equal(t, billing.RequestPending, br.Status)

	tests, err := env.lab.ListByBillRequest(ctx, br.ID)
	require.NoError(t, err)
	require.Len(t, tests, 2)

	complete, err := env.aggSvc.AllTestsComplete(ctx, br.ID)
	require.NoError(t, err)
	assert.False(t, complete)

	// The lab works the first test through the explicit transitions and
	// records a result on the second, which completes it implicitly.
	_, err = env.labSvc.Transition(ctx, tests[0].ID, labtest.StatusInProgress, "sample collected", techID, "lab_technician", "")
	require.NoError(t, err)
	_, err = env.labSvc.Transition(ctx, tests[0].ID, labtest.StatusCompleted, "", techID, "lab_technician", "")
	require.NoError(t, err)

	_, err = env.labSvc.RecordResult(ctx, resultCmd(tests[1].ID, techID), "lab_technician", "")
	require.NoError(t, err)

	complete, err = env.aggSvc.AllTestsComplete(ctx, br.ID)
	require.NoError(t, err)
	assert.True(t, complete)

	billerID := uuid.New()
	bill, err := env.billingSvc.Finalize(ctx, br.ID, "card", billerID, "biller", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), bill.Amount)
	assert.Equal(t, billing.BillPaid, bill.Status)

	again, err := env.billingSvc.Finalize(ctx, br.ID, "card", billerID, "biller", "")
	require.NoError(t, err)
	assert.Equal(t, bill.ID, again.ID)

	resolved, err := env.billingSvc.GetBillRequest(ctx, br.ID, "biller", nil)
	require.NoError(t, err)
	assert.Equal(t, billing.RequestApproved, resolved.Status)

	// The completed visit shows up on the patient's rollup and bill list.
	rollup, err := env.aggSvc.Rollup(ctx, patientID, "patient", &patientID)
	require.NoError(t, err)
	assert.Equal(t, 2, rollup.TotalTests)
	assert.Equal(t, 2, rollup.TestsByStatus["completed"])
	assert.True(t, rollup.AllTestsComplete)
	assert.Equal(t, 1, rollup.AppointmentsByStatus["scheduled"])
	assert.Equal(t, 1, rollup.BillRequestsByStatus["approved"])
	assert.Equal(t, 1, rollup.BillCount)

	bills, err := env.billingSvc.ListBillsByPatient(ctx, patientID, "patient", &patientID)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, bill.ID, bills[0].ID)

	done, err := env.appointmentSvc.Complete(ctx, appt.ID, doctorID, "doctor", "")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, done.Status)
}
