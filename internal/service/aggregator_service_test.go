package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medhaven/clinicflow/internal/cache"
	"github.com/medhaven/clinicflow/internal/domain/labtest"
	"github.com/medhaven/clinicflow/pkg/metrics"
)

func TestAllTestsCompletePredicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	techID := uuid.New()
	billRequestID := uuid.New()

	newReq := func() *labtest.TestRequest {
		req := env.seedTestRequest(t, uuid.New())
		req.BillRequestID = billRequestID
		// Re-point the stored copy at the shared bill request.
		env.lab.requests[req.ID].BillRequestID = billRequestID
		return req
	}

	t.Run("no tests is vacuously complete", func(t *testing.T) {
		complete, err := env.aggSvc.AllTestsComplete(ctx, uuid.New())
		require.NoError(t, err)
		assert.True(t, complete)
	})

	first := newReq()
	second := newReq()

	complete, err := env.aggSvc.AllTestsComplete(ctx, billRequestID)
	require.NoError(t, err)
	assert.False(t, complete, "pending tests keep the set incomplete")

	_, err = env.labSvc.Transition(ctx, first.ID, labtest.StatusCompleted, "", techID, "lab_technician", "")
	require.NoError(t, err)

	complete, err = env.aggSvc.AllTestsComplete(ctx, billRequestID)
	require.NoError(t, err)
	assert.False(t, complete, "one pending test keeps the set incomplete")

	_, err = env.labSvc.Transition(ctx, second.ID, labtest.StatusCompleted, "", techID, "lab_technician", "")
	require.NoError(t, err)

	complete, err = env.aggSvc.AllTestsComplete(ctx, billRequestID)
	require.NoError(t, err)
	assert.True(t, complete)

	// Sending a report to the patient moves the test past completed, and the
	// predicate requires strictly completed.
	_, err = env.labSvc.Transition(ctx, first.ID, labtest.StatusSentToUser, "", techID, "lab_technician", "")
	require.NoError(t, err)

	complete, err = env.aggSvc.AllTestsComplete(ctx, billRequestID)
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestCancelledTestKeepsSetIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := env.seedTestRequest(t, uuid.New())

	_, err := env.labSvc.Transition(ctx, req.ID, labtest.StatusCancelled, "", uuid.New(), "lab_technician", "")
	require.NoError(t, err)

	complete, err := env.aggSvc.AllTestsComplete(ctx, req.BillRequestID)
	require.NoError(t, err)
	assert.False(t, complete)
}

func newCachedEnv(t *testing.T) (*testEnv, *cache.Cache, *miniredis.Miniredis) {
	t.Helper()

	env := newTestEnv(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return env, cache.New(rdb, "test:"), mr
}

func TestRollupIsCachedAndInvalidated(t *testing.T) {
	env, c, mr := newCachedEnv(t)
	ctx := context.Background()
	log := zap.NewNop()
	collector := metrics.NewCollector("test_cached", prometheus.NewRegistry())

	labSvc := NewLabTestService(env.lab, env.auditSvc, c, collector, log)
	aggSvc := NewAggregatorService(env.lab, env.appointments, env.billing, c, collector, log, 30*time.Second)

	patientID := uuid.New()
	req := env.seedTestRequest(t, patientID)

	rollup, err := aggSvc.Rollup(ctx, patientID, "doctor", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rollup.TotalTests)
	assert.Equal(t, 1, rollup.TestsByStatus["pending"])
	assert.False(t, rollup.AllTestsComplete)

	// Cached: a direct store write is invisible until invalidation.
	env.lab.requests[req.ID].Status = labtest.StatusCompleted
	cached, err := aggSvc.Rollup(ctx, patientID, "doctor", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TestsByStatus["pending"], "stale read within TTL is expected")

	// A transition through the service invalidates the rollup.
	env.lab.requests[req.ID].Status = labtest.StatusPending
	_, err = labSvc.Transition(ctx, req.ID, labtest.StatusCompleted, "", uuid.New(), "lab_technician", "")
	require.NoError(t, err)

	fresh, err := aggSvc.Rollup(ctx, patientID, "doctor", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TestsByStatus["completed"])
	assert.True(t, fresh.AllTestsComplete)

	// TTL expiry also refreshes.
	env.lab.requests[req.ID].Status = labtest.StatusSentToUser
	mr.FastForward(31 * time.Second)

	expired, err := aggSvc.Rollup(ctx, patientID, "doctor", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, expired.TestsByStatus["sent_to_user"])
}

func TestRollupScopedToOwnPatient(t *testing.T) {
	env := newTestEnv(t)
	patientID := uuid.New()
	env.seedTestRequest(t, patientID)

	other := uuid.New()
	_, err := env.aggSvc.Rollup(context.Background(), patientID, "patient", &other)
	assert.ErrorIs(t, err, ErrForbidden)

	rollup, err := env.aggSvc.Rollup(context.Background(), patientID, "patient", &patientID)
	require.NoError(t, err)
	assert.Equal(t, 1, rollup.TotalTests)
}
