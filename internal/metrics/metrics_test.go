package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := New()
	r.Submitted()
	r.Submitted()
	r.Outcome("completed", "fallback", 3, time.Second)
	r.Outcome("cancelled", "", 0, time.Millisecond)
	r.Fallback("draft")
	r.Cancelled()
	r.DispatchStarted()
	r.DispatchStarted()
	r.DispatchDone()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("completed", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("cancelled", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("draft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cancels))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.inflight))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Submitted()
		r.Outcome("failed", "fallback", 1, 0)
		r.Fallback("x")
		r.Cancelled()
		r.DispatchStarted()
		r.DispatchDone()
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	r := New()
	r.Submitted()
	New().Submitted() // separate registries never collide

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ntbk_tasks_submitted_total 1")
}
