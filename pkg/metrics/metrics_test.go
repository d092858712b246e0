package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDoesNotRegister(t *testing.T) {
	// Constructing collectors must be side-effect free so that callers can
	// build a Metrics without touching the default registry. A second New
	// would panic on duplicate registration otherwise.
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}

func TestMustRegisterExposesCollectors(t *testing.T) {
	m := New()
	m.MustRegister()

	m.JobsTriggeredTotal.Inc()
	m.ActiveJobs.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ingestion_jobs_triggered_total 1")
	assert.Contains(t, string(body), "ingestion_jobs_active 3")
}
