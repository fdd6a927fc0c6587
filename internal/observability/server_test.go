package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	IssueFetches.WithLabelValues("ok").Inc()
	StepDuration.WithLabelValues("full-history", "compute-metrics", "ok").Observe(0.2)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `commitguru_issues_fetches_total{outcome="ok"}`)
	assert.Contains(t, string(body), "commitguru_pipeline_step_duration_seconds_bucket")
}
