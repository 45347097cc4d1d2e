package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/formcoach/internal/load"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Classified("overload", []load.Alert{
		{Code: load.CodeOverloadCritical, Severity: load.SeverityCritical},
		{Code: load.CodeRampHigh, Severity: load.SeverityWarning},
	})
	r.Classified("overload", nil)
	r.ProposalTransition("", "created")
	r.ProposalTransition("created", "presented")
	r.PlanCommit("session-moved", "conflict")
	r.MoveWarning("rest-day-removed", "medium")
	r.TaskProcessed("load:evaluate", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.classifications.WithLabelValues("overload")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alerts.WithLabelValues(load.CodeOverloadCritical, "critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("none", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commits.WithLabelValues("session-moved", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.moveWarnings.WithLabelValues("rest-day-removed", "medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.tasks.WithLabelValues("load:evaluate", "ok")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	r := New()
	r.ObserveRequest("/cycles/{cycleTag}/history", "GET", 200, 0.01)
	r.PlanCommit("proposal-applied", "ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `formcoach_plan_commits_total{kind="proposal-applied",outcome="ok"} 1`)
	assert.Contains(t, body, `formcoach_http_request_duration_seconds_count{class="2xx",method="GET",route="/cycles/{cycleTag}/history"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{101: "1xx", 204: "2xx", 304: "3xx", 409: "4xx", 503: "5xx"} {
		assert.Equal(t, want, statusClass(code))
	}
}
