package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	backDashboard "github.com/orbitadevhub/backDashboard"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot backDashboard.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() backDashboard.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                           { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: backDashboard.MetricsSnapshot{
			Counters: map[backDashboard.MetricID]uint64{
				backDashboard.MetricLoginSuccess:    7,
				backDashboard.MetricGuardForbidden:  2,
				backDashboard.MetricPendingReplay:   1,
				backDashboard.MetricValidateLatency: 0,
			},
			Histograms: map[backDashboard.MetricID][]uint64{
				backDashboard.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	}
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP authd_login_success_total Logins that issued a VERIFIED token.
# TYPE authd_login_success_total counter
authd_login_success_total 7
# HELP authd_guard_forbidden_total Guarded calls without a required role.
# TYPE authd_guard_forbidden_total counter
authd_guard_forbidden_total 2
# HELP authd_audit_dropped_total Audit events dropped under backpressure.
# TYPE authd_audit_dropped_total counter
authd_audit_dropped_total 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authd_login_success_total", "authd_guard_forbidden_total", "authd_audit_dropped_total")
	require.NoError(t, err)
}

func TestCollectorHistogram(t *testing.T) {
	c := NewCollector(sampleSource())

	expected := `
# HELP authd_validate_latency_seconds Token validation latency.
# TYPE authd_validate_latency_seconds histogram
authd_validate_latency_seconds_bucket{le="0.005"} 1
authd_validate_latency_seconds_bucket{le="0.01"} 3
authd_validate_latency_seconds_bucket{le="0.025"} 6
authd_validate_latency_seconds_bucket{le="0.05"} 10
authd_validate_latency_seconds_bucket{le="0.1"} 15
authd_validate_latency_seconds_bucket{le="0.25"} 21
authd_validate_latency_seconds_bucket{le="0.5"} 28
authd_validate_latency_seconds_bucket{le="+Inf"} 36
authd_validate_latency_seconds_sum 0
authd_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected), "authd_validate_latency_seconds")
	require.NoError(t, err)
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(sampleSource()))
	require.NoError(t, err)
	require.Empty(t, problems)
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	srv := httptest.NewServer(Handler(sampleSource()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "authd_login_success_total 7")
	require.Contains(t, string(body), "go_goroutines")
}
