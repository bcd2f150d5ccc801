package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveOperationDuration("artifact_upload", 150*time.Millisecond)
	pr.IncOperationResult("artifact_upload", ResultSuccess)
	pr.IncOperationResult("artifact_upload", ResultFailed)
	pr.IncOperationResult("artifact_upload", ResultFailed)
	pr.IncReplaceFailure("replacing")
	pr.IncCompensation(true)
	pr.SetConfigBackups(3)
	pr.SetRestartPending(true)
	pr.SetStreamActive(false)
	pr.IncConfigFileEvent("write")

	assert.InDelta(t, 2, testutil.ToFloat64(pr.opResults.WithLabelValues("artifact_upload", "failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.replaceFailures.WithLabelValues("replacing")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(pr.configBackups), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.restartPending), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(pr.streamActive), 0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncOperationResult("x", ResultSuccess)
		pr.SetStreamActive(true)
		pr.IncCompensation(false)
	})
}

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncOperationResult("config_save", ResultSuccess)
	r.ObserveOperationDuration("config_save", time.Second)
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.SetArtifactBackups(2)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "forpostctl_artifact_backups 2"))
}
