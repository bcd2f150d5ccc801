package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/forpostctl/internal/eventstore"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/manager"
	"git.home.luguber.info/inful/forpostctl/internal/metrics"
)

type fakeSource struct {
	status    manager.Status
	statusErr error
	events    []eventstore.Event
	limit     int
}

func (f *fakeSource) Status(context.Context) (manager.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeSource) History(_ context.Context, limit int) ([]eventstore.Event, error) {
	f.limit = limit
	return f.events, nil
}

func newTestHTTP(t *testing.T, src StatusSource) (*httptest.Server, *Health) {
	t.Helper()
	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.SetStreamActive(true)

	h := NewHealth()
	h.SetRunning(true)
	srv := httptest.NewServer(NewHTTPServer("127.0.0.1:0", src, reg, h).Handler())
	t.Cleanup(srv.Close)
	return srv, h
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	srv, h := newTestHTTP(t, &fakeSource{})

	resp, body := get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var hr HealthResponse
	require.NoError(t, json.Unmarshal(body, &hr))
	assert.Equal(t, HealthStatusHealthy, hr.Status)

	h.SetRunning(false)
	resp, _ = get(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	src := &fakeSource{status: manager.Status{Ready: true}}
	srv, _ := newTestHTTP(t, src)

	resp, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	var st manager.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Ready)
}

func TestStatusEndpointMapsErrors(t *testing.T) {
	src := &fakeSource{statusErr: errors.FileSystemError("config unreadable").Build()}
	srv, _ := newTestHTTP(t, src)

	resp, _ := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestEventsEndpoint(t *testing.T) {
	src := &fakeSource{events: []eventstore.Event{
		&eventstore.BaseEvent{EventID: 7, EventOperationID: "op-1", EventType: eventstore.TypeStreamControl, EventPayload: []byte(`{"action":"start"}`)},
	}}
	srv, _ := newTestHTTP(t, src)

	resp, body := get(t, srv.URL+"/events?limit=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, src.limit)
	var records []eventstore.Record
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "op-1", records[0].OperationID)

	resp, _ = get(t, srv.URL+"/events")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, defaultHistoryLimit, src.limit)

	resp, _ = get(t, srv.URL+"/events?limit=0")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestHTTP(t, &fakeSource{})

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "forpostctl_stream_active 1")
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestHTTP(t, &fakeSource{})

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
