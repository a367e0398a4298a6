package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"axiapac.com/devicesync/agent"
	"axiapac.com/devicesync/bootstrap"
	v1 "axiapac.com/devicesync/collector/v1"
	"axiapac.com/devicesync/config"
	"axiapac.com/devicesync/device"
	"axiapac.com/devicesync/device/devicetest"
	"axiapac.com/devicesync/employees"
	"axiapac.com/devicesync/infrastructure/communication"
	"axiapac.com/devicesync/logging"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []agent.Employee

func (s staticSource) Employees(context.Context, string) ([]agent.Employee, error) {
	return s, nil
}

type fixture struct {
	dialer *devicetest.Dialer
	router *gin.Engine
	posts  int
}

func newFixture(t *testing.T, src employees.Source) *fixture {
	t.Helper()
	f := &fixture{dialer: devicetest.NewDialer()}

	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.posts++
		w.Write([]byte(`{"status": true}`))
	}))
	t.Cleanup(collector.Close)

	cfg := &config.Config{Devices: []device.Descriptor{
		{ID: "d1", Name: "Front", IP: "10.0.0.1"},
		{ID: "d2", Name: "Back", IP: "10.0.0.2"},
	}}
	rt := &bootstrap.Runtime{
		Config:    cfg,
		Logger:    logging.Nop(),
		Dialer:    f.dialer,
		Collector: v1.NewCollectorClient(collector.URL, "k", v1.Options{}),
		Notifier:  communication.Nop(),
		Locks:     agent.NewDeviceLocks(),
	}

	gin.SetMode(gin.TestMode)
	f.router = gin.New()
	New(rt, src).Register(f.router.Group("/api"))
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestSyncAllDevices(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dialer.Add("d1", devicetest.NewClient())
	c.Attendance = []device.AttendanceRecord{{UserID: "1"}}
	f.dialer.Add("d2", devicetest.NewClient()).ConnectOK = false

	w, body := f.do(t, http.MethodPost, "/api/sync", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["total_devices"])
	assert.EqualValues(t, 1, data["success_count"])
	assert.EqualValues(t, 1, data["failure_count"])
	assert.Equal(t, 1, f.posts)
}

func TestSyncSelectedDevices(t *testing.T) {
	f := newFixture(t, nil)
	f.dialer.Add("d2", devicetest.NewClient())

	w, body := f.do(t, http.MethodPost, "/api/sync", `{"devices": [1]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["total_devices"])
	assert.Equal(t, []string{"d2"}, f.dialer.Dials)

	w, body = f.do(t, http.MethodPost, "/api/sync", `{"devices": [7]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["message"], "out of range")
}

func TestPushFromBody(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dialer.Add("d1", devicetest.NewClient())

	w, body := f.do(t, http.MethodPost, "/api/devices/0/push",
		`{"employees": [{"id": "EMP-00042", "name": "Alice"}, {"id": "E2", "name": "Bob", "native_user_id": "9"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["success_count"])
	require.Len(t, c.Written, 2)
	assert.Equal(t, "00042", c.Written[0].UID)
	assert.Equal(t, "9", c.Written[1].UID)
}

func TestPushFromSourceDryRun(t *testing.T) {
	f := newFixture(t, staticSource{{ID: "E1234567", Name: "Alice"}})

	w, body := f.do(t, http.MethodPost, "/api/devices/1/push", `{"branch": "B1", "dry_run": true}`)

	require.Equal(t, http.StatusOK, w.Code)
	preview := body["data"].([]any)
	require.Len(t, preview, 1)
	assert.Equal(t, "34567", preview[0].(map[string]any)["assigned_uid"])
	assert.Empty(t, f.dialer.Dials)
}

func TestPushValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		msg    string
	}{
		{"bad index", "/api/devices/x/push", `{}`, http.StatusBadRequest, "must be a number"},
		{"unknown device", "/api/devices/5/push", `{}`, http.StatusNotFound, "out of range"},
		{"empty body", "/api/devices/0/push", ``, http.StatusBadRequest, "empty"},
		{"no branch or employees", "/api/devices/0/push", `{}`, http.StatusBadRequest, "'branch' is required"},
		{"employee without name", "/api/devices/0/push", `{"employees": [{"id": "E1"}]}`, http.StatusBadRequest, "'name' is required"},
		{"branch without source", "/api/devices/0/push", `{"branch": "B1"}`, http.StatusBadRequest, "no employee source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, body["message"], tt.msg)
		})
	}
}

func TestPushConnectFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.dialer.Add("d1", devicetest.NewClient()).ConnectOK = false

	w, body := f.do(t, http.MethodPost, "/api/devices/0/push", `{"employees": [{"id": "E1", "name": "A"}]}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, string(agent.KindConnection), body["data"].(map[string]any)["error_kind"])
}
