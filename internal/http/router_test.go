package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-iop/internal/camera"
	"wisefido-iop/internal/capture"
	"wisefido-iop/internal/connectivity"
	"wisefido-iop/internal/measurement"
	"wisefido-iop/internal/models"
	"wisefido-iop/internal/report"
	"wisefido-iop/internal/repository"
)

type testEnv struct {
	state   *connectivity.State
	machine *capture.Machine
	devices *camera.SimulatedDevices
	store   *repository.MemoryMeasurementsRepo
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	state := connectivity.NewState(ctx, connectivity.NewMemoryStore(), logger,
		connectivity.WithCalibrationDuration(50*time.Millisecond))
	devices := camera.NewSimulatedDevices(false)
	machine := capture.NewMachine(state, camera.NewMediaStreamAdapter(devices, time.Second, logger),
		capture.NewSampler(nil, nil), logger,
		capture.WithDwell(5*time.Millisecond),
		capture.WithSettle(5*time.Millisecond),
	)

	patients := repository.NewMemoryPatientsRepo()
	store := repository.NewMemoryMeasurementsRepo()
	mailbox := measurement.NewMailbox(0)
	assembler := measurement.NewAssembler(state, patients, store, machine, mailbox, logger)
	reports := report.NewService(patients, store, mailbox, logger)

	router := NewRouter(logger)
	router.RegisterDeviceRoutes(NewDeviceHandler(state, logger), NewEventsHandler(state, machine, logger))
	router.RegisterCaptureRoutes(NewCaptureHandler(state, machine, logger))
	router.RegisterPatientRoutes(NewPatientHandler(patients, store, logger))
	router.RegisterMeasurementRoutes(NewMeasurementHandler(assembler, logger))
	router.RegisterReportRoutes(NewReportHandler(reports, logger))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		machine.Close()
		state.Close(context.Background())
	})

	return &testEnv{state: state, machine: machine, devices: devices, store: store, server: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) Result[json.RawMessage] {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Result[json.RawMessage]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestDeviceRoutes(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/iop/api/v1/device/status", nil)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.JSONEq(t, `{"connected":true,"busy":false}`, string(res.Result))

	res = env.do(t, http.MethodPost, "/iop/api/v1/device/calibrate", nil)
	assert.Equal(t, "success", res.Type)
	assert.JSONEq(t, `{"connected":true,"busy":true}`, string(res.Result))

	res = env.do(t, http.MethodPost, "/iop/api/v1/device/calibrate", nil)
	assert.Equal(t, "warning", res.Type)

	res = env.do(t, http.MethodPost, "/iop/api/v1/device/toggle", nil)
	assert.JSONEq(t, `{"connected":false,"busy":false}`, string(res.Result))

	res = env.do(t, http.MethodPost, "/iop/api/v1/device/calibrate", nil)
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "warning", res.Type)
	assert.Equal(t, "device disconnected", res.Message)

	resp, err := http.Get(env.server.URL + "/iop/api/v1/device/toggle")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCaptureRoutes(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/iop/api/v1/capture/right?wait=true", nil)
	require.Equal(t, "success", res.Type, res.Message)
	var side SideView
	require.NoError(t, json.Unmarshal(res.Result, &side))
	require.NotNil(t, side.Reading)
	assert.GreaterOrEqual(t, side.Reading.ValueMmHg, models.MinIOP)
	assert.LessOrEqual(t, side.Reading.ValueMmHg, models.MaxIOP)
	assert.NotEmpty(t, side.Label)

	res = env.do(t, http.MethodGet, "/iop/api/v1/capture/state", nil)
	var view CaptureStateView
	require.NoError(t, json.Unmarshal(res.Result, &view))
	assert.True(t, view.Connected)
	require.Len(t, view.Sides, 2)
	assert.Equal(t, models.EyeRight, view.Sides[0].Side)
	assert.NotNil(t, view.Sides[0].Reading)
	assert.Nil(t, view.Sides[1].Reading)

	res = env.do(t, http.MethodPost, "/iop/api/v1/capture/up", nil)
	assert.Equal(t, ResultError, res.Code)

	env.state.Toggle(context.Background())
	res = env.do(t, http.MethodPost, "/iop/api/v1/capture/left?wait=true", nil)
	assert.Equal(t, "warning", res.Type)
	res = env.do(t, http.MethodPost, "/iop/api/v1/capture/left", nil)
	assert.Equal(t, "warning", res.Type)
}

func TestCaptureRoutes_CameraDenied(t *testing.T) {
	env := newTestEnv(t)
	env.devices.SetDenied(true)

	res := env.do(t, http.MethodPost, "/iop/api/v1/capture/left?wait=true", nil)
	assert.Equal(t, ResultError, res.Code)
	assert.Contains(t, res.Message, "camera unavailable")

	res = env.do(t, http.MethodGet, "/iop/api/v1/capture/state", nil)
	var view CaptureStateView
	require.NoError(t, json.Unmarshal(res.Result, &view))
	assert.False(t, view.Active)
	assert.Equal(t, models.StatusIdle, view.Sides[1].Status)
	assert.NotEmpty(t, view.Sides[1].Error)
}

func TestCaptureRoutes_AsyncStartAndCancel(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/iop/api/v1/capture/left", nil)
	assert.Equal(t, "success", res.Type)

	res = env.do(t, http.MethodPost, "/iop/api/v1/capture/cancel", nil)
	assert.Equal(t, "success", res.Type)
	assert.Eventually(t, func() bool {
		return env.devices.Open() == 0 && !env.machine.Active()
	}, time.Second, 5*time.Millisecond)
}

func TestMeasurementAndReportRoutes(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/iop/api/v1/capture/right?wait=true", nil)
	require.Equal(t, "success", res.Type)

	res = env.do(t, http.MethodPost, "/iop/api/v1/measurements", map[string]any{
		"patient_id": "2",
		"left_eye":   19,
		"notes":      "mild discomfort",
	})
	require.Equal(t, "success", res.Type, res.Message)

	var saved struct {
		Record  models.MeasurementRecord `json:"record"`
		Handoff measurement.Payload      `json:"handoff"`
	}
	require.NoError(t, json.Unmarshal(res.Result, &saved))
	assert.Equal(t, "P002", saved.Record.PatientDisplayID)
	require.NotNil(t, saved.Record.RightEyeMmHg)
	assert.Equal(t, 19, *saved.Record.LeftEyeMmHg)
	assert.Empty(t, env.machine.Readings(), "readings reset after save")
	assert.Equal(t, 1, env.store.Count())

	res = env.do(t, http.MethodGet, "/iop/api/v1/reports/2", nil)
	var rep report.Report
	require.NoError(t, json.Unmarshal(res.Result, &rep))
	assert.True(t, rep.NewMeasurement)
	assert.Equal(t, "Sundar Ramaswamy", rep.Name)
	assert.Equal(t, 19, rep.LeftEyeMmHg)
	assert.Equal(t, "mild discomfort", rep.Notes)
	assert.Equal(t, saved.Handoff.Date, rep.Updated)

	res = env.do(t, http.MethodGet, "/iop/api/v1/reports/2", nil)
	require.NoError(t, json.Unmarshal(res.Result, &rep))
	assert.False(t, rep.NewMeasurement)
	assert.Equal(t, report.DefaultLastVisited, rep.LastVisited)

	resp, err := http.Get(env.server.URL + "/iop/api/v1/reports/2/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(env.server.URL + "/iop/api/v1/reports/2/x/export")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestMeasurementRoutes_Disconnected(t *testing.T) {
	env := newTestEnv(t)
	env.state.Toggle(context.Background())

	res := env.do(t, http.MethodPost, "/iop/api/v1/measurements", map[string]any{"patient_id": "1", "right_eye": 15})
	assert.Equal(t, ResultSuccess, res.Code)
	assert.Equal(t, "warning", res.Type)
	assert.Equal(t, 0, env.store.Count())
}

func TestPatientRoutes(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/iop/api/v1/patients?search=joshi", nil)
	var out struct {
		Items []PatientView `json:"items"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Result, &out))
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "P004", out.Items[0].DisplayID)
	assert.Empty(t, out.Items[0].Status)
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/iop/api/v1/device/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg struct {
		Type string             `json:"type"`
		Data connectivity.Event `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "device", msg.Type)
	assert.True(t, msg.Data.Connected)

	env.state.Toggle(context.Background())

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "device", msg.Type)
	assert.Equal(t, models.DeviceStatusEvent, msg.Data.Event)
	assert.False(t, msg.Data.Connected)
}
