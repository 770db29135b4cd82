package httpapi

import (
	"net/http"

	"wisefido-iop/internal/connectivity"

	"go.uber.org/zap"
)

// DeviceHandler 设备连接状态 Handler
type DeviceHandler struct {
	state  *connectivity.State
	logger *zap.Logger
}

// NewDeviceHandler 创建设备状态 Handler
func NewDeviceHandler(state *connectivity.State, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{state: state, logger: logger}
}

// GetStatus 当前连接状态
func (h *DeviceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.state.Snapshot()))
}

// Toggle 切换连接状态
func (h *DeviceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.state.Toggle(r.Context())))
}

// Calibrate 开始校准；未连接或正在校准时忽略
func (h *DeviceHandler) Calibrate(w http.ResponseWriter, r *http.Request) {
	if !h.state.StartCalibration(r.Context()) {
		snap := h.state.Snapshot()
		msg := "calibration already in progress"
		if !snap.Connected {
			msg = "device disconnected"
		}
		writeJSON(w, http.StatusOK, Warn(msg, snap))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.state.Snapshot()))
}
