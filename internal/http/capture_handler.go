package httpapi

import (
	"errors"
	"net/http"

	"wisefido-iop/internal/camera"
	"wisefido-iop/internal/capture"
	"wisefido-iop/internal/connectivity"
	"wisefido-iop/internal/models"
	"wisefido-iop/internal/risk"

	"go.uber.org/zap"
)

// CaptureHandler 采集会话 Handler
type CaptureHandler struct {
	state   *connectivity.State
	machine *capture.Machine
	logger  *zap.Logger
}

// NewCaptureHandler 创建采集 Handler
func NewCaptureHandler(state *connectivity.State, machine *capture.Machine, logger *zap.Logger) *CaptureHandler {
	return &CaptureHandler{state: state, machine: machine, logger: logger}
}

// SideView 单眼会话视图（附带风险分级）
type SideView struct {
	models.SessionSnapshot
	Tier  risk.Tier `json:"tier"`
	Label string    `json:"label"`
}

// CaptureStateView 采集页状态
type CaptureStateView struct {
	Connected bool       `json:"connected"`
	Active    bool       `json:"active"`
	Sides     []SideView `json:"sides"`
}

func newSideView(s models.SessionSnapshot) SideView {
	var value *int
	if s.Reading != nil {
		value = &s.Reading.ValueMmHg
	}
	tier := risk.Classify(value)
	return SideView{SessionSnapshot: s, Tier: tier, Label: tier.Label()}
}

func (h *CaptureHandler) view() CaptureStateView {
	snaps := h.machine.Snapshots()
	v := CaptureStateView{
		Connected: h.state.Connected(),
		Active:    h.machine.Active(),
		Sides:     make([]SideView, 0, len(snaps)),
	}
	for _, s := range snaps {
		v.Sides = append(v.Sides, newSideView(s))
	}
	return v
}

// GetState 双眼会话状态
func (h *CaptureHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(h.view()))
}

// Start 开始采集；?wait=true 时同步等待读数
func (h *CaptureHandler) Start(w http.ResponseWriter, r *http.Request, rawSide string) {
	side, err := models.ParseEyeSide(rawSide)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	if !parseBool(r.URL.Query().Get("wait")) {
		if !h.machine.Start(side) {
			writeJSON(w, http.StatusOK, Warn("capture not started", h.view()))
			return
		}
		writeJSON(w, http.StatusOK, Ok(h.view()))
		return
	}

	reading, err := h.machine.Capture(r.Context(), side)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Ok(newSideView(models.SessionSnapshot{
			Side:    side,
			Status:  models.StatusIdle,
			Reading: reading,
		})))
	case errors.Is(err, capture.ErrInvalidTransition):
		writeJSON(w, http.StatusOK, Warn(err.Error(), h.view()))
	case errors.Is(err, camera.ErrCameraUnavailable):
		h.logger.Warn("Capture failed, camera unavailable", zap.String("side", string(side)), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("camera unavailable: check camera permissions"))
	default:
		h.logger.Warn("Capture failed", zap.String("side", string(side)), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	}
}

// Cancel 放弃进行中的会话（离开采集页面）
func (h *CaptureHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.machine.Cancel()
	writeJSON(w, http.StatusOK, Ok(h.view()))
}
