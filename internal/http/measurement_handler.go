package httpapi

import (
	"errors"
	"net/http"

	"wisefido-iop/internal/measurement"

	"go.uber.org/zap"
)

// MeasurementHandler 保存测量 Handler
type MeasurementHandler struct {
	assembler *measurement.Assembler
	logger    *zap.Logger
}

// NewMeasurementHandler 创建 Handler
func NewMeasurementHandler(assembler *measurement.Assembler, logger *zap.Logger) *MeasurementHandler {
	return &MeasurementHandler{assembler: assembler, logger: logger}
}

// Save POST /measurements
func (h *MeasurementHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req measurement.SaveRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	rec, err := h.assembler.Save(r.Context(), req)
	if err != nil {
		var saveErr *measurement.SaveError
		switch {
		case errors.Is(err, measurement.ErrDisconnected):
			writeJSON(w, http.StatusOK, Warn[any]("device disconnected, measurement not saved", nil))
		case errors.As(err, &saveErr):
			writeJSON(w, http.StatusOK, Fail("failed to save measurement, please retry"))
		default:
			writeJSON(w, http.StatusOK, Fail(err.Error()))
		}
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"record":  rec,
		"handoff": measurement.NewPayload(rec),
	}))
}
