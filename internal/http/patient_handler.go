package httpapi

import (
	"net/http"

	"wisefido-iop/internal/models"
	"wisefido-iop/internal/repository"
	"wisefido-iop/internal/risk"

	"go.uber.org/zap"
)

// PatientHandler 患者目录 Handler
type PatientHandler struct {
	patients     repository.PatientDirectory
	measurements repository.MeasurementStore
	logger       *zap.Logger
}

// NewPatientHandler 创建患者目录 Handler
func NewPatientHandler(patients repository.PatientDirectory, measurements repository.MeasurementStore, logger *zap.Logger) *PatientHandler {
	return &PatientHandler{patients: patients, measurements: measurements, logger: logger}
}

// PatientView 患者列表项（附最近一次测量）
type PatientView struct {
	models.Patient
	LastVisited  string `json:"last_visited,omitempty"`
	RightEyeMmHg *int   `json:"right_eye_mmhg,omitempty"`
	LeftEyeMmHg  *int   `json:"left_eye_mmhg,omitempty"`
	Status       string `json:"status,omitempty"`
}

// List GET /patients?search=
func (h *PatientHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	search := r.URL.Query().Get("search")

	patients, err := h.patients.List(ctx, search)
	if err != nil {
		h.logger.Error("List patients failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	items := make([]PatientView, 0, len(patients))
	for _, p := range patients {
		item := PatientView{Patient: p}
		if h.measurements != nil {
			rec, err := h.measurements.Latest(ctx, p.DisplayID)
			if err != nil {
				h.logger.Warn("Load latest measurement failed", zap.String("patient_id", p.DisplayID), zap.Error(err))
			} else if rec != nil {
				item.LastVisited = rec.DisplayDate()
				item.RightEyeMmHg = rec.RightEyeMmHg
				item.LeftEyeMmHg = rec.LeftEyeMmHg
				item.Status = risk.Overall(rec.RightEyeMmHg, rec.LeftEyeMmHg).Label()
			}
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": len(items),
	}))
}
