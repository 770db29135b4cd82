package httpapi

import (
	"fmt"
	"net/http"

	"wisefido-iop/internal/report"

	"go.uber.org/zap"
)

// ReportHandler 患者报告 Handler
type ReportHandler struct {
	reports *report.Service
	logger  *zap.Logger
}

// NewReportHandler 创建报告 Handler
func NewReportHandler(reports *report.Service, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// Get GET /reports/{patientId}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request, patientID string) {
	rep, err := h.reports.Get(r.Context(), patientID)
	if err != nil {
		h.logger.Error("Get report failed", zap.String("patient_id", patientID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(rep))
}

// Export GET /reports/{patientId}/export
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request, patientID string) {
	data, err := h.reports.Export(r.Context(), patientID)
	if err != nil {
		h.logger.Error("Export report failed", zap.String("patient_id", patientID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=iop-report-%s.xlsx", patientID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
