// Package report 患者报告视图与导出
package report

import (
	"context"
	"errors"
	"fmt"

	"wisefido-iop/internal/measurement"
	"wisefido-iop/internal/models"
	"wisefido-iop/internal/repository"
	"wisefido-iop/internal/risk"

	"go.uber.org/zap"
)

const (
	// 无交接数据时的默认展示值
	DefaultRightEye    = 15
	DefaultLeftEye     = 16
	DefaultLastVisited = "01-06-2025"

	unknownPatient = "Unknown Patient"
)

// Report 患者报告
type Report struct {
	PatientID        string    `json:"patient_id"`
	PatientDisplayID string    `json:"patient_display_id"`
	Name             string    `json:"name"`
	Age              int       `json:"age"`
	LastVisited      string    `json:"last_visited"`
	RightEyeMmHg     int       `json:"right_eye_mmhg"`
	LeftEyeMmHg      int       `json:"left_eye_mmhg"`
	RightTier        risk.Tier `json:"right_tier"`
	LeftTier         risk.Tier `json:"left_tier"`
	Tier             risk.Tier `json:"tier"`
	Status           string    `json:"status"` // NORMAL / BORDERLINE / AT RISK
	Updated          string    `json:"updated,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	NewMeasurement   bool      `json:"new_measurement"`
}

// Build 组装报告；payload 为 nil 时使用默认值，缺失的眼别同样取默认值
func Build(patientID string, patient *models.Patient, payload *measurement.Payload) *Report {
	r := &Report{
		PatientID:        patientID,
		PatientDisplayID: patientID,
		Name:             unknownPatient,
		LastVisited:      DefaultLastVisited,
		RightEyeMmHg:     DefaultRightEye,
		LeftEyeMmHg:      DefaultLeftEye,
	}
	if patient != nil {
		r.PatientDisplayID = patient.DisplayID
		r.Name = patient.Name
		r.Age = patient.Age
	}

	if payload != nil {
		r.NewMeasurement = true
		if payload.Date != "" {
			r.LastVisited = payload.Date
			r.Updated = payload.Date
		}
		if payload.RightEye != nil {
			r.RightEyeMmHg = *payload.RightEye
		}
		if payload.LeftEye != nil {
			r.LeftEyeMmHg = *payload.LeftEye
		}
		r.Notes = payload.Notes
	}

	r.RightTier = risk.ClassifyValue(r.RightEyeMmHg)
	r.LeftTier = risk.ClassifyValue(r.LeftEyeMmHg)
	r.Tier = risk.Overall(&r.RightEyeMmHg, &r.LeftEyeMmHg)
	r.Status = r.Tier.Label()
	return r
}

// Mailbox 一次性交接数据来源
type Mailbox interface {
	Take(patientID string) (measurement.Payload, bool)
}

// Service 报告服务
type Service struct {
	patients repository.PatientDirectory
	store    repository.MeasurementStore
	mailbox  Mailbox
	logger   *zap.Logger
}

// NewService 创建报告服务
func NewService(patients repository.PatientDirectory, store repository.MeasurementStore, mailbox Mailbox, logger *zap.Logger) *Service {
	return &Service{
		patients: patients,
		store:    store,
		mailbox:  mailbox,
		logger:   logger,
	}
}

// Get 报告页：取出刚保存的测量（一次性），没有则展示默认值
func (s *Service) Get(ctx context.Context, patientID string) (*Report, error) {
	patient, err := s.lookup(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var payload *measurement.Payload
	if s.mailbox != nil {
		if p, ok := s.mailbox.Take(patientID); ok {
			payload = &p
		}
	}
	return Build(patientID, patient, payload), nil
}

// Export 导出报告表格：使用已持久化的最近一次测量
func (s *Service) Export(ctx context.Context, patientID string) ([]byte, error) {
	patient, err := s.lookup(ctx, patientID)
	if err != nil {
		return nil, err
	}

	displayID := patientID
	if patient != nil {
		displayID = patient.DisplayID
	}

	var payload *measurement.Payload
	rec, err := s.store.Latest(ctx, displayID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest measurement: %w", err)
	}
	if rec != nil {
		p := measurement.NewPayload(rec)
		payload = &p
	}

	return GenerateExcel(Build(patientID, patient, payload))
}

func (s *Service) lookup(ctx context.Context, patientID string) (*models.Patient, error) {
	patient, err := s.patients.Get(ctx, patientID)
	switch {
	case err == nil:
		return patient, nil
	case errors.Is(err, repository.ErrPatientNotFound):
		s.logger.Debug("Report for unknown patient", zap.String("patient_id", patientID))
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
}
