package models

import "time"

const (
	// MinIOP / MaxIOP 读数合法范围（mmHg）
	MinIOP = 10
	MaxIOP = 45
)

// Reading 单眼读数
type Reading struct {
	ValueMmHg int       `json:"value_mmhg"`
	Timestamp time.Time `json:"timestamp"`
}

// MeasurementRecord 一次测量记录（保存后不可变）
type MeasurementRecord struct {
	RecordID         string    `json:"record_id"`
	PatientID        string    `json:"patient_id"`
	PatientDisplayID string    `json:"patient_display_id"` // 存储键（如 "P001"）
	RightEyeMmHg     *int      `json:"right_eye_mmhg"`
	LeftEyeMmHg      *int      `json:"left_eye_mmhg"`
	Notes            *string   `json:"notes"`
	CapturedAt       time.Time `json:"captured_at"`
}

// DisplayDate 报告页使用的日期格式（MM/DD/YYYY）
func (r *MeasurementRecord) DisplayDate() string {
	return r.CapturedAt.Format("01/02/2006")
}
