package repository

import (
	"context"
	"errors"

	"wisefido-iop/internal/models"
)

var (
	// ErrPatientNotFound 患者不存在
	ErrPatientNotFound = errors.New("patient not found")
	// ErrDuplicateRecord 测量记录 ID 冲突
	ErrDuplicateRecord = errors.New("measurement record already exists")
)

// PatientDirectory 患者目录（只读，用于选择测量对象）
type PatientDirectory interface {
	// List 按姓名或患者编号模糊过滤；search 为空返回全部
	List(ctx context.Context, search string) ([]models.Patient, error)
	// Get 按内部 ID 查询；不存在返回 ErrPatientNotFound
	Get(ctx context.Context, id string) (*models.Patient, error)
}

// MeasurementStore 测量记录存储
type MeasurementStore interface {
	Insert(ctx context.Context, record *models.MeasurementRecord) error
	// Latest 患者最近一次测量；没有记录时返回 nil, nil
	Latest(ctx context.Context, patientDisplayID string) (*models.MeasurementRecord, error)
}
