package repository

import (
	"context"
	"fmt"
	"sync"

	"wisefido-iop/internal/models"
)

// MemoryMeasurementsRepo 未启用数据库时的测量记录存储
type MemoryMeasurementsRepo struct {
	mu      sync.RWMutex
	ids     map[string]struct{}
	latest  map[string]models.MeasurementRecord // patient_display_id -> 最近记录
	inserts int
}

func NewMemoryMeasurementsRepo() *MemoryMeasurementsRepo {
	return &MemoryMeasurementsRepo{
		ids:    map[string]struct{}{},
		latest: map[string]models.MeasurementRecord{},
	}
}

var _ MeasurementStore = (*MemoryMeasurementsRepo)(nil)

func (r *MemoryMeasurementsRepo) Insert(_ context.Context, record *models.MeasurementRecord) error {
	if record == nil || record.RecordID == "" || record.PatientDisplayID == "" {
		return fmt.Errorf("record_id and patient_display_id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[record.RecordID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, record.RecordID)
	}
	r.ids[record.RecordID] = struct{}{}
	r.inserts++

	if cur, ok := r.latest[record.PatientDisplayID]; !ok || !record.CapturedAt.Before(cur.CapturedAt) {
		r.latest[record.PatientDisplayID] = *record
	}
	return nil
}

func (r *MemoryMeasurementsRepo) Latest(_ context.Context, patientDisplayID string) (*models.MeasurementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.latest[patientDisplayID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Count 已写入的记录数
func (r *MemoryMeasurementsRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inserts
}
