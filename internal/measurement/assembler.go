// Package measurement 测量记录组装、保存与交接
package measurement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wisefido-iop/internal/models"
	"wisefido-iop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrDisconnected 设备断开时保存为空操作
	ErrDisconnected = errors.New("device disconnected")
	// ErrInvalidReading 读数超出合法范围
	ErrInvalidReading = errors.New("invalid reading")
	// ErrPatientRequired 未选择患者
	ErrPatientRequired = errors.New("patient is required")
)

// SaveError 持久化失败（可重试，内存状态不变）
type SaveError struct {
	PatientID string
	Err       error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save measurement for patient %s: %v", e.PatientID, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ConnectivityReader 只读连接状态
type ConnectivityReader interface {
	Connected() bool
}

// Session 当前采集会话的读数
type Session interface {
	Readings() map[models.EyeSide]*models.Reading
	Reset()
}

// SaveRequest 保存请求；未提供的眼别取当前会话读数
type SaveRequest struct {
	PatientID string `json:"patient_id"`
	RightEye  *int   `json:"right_eye,omitempty"`
	LeftEye   *int   `json:"left_eye,omitempty"`
	Notes     string `json:"notes"`
}

// Assembler 组装并保存测量记录
type Assembler struct {
	mu       sync.Mutex // 串行化保存
	conn     ConnectivityReader
	patients repository.PatientDirectory
	store    repository.MeasurementStore
	session  Session
	handoff  Handoff
	now      func() time.Time
	logger   *zap.Logger
}

// NewAssembler 创建 Assembler；session / handoff 可为 nil
func NewAssembler(
	conn ConnectivityReader,
	patients repository.PatientDirectory,
	store repository.MeasurementStore,
	session Session,
	handoff Handoff,
	logger *zap.Logger,
) *Assembler {
	return &Assembler{
		conn:     conn,
		patients: patients,
		store:    store,
		session:  session,
		handoff:  handoff,
		now:      time.Now,
		logger:   logger,
	}
}

// Save 组装记录并持久化；成功后重置基线并交接
func (a *Assembler) Save(ctx context.Context, req SaveRequest) (*models.MeasurementRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.conn.Connected() {
		a.logger.Debug("Save ignored, device disconnected", zap.String("patient_id", req.PatientID))
		return nil, ErrDisconnected
	}

	rec, err := a.assemble(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := a.store.Insert(ctx, rec); err != nil {
		a.logger.Error("Failed to persist measurement",
			zap.String("patient_id", rec.PatientID),
			zap.String("record_id", rec.RecordID),
			zap.Error(err),
		)
		return nil, &SaveError{PatientID: rec.PatientID, Err: err}
	}

	if a.session != nil {
		a.session.Reset()
	}
	if a.handoff != nil {
		if err := a.handoff.Deliver(ctx, rec); err != nil {
			a.logger.Warn("Measurement handoff failed", zap.String("record_id", rec.RecordID), zap.Error(err))
		}
	}

	a.logger.Info("Measurement saved",
		zap.String("record_id", rec.RecordID),
		zap.String("patient_id", rec.PatientID),
		zap.String("patient_display_id", rec.PatientDisplayID),
		zap.Any("right_eye_mmhg", rec.RightEyeMmHg),
		zap.Any("left_eye_mmhg", rec.LeftEyeMmHg),
	)
	return rec, nil
}

func (a *Assembler) assemble(ctx context.Context, req SaveRequest) (*models.MeasurementRecord, error) {
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		return nil, ErrPatientRequired
	}

	right, left := req.RightEye, req.LeftEye
	if a.session != nil && (right == nil || left == nil) {
		readings := a.session.Readings()
		if right == nil {
			right = readingValue(readings[models.EyeRight])
		}
		if left == nil {
			left = readingValue(readings[models.EyeLeft])
		}
	}
	for side, v := range map[models.EyeSide]*int{models.EyeRight: right, models.EyeLeft: left} {
		if v != nil && (*v < models.MinIOP || *v > models.MaxIOP) {
			return nil, fmt.Errorf("%w: %s eye %d mmHg", ErrInvalidReading, side, *v)
		}
	}

	displayID := patientID
	if p, err := a.patients.Get(ctx, patientID); err == nil {
		displayID = p.DisplayID
	} else {
		a.logger.Warn("Patient not found in directory, using raw id",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
	}

	rec := &models.MeasurementRecord{
		RecordID:         uuid.NewString(),
		PatientID:        patientID,
		PatientDisplayID: displayID,
		RightEyeMmHg:     right,
		LeftEyeMmHg:      left,
		CapturedAt:       a.now(),
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		rec.Notes = &notes
	}
	return rec, nil
}

func readingValue(r *models.Reading) *int {
	if r == nil {
		return nil
	}
	v := r.ValueMmHg
	return &v
}
