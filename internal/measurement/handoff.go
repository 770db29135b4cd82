package measurement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-iop/internal/models"
)

// Payload 保存后交给报告页的数据
type Payload struct {
	RecordID  string `json:"record_id"`
	PatientID string `json:"patientId"` // 患者编号（如 "P001"）
	RightEye  *int   `json:"rightEye"`
	LeftEye   *int   `json:"leftEye"`
	Notes     string `json:"notes"`
	Date      string `json:"date"` // MM/DD/YYYY
}

// NewPayload 由测量记录生成交接数据
func NewPayload(rec *models.MeasurementRecord) Payload {
	p := Payload{
		RecordID:  rec.RecordID,
		PatientID: rec.PatientDisplayID,
		RightEye:  rec.RightEyeMmHg,
		LeftEye:   rec.LeftEyeMmHg,
		Date:      rec.DisplayDate(),
	}
	if rec.Notes != nil {
		p.Notes = *rec.Notes
	}
	return p
}

// Handoff 测量记录交接（不得阻塞保存流程）
type Handoff interface {
	Deliver(ctx context.Context, rec *models.MeasurementRecord) error
}

// Mailbox 每个患者一个一次性投递槽，报告页读取后即清空
type Mailbox struct {
	mu    sync.Mutex
	slots map[string]slot // 患者内部 ID -> 交接数据
	ttl   time.Duration
}

type slot struct {
	payload   Payload
	expiresAt time.Time
}

// NewMailbox ttl<=0 表示不过期
func NewMailbox(ttl time.Duration) *Mailbox {
	return &Mailbox{slots: make(map[string]slot), ttl: ttl}
}

func (m *Mailbox) Deliver(_ context.Context, rec *models.MeasurementRecord) error {
	s := slot{payload: NewPayload(rec)}
	if m.ttl > 0 {
		s.expiresAt = time.Now().Add(m.ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[rec.PatientID] = s
	return nil
}

// Take 取出并清空患者的交接数据
func (m *Mailbox) Take(patientID string) (Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[patientID]
	if !ok {
		return Payload{}, false
	}
	delete(m.slots, patientID)
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return Payload{}, false
	}
	return s.payload, true
}

// MultiHandoff 依次投递到多个目标；单个失败不影响其他目标
type MultiHandoff []Handoff

func (m MultiHandoff) Deliver(ctx context.Context, rec *models.MeasurementRecord) error {
	var errs []error
	for _, h := range m {
		if h == nil {
			continue
		}
		if err := h.Deliver(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handoff delivery failed: %w", errors.Join(errs...))
	}
	return nil
}
