package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisefido-iop/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresMeasurementsRepository iop_measurements 表
type PostgresMeasurementsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresMeasurementsRepository 创建测量记录存储
func NewPostgresMeasurementsRepository(db *sql.DB, logger *zap.Logger) *PostgresMeasurementsRepository {
	return &PostgresMeasurementsRepository{db: db, logger: logger}
}

var _ MeasurementStore = (*PostgresMeasurementsRepository)(nil)

// Insert 写入一条测量记录（以患者编号为键）
func (r *PostgresMeasurementsRepository) Insert(ctx context.Context, record *models.MeasurementRecord) error {
	if record == nil || record.RecordID == "" || record.PatientDisplayID == "" {
		return fmt.Errorf("record_id and patient_display_id are required")
	}

	query := `
		INSERT INTO iop_measurements (
			record_id,
			patient_id,
			patient_display_id,
			right_eye_mmhg,
			left_eye_mmhg,
			notes,
			captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.RecordID,
		record.PatientID,
		record.PatientDisplayID,
		nullInt(record.RightEyeMmHg),
		nullInt(record.LeftEyeMmHg),
		nullString(record.Notes),
		record.CapturedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, record.RecordID)
		}
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	r.logger.Debug("Measurement inserted",
		zap.String("record_id", record.RecordID),
		zap.String("patient_display_id", record.PatientDisplayID),
	)
	return nil
}

// Latest 患者最近一次测量
func (r *PostgresMeasurementsRepository) Latest(ctx context.Context, patientDisplayID string) (*models.MeasurementRecord, error) {
	query := `
		SELECT
			record_id,
			patient_id,
			patient_display_id,
			right_eye_mmhg,
			left_eye_mmhg,
			notes,
			captured_at
		FROM iop_measurements
		WHERE patient_display_id = $1
		ORDER BY captured_at DESC
		LIMIT 1
	`

	var rec models.MeasurementRecord
	var right, left sql.NullInt64
	var notes sql.NullString
	err := r.db.QueryRowContext(ctx, query, patientDisplayID).Scan(
		&rec.RecordID,
		&rec.PatientID,
		&rec.PatientDisplayID,
		&right,
		&left,
		&notes,
		&rec.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest measurement: %w", err)
	}

	if right.Valid {
		v := int(right.Int64)
		rec.RightEyeMmHg = &v
	}
	if left.Valid {
		v := int(left.Int64)
		rec.LeftEyeMmHg = &v
	}
	if notes.Valid {
		rec.Notes = &notes.String
	}
	return &rec, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
