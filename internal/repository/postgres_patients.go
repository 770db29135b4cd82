package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisefido-iop/internal/models"

	"go.uber.org/zap"
)

// PostgresPatientsRepository patients 表
type PostgresPatientsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientsRepository 创建患者目录
func NewPostgresPatientsRepository(db *sql.DB, logger *zap.Logger) *PostgresPatientsRepository {
	return &PostgresPatientsRepository{db: db, logger: logger}
}

var _ PatientDirectory = (*PostgresPatientsRepository)(nil)

const patientColumns = `
		id::text,
		patient_id,
		name,
		age,
		COALESCE(gender, ''),
		COALESCE(phone, ''),
		email
`

// List 查询患者列表
func (r *PostgresPatientsRepository) List(ctx context.Context, search string) ([]models.Patient, error) {
	query := `
		SELECT` + patientColumns + `
		FROM patients
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%' OR patient_id ILIKE '%' || $1 || '%'
		ORDER BY patient_id
	`

	rows, err := r.db.QueryContext(ctx, query, search)
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}

	r.logger.Debug("Listed patients", zap.String("search", search), zap.Int("count", len(patients)))
	return patients, nil
}

// Get 查询单个患者
func (r *PostgresPatientsRepository) Get(ctx context.Context, id string) (*models.Patient, error) {
	if id == "" {
		return nil, ErrPatientNotFound
	}

	query := `
		SELECT` + patientColumns + `
		FROM patients
		WHERE id::text = $1
	`

	p, err := scanPatient(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var p models.Patient
	var email sql.NullString
	if err := row.Scan(&p.ID, &p.DisplayID, &p.Name, &p.Age, &p.Gender, &p.Phone, &email); err != nil {
		return nil, err
	}
	if email.Valid && email.String != "" {
		p.Email = &email.String
	}
	return &p, nil
}
