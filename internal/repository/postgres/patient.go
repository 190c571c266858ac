package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
)

const patientColumns = `id, attention_code, last_name, first_name, dni, age, gender, phone,
	contact_family, contact_phone, requesting_doctor, clinic, study_reason, service_type,
	registration_date, delivery_date, macro_description, micro_description, diagnosis,
	photo1, photo2, is_signed, pdf_path, created_at, updated_at`

type patientRepository struct {
	db *sqlx.DB
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func (r *patientRepository) Get(ctx context.Context, id int64) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByAttentionCode(ctx context.Context, code string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE attention_code = $1`
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get patient by attention code: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, id int64, req *model.UpdatePatientRequest) error {
	cols, vals := req.Columns()
	if len(cols) == 0 {
		_, err := r.Get(ctx, id)
		return err
	}

	sets := make([]string, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(cols)+1)
	args := append(vals, id)

	return r.execOne(ctx, "update patient", query, args...)
}

func (r *patientRepository) MarkSigned(ctx context.Context, id int64) error {
	query := `UPDATE patients SET is_signed = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "mark patient signed", query, id)
}

func (r *patientRepository) SetPDFPath(ctx context.Context, id int64, path string) error {
	query := `UPDATE patients SET pdf_path = $1, updated_at = NOW() WHERE id = $2`
	return r.execOne(ctx, "set pdf path", query, path, id)
}

func (r *patientRepository) ListPendingArtifacts(ctx context.Context, limit int) ([]int64, error) {
	query := `
		SELECT id FROM patients
		WHERE is_signed = TRUE AND (pdf_path IS NULL OR pdf_path = '')
		ORDER BY updated_at
		LIMIT $1
	`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending artifacts: %w", err)
	}
	return ids, nil
}

// execOne runs a single-row statement and maps zero affected rows to ErrNotFound.
func (r *patientRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
