package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/pathology-report-api/internal/model"
)

// ErrNotFound is returned when a lookup or update matches no row.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	// PatientRepository is the typed accessor over the patients table.
	PatientRepository interface {
		Get(ctx context.Context, id int64) (*model.Patient, error)
		GetByAttentionCode(ctx context.Context, code string) (*model.Patient, error)
		// Update applies a partial update; an empty request is a no-op read check.
		Update(ctx context.Context, id int64, req *model.UpdatePatientRequest) error
		// MarkSigned sets is_signed and reports ErrNotFound when no row matched.
		MarkSigned(ctx context.Context, id int64) error
		SetPDFPath(ctx context.Context, id int64, path string) error
		// ListPendingArtifacts returns signed records that have no pdf_path yet.
		ListPendingArtifacts(ctx context.Context, limit int) ([]int64, error)
	}

	UserRepository interface {
		GetByUsername(ctx context.Context, username string) (*model.User, error)
		Create(ctx context.Context, user *model.User) error
	}
)
