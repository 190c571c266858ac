package patient

import (
	"context"
	"fmt"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
)

type PatientService interface {
	GetPatient(ctx context.Context, id int64) (*model.Patient, error)
	UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error)
}

type Service struct {
	repo repository.PatientRepository
}

func NewService(repo repository.PatientRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*model.Patient, error) {
	return s.repo.Get(ctx, id)
}

// UpdatePatient applies a partial update and returns the stored record.
// Signing state is not part of the request and stays untouched.
func (s *Service) UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := s.repo.Update(ctx, id, req); err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	return s.repo.Get(ctx, id)
}
