package patient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
)

type mockPatientRepo struct {
	mock.Mock
	repository.PatientRepository
}

func (m *mockPatientRepo) Get(ctx context.Context, id int64) (*model.Patient, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*model.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPatientRepo) Update(ctx context.Context, id int64, req *model.UpdatePatientRequest) error {
	return m.Called(ctx, id, req).Error(0)
}

func TestUpdatePatient(t *testing.T) {
	repo := new(mockPatientRepo)
	svc := NewService(repo)

	diagnosis := "benign"
	req := &model.UpdatePatientRequest{Diagnosis: &diagnosis}
	repo.On("Update", mock.Anything, int64(3), req).Return(nil)
	repo.On("Get", mock.Anything, int64(3)).Return(&model.Patient{ID: 3, Diagnosis: &diagnosis, IsSigned: true}, nil)

	p, err := svc.UpdatePatient(context.Background(), 3, req)
	require.NoError(t, err)
	assert.Equal(t, "benign", *p.Diagnosis)
	assert.True(t, p.IsSigned)
	repo.AssertExpectations(t)
}

func TestUpdatePatient_NotFound(t *testing.T) {
	repo := new(mockPatientRepo)
	svc := NewService(repo)

	repo.On("Update", mock.Anything, int64(9), mock.Anything).Return(repository.ErrNotFound)

	_, err := svc.UpdatePatient(context.Background(), 9, &model.UpdatePatientRequest{})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
