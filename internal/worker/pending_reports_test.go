package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/service/signing"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListPendingArtifacts(ctx context.Context, limit int) ([]int64, error) {
	args := m.Called(ctx, limit)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) Sign(ctx context.Context, id int64) (*model.SignResponse, error) {
	args := m.Called(ctx, id)
	resp, _ := args.Get(0).(*model.SignResponse)
	return resp, args.Error(1)
}

func newWorker(lister *mockLister, signer *mockSigner) *PendingReportsWorker {
	return NewPendingReportsWorker(lister, signer, PendingReportsConfig{
		BatchSize:    5,
		PollInterval: 10 * time.Millisecond,
	}, metrics.NewNop(), zerolog.Nop())
}

func TestRunOnce_SignsEachPendingRecord(t *testing.T) {
	lister := new(mockLister)
	signer := new(mockSigner)
	lister.On("ListPendingArtifacts", mock.Anything, 5).Return([]int64{1, 2, 3}, nil)
	signer.On("Sign", mock.Anything, int64(1)).Return(&model.SignResponse{PDFPath: "reports/A-1.pdf"}, nil)
	signer.On("Sign", mock.Anything, int64(2)).Return(nil, signing.ErrSignInProgress)
	signer.On("Sign", mock.Anything, int64(3)).Return(nil, &signing.StageError{Stage: signing.StageRender, Err: signing.ErrRenderCrashed})

	done, err := newWorker(lister, signer).RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, done)
	signer.AssertNumberOfCalls(t, "Sign", 3)
	lister.AssertExpectations(t)
}

func TestRunOnce_ListFailure(t *testing.T) {
	lister := new(mockLister)
	signer := new(mockSigner)
	lister.On("ListPendingArtifacts", mock.Anything, 5).Return(nil, errors.New("connection refused"))

	done, err := newWorker(lister, signer).RunOnce(context.Background())

	assert.Error(t, err)
	assert.Zero(t, done)
	signer.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything)
}

func TestRunOnce_StopsOnCancel(t *testing.T) {
	lister := new(mockLister)
	signer := new(mockSigner)
	lister.On("ListPendingArtifacts", mock.Anything, 5).Return([]int64{1, 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	signer.On("Sign", mock.Anything, int64(1)).
		Run(func(mock.Arguments) { cancel() }).
		Return(&model.SignResponse{PDFPath: "reports/A-1.pdf"}, nil)

	done, err := newWorker(lister, signer).RunOnce(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, done)
	signer.AssertNumberOfCalls(t, "Sign", 1)
}

func TestStart_PollsUntilCancelled(t *testing.T) {
	lister := new(mockLister)
	signer := new(mockSigner)
	polled := make(chan struct{}, 10)
	lister.On("ListPendingArtifacts", mock.Anything, 5).
		Run(func(mock.Arguments) { polled <- struct{}{} }).
		Return([]int64{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		newWorker(lister, signer).Start(ctx)
		close(stopped)
	}()

	select {
	case <-polled:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never polled")
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewPendingReportsWorker_RejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewPendingReportsWorker(new(mockLister), new(mockSigner), PendingReportsConfig{PollInterval: time.Second}, metrics.NewNop(), zerolog.Nop())
	})
}
