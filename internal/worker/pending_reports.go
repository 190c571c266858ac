package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/service/signing"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

type PendingLister interface {
	ListPendingArtifacts(ctx context.Context, limit int) ([]int64, error)
}

type Signer interface {
	Sign(ctx context.Context, patientID int64) (*model.SignResponse, error)
}

type PendingReportsConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// PendingReportsWorker re-runs the signing pipeline for records that were
// signed but never got an artifact, e.g. after a render crash.
type PendingReportsWorker struct {
	repo    PendingLister
	signer  Signer
	config  PendingReportsConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewPendingReportsWorker(
	repo PendingLister,
	signer Signer,
	config PendingReportsConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PendingReportsWorker {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}

	return &PendingReportsWorker{
		repo:    repo,
		signer:  signer,
		config:  config,
		metrics: m,
		log:     log.With().Str("component", "pending_reports").Logger(),
	}
}

func (w *PendingReportsWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.log.Info().Dur("poll_interval", w.config.PollInterval).Msg("Starting pending reports worker")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutting down pending reports worker")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("Failed to process pending reports")
			}
		}
	}
}

// RunOnce signs one batch and returns how many artifacts were produced.
// Records another process is already signing are skipped.
func (w *PendingReportsWorker) RunOnce(ctx context.Context) (int, error) {
	ids, err := w.repo.ListPendingArtifacts(ctx, w.config.BatchSize)
	if err != nil {
		w.metrics.DatabaseOperations.WithLabelValues("list_pending_artifacts", "error").Inc()
		return 0, fmt.Errorf("failed to list pending artifacts: %w", err)
	}
	w.metrics.DatabaseOperations.WithLabelValues("list_pending_artifacts", "success").Inc()

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		resp, err := w.signer.Sign(ctx, id)
		switch {
		case err == nil:
			done++
			w.log.Info().Int64("patient_id", id).Str("pdf_path", resp.PDFPath).Msg("Generated pending report")
		case errors.Is(err, signing.ErrSignInProgress):
			w.log.Debug().Int64("patient_id", id).Msg("Report already being signed, skipping")
		default:
			w.log.Error().Err(err).Int64("patient_id", id).Msg("Failed to generate pending report")
		}
	}
	return done, nil
}
