package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
	"github.com/jwalitptl/pathology-report-api/internal/service/notification"
	"github.com/jwalitptl/pathology-report-api/internal/service/render"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

// PatientStore is the slice of the patient repository signing needs.
type PatientStore interface {
	Get(ctx context.Context, id int64) (*model.Patient, error)
	MarkSigned(ctx context.Context, id int64) error
	SetPDFPath(ctx context.Context, id int64, path string) error
}

// ImageNormalizer turns an uploaded photo into an embeddable data URI.
type ImageNormalizer interface {
	Normalize(ctx context.Context, encoded string) (string, error)
}

// ReportComposer fills the report template for a patient.
type ReportComposer interface {
	Compose(p *model.Patient, photo1, photo2 string) (string, error)
}

// ArtifactStore persists a rendered PDF and returns its public path.
type ArtifactStore interface {
	Save(ctx context.Context, attentionCode string, document []byte) (string, error)
}

// Config holds the collaborators of an Orchestrator. Guard and Metrics
// fall back to in-process defaults when nil.
type Config struct {
	Patients      PatientStore
	Normalizer    ImageNormalizer
	Composer      ReportComposer
	Engine        render.RenderEngine
	Store         ArtifactStore
	Notifications notification.Service
	Guard         Guard
	RenderTimeout time.Duration
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// Orchestrator runs the signing pipeline for one patient at a time per id.
// Stages run strictly in order and nothing is rolled back: a failure after
// MarkSigned leaves the record signed with its previous pdf_path.
type Orchestrator struct {
	patients      PatientStore
	normalizer    ImageNormalizer
	composer      ReportComposer
	engine        render.RenderEngine
	store         ArtifactStore
	notifications notification.Service
	guard         Guard
	renderTimeout time.Duration
	metrics       *metrics.Metrics
	log           zerolog.Logger
	now           func() time.Time
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Guard == nil {
		cfg.Guard = NewLocalGuard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
	return &Orchestrator{
		patients:      cfg.Patients,
		normalizer:    cfg.Normalizer,
		composer:      cfg.Composer,
		engine:        cfg.Engine,
		store:         cfg.Store,
		notifications: cfg.Notifications,
		guard:         cfg.Guard,
		renderTimeout: cfg.RenderTimeout,
		metrics:       cfg.Metrics,
		log:           cfg.Logger.With().Str("component", "signing").Logger(),
		now:           time.Now,
	}
}

// Sign marks the patient signed, renders the report and records its path.
func (o *Orchestrator) Sign(ctx context.Context, patientID int64) (*model.SignResponse, error) {
	release, ok, err := o.guard.TryAcquire(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		o.metrics.SignOperations.WithLabelValues("conflict").Inc()
		return nil, ErrSignInProgress
	}
	defer release()

	start := time.Now()
	log := o.log.With().Int64("patient_id", patientID).Logger()

	path, err := o.run(ctx, patientID, &log)
	o.metrics.SignLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.SignOperations.WithLabelValues(outcome(err)).Inc()
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			log.Error().Err(stageErr.Err).Str("stage", string(stageErr.Stage)).Msg("signing failed")
		}
		return nil, err
	}

	o.metrics.SignOperations.WithLabelValues("success").Inc()
	log.Info().Str("pdf_path", path).Dur("duration", time.Since(start)).Msg("report signed")
	return &model.SignResponse{PDFPath: path}, nil
}

func (o *Orchestrator) run(ctx context.Context, id int64, log *zerolog.Logger) (string, error) {
	err := o.stage(StageMarkSigned, log, func() error {
		return o.patients.MarkSigned(ctx, id)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}

	var patient *model.Patient
	err = o.stage(StageLoad, log, func() (err error) {
		patient, err = o.patients.Get(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	*log = log.With().Str("attention_code", patient.AttentionCode).Logger()

	var photo1, photo2 string
	err = o.stage(StageImages, log, func() (err error) {
		if photo1, err = o.normalize(ctx, patient.Photo1); err != nil {
			return fmt.Errorf("photo1: %w", err)
		}
		if photo2, err = o.normalize(ctx, patient.Photo2); err != nil {
			return fmt.Errorf("photo2: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	var markup string
	err = o.stage(StageCompose, log, func() (err error) {
		markup, err = o.composer.Compose(patient, photo1, photo2)
		return err
	})
	if err != nil {
		return "", err
	}

	var document []byte
	err = o.stage(StageRender, log, func() (err error) {
		document, err = o.engine.Render(ctx, markup, o.renderTimeout)
		return err
	})
	if err != nil {
		return "", err
	}

	var path string
	err = o.stage(StageStore, log, func() (err error) {
		if path, err = o.store.Save(ctx, patient.AttentionCode, document); err != nil {
			return err
		}
		return o.patients.SetPDFPath(ctx, id, path)
	})
	if err != nil {
		return "", err
	}

	if o.notifications != nil {
		o.notifications.Send(ctx, &notification.SignedReport{
			PatientID:     id,
			AttentionCode: patient.AttentionCode,
			PatientName:   patient.FullName(),
			Path:          path,
			Document:      document,
			SignedAt:      o.now(),
		})
	}
	return path, nil
}

// stage times fn and wraps its failure in a StageError. ErrNotFound from the
// repository is passed through untouched for the first two stages.
func (o *Orchestrator) stage(stage Stage, log *zerolog.Logger, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.StageLatency.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())

	if err == nil {
		log.Debug().Str("stage", string(stage)).Dur("duration", time.Since(start)).Msg("stage complete")
		return nil
	}
	if (stage == StageMarkSigned || stage == StageLoad) && errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func (o *Orchestrator) normalize(ctx context.Context, photo *string) (string, error) {
	if photo == nil || *photo == "" {
		return "", nil
	}
	return o.normalizer.Normalize(ctx, *photo)
}

func outcome(err error) string {
	var stageErr *StageError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &stageErr):
		return stageErr.Kind()
	default:
		return "error"
	}
}
