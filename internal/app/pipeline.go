// Package app assembles the signing pipeline shared by the API server and the
// worker.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/internal/repository"
	"github.com/jwalitptl/pathology-report-api/internal/service/artifact"
	"github.com/jwalitptl/pathology-report-api/internal/service/imaging"
	"github.com/jwalitptl/pathology-report-api/internal/service/notification"
	"github.com/jwalitptl/pathology-report-api/internal/service/render"
	"github.com/jwalitptl/pathology-report-api/internal/service/report"
	"github.com/jwalitptl/pathology-report-api/internal/service/signing"
	"github.com/jwalitptl/pathology-report-api/pkg/messaging/redis"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

type Pipeline struct {
	Signer        *signing.Orchestrator
	Store         artifact.Store
	notifications notification.Service
	redis         *goredis.Client
}

// NewPipeline wires the stages from cfg. Redis, S3 and SMTP are optional;
// without redis the in-flight guard is local to this process.
func NewPipeline(
	ctx context.Context,
	cfg *config.Config,
	patients repository.PatientRepository,
	fs afero.Fs,
	m *metrics.Metrics,
	log zerolog.Logger,
) (*Pipeline, error) {
	assets, err := report.LoadAssets(fs, cfg.Reports.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load report assets: %w", err)
	}

	store := artifact.NewFileStore(fs, cfg.Reports, artifact.WithLogger(log))
	p := &Pipeline{Store: store}

	var notifiers []notification.Notifier
	guard := signing.NewLocalGuard()

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, err
		}
		p.redis = client
		guard = signing.NewRedisGuard(client, 2*cfg.Renderer.Timeout, log)
		notifiers = append(notifiers, notification.NewEventNotifier(redis.NewBrokerWithClient(client, log), cfg.Redis.Channel))
	}

	if cfg.S3.Enabled {
		mirror, err := artifact.NewS3Mirror(ctx, cfg.S3)
		if err != nil {
			p.Close()
			return nil, err
		}
		notifiers = append(notifiers, notification.NewMirrorNotifier(mirror))
	}

	if cfg.SMTP.Enabled {
		notifiers = append(notifiers, notification.NewEmailNotifier(cfg.SMTP))
	}

	p.notifications = notification.NewService(notifiers, m, log)
	p.Signer = signing.NewOrchestrator(signing.Config{
		Patients:      patients,
		Normalizer:    imaging.NewNormalizer(nil),
		Composer:      report.NewComposer(assets),
		Engine:        render.NewChromeEngine(cfg.Renderer, m, log),
		Store:         store,
		Notifications: p.notifications,
		Guard:         guard,
		RenderTimeout: cfg.Renderer.Timeout,
		Metrics:       m,
		Logger:        log,
	})

	log.Info().
		Int("notifiers", len(notifiers)).
		Bool("shared_guard", cfg.Redis.Enabled).
		Int("max_renderers", cfg.Renderer.MaxConcurrent).
		Msg("Signing pipeline ready")

	return p, nil
}

// Close drains pending notifications and releases the redis connection.
func (p *Pipeline) Close() error {
	if p.notifications != nil {
		p.notifications.Wait()
	}
	if p.redis != nil {
		return p.redis.Close()
	}
	return nil
}
