package notification

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

const (
	maxRetries = 3
	retryDelay = 2 * time.Second

	sendTimeout = 30 * time.Second
)

// SignedReport carries what notifiers need about a finished signing.
type SignedReport struct {
	PatientID     int64
	AttentionCode string
	PatientName   string
	Path          string
	Document      []byte
	SignedAt      time.Time
}

// Notifier is one post-sign side channel. Failures never affect the signing.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, report *SignedReport) error
}

// Service fans a signed report out to every notifier in the background.
type Service interface {
	Send(ctx context.Context, report *SignedReport)
	// Wait blocks until every pending delivery has finished.
	Wait()
}

type service struct {
	notifiers  []Notifier
	metrics    *metrics.Metrics
	log        zerolog.Logger
	retryDelay time.Duration
	wg         sync.WaitGroup
}

func NewService(notifiers []Notifier, m *metrics.Metrics, log zerolog.Logger) Service {
	if m == nil {
		m = metrics.NewNop()
	}
	return &service{
		notifiers:  notifiers,
		metrics:    m,
		log:        log.With().Str("component", "notification").Logger(),
		retryDelay: retryDelay,
	}
}

func (s *service) Send(ctx context.Context, report *SignedReport) {
	// Deliveries outlive the request that triggered them.
	base := context.WithoutCancel(ctx)
	for _, n := range s.notifiers {
		s.wg.Add(1)
		go func(n Notifier) {
			defer s.wg.Done()
			s.process(base, n, report)
		}(n)
	}
}

func (s *service) Wait() {
	s.wg.Wait()
}

func (s *service) process(ctx context.Context, n Notifier, report *SignedReport) {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = n.Notify(sendCtx, report)
		cancel()
		if err == nil {
			s.log.Debug().
				Str("notifier", n.Name()).
				Str("attention_code", report.AttentionCode).
				Int("attempt", attempt).
				Msg("notification sent")
			return
		}
		if attempt < maxRetries {
			time.Sleep(s.retryDelay * time.Duration(attempt))
		}
	}

	s.metrics.NotificationsFailed.WithLabelValues(n.Name()).Inc()
	s.log.Warn().
		Err(err).
		Str("notifier", n.Name()).
		Int64("patient_id", report.PatientID).
		Str("attention_code", report.AttentionCode).
		Msg("notification failed")
}
