package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/pkg/metrics"
)

var (
	ErrRenderTimeout = errors.New("render timed out")
	ErrRenderCrashed = errors.New("renderer failed")
)

// A4 in inches.
const (
	PaperWidth  = 8.27
	PaperHeight = 11.69
)

// RenderEngine turns self-contained markup into a paginated PDF.
type RenderEngine interface {
	Render(ctx context.Context, markup string, timeout time.Duration) ([]byte, error)
}

type renderFunc func(ctx context.Context, markup string) ([]byte, error)

// ChromeEngine launches one headless browser per render and bounds how many
// run at once.
type ChromeEngine struct {
	cfg     config.RendererConfig
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
	log     zerolog.Logger
	render  renderFunc
}

func NewChromeEngine(cfg config.RendererConfig, m *metrics.Metrics, log zerolog.Logger) *ChromeEngine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if m == nil {
		m = metrics.NewNop()
	}
	e := &ChromeEngine{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		metrics: m,
		log:     log.With().Str("component", "renderer").Logger(),
	}
	e.render = e.renderChrome
	return e
}

// Render waits for a free renderer slot and renders, all within timeout. A
// zero timeout falls back to the configured one.
func (e *ChromeEngine) Render(ctx context.Context, markup string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	// Time spent queued for a slot counts toward the timeout.
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := e.sem.Acquire(renderCtx, 1); err != nil {
		return nil, e.classify(renderCtx, err)
	}
	defer e.sem.Release(1)

	e.metrics.RenderersInUse.Inc()
	defer e.metrics.RenderersInUse.Dec()

	start := time.Now()
	pdf, err := e.render(renderCtx, markup)
	if err != nil {
		return nil, e.classify(renderCtx, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrRenderCrashed)
	}

	e.log.Debug().Dur("duration", time.Since(start)).Int("bytes", len(pdf)).Msg("document rendered")
	return pdf, nil
}

func (e *ChromeEngine) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.metrics.RenderTimeouts.Inc()
		return fmt.Errorf("%w: %v", ErrRenderTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrRenderCrashed, err)
}

// renderChrome owns the whole browser lifecycle; the process is killed on
// every return path.
func (e *ChromeEngine) renderChrome(ctx context.Context, markup string) ([]byte, error) {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		Leakless(true).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}

	if err := page.SetDocumentContent(markup); err != nil {
		return nil, fmt.Errorf("load markup: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      ptr(PaperWidth),
		PaperHeight:     ptr(PaperHeight),
		MarginTop:       ptr(0),
		MarginBottom:    ptr(0),
		MarginLeft:      ptr(0),
		MarginRight:     ptr(0),
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}

	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return pdf, nil
}

func ptr(v float64) *float64 { return &v }
