package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/pathology-report-api/internal/handler/prometheus"
	"github.com/jwalitptl/pathology-report-api/internal/handler/report"
	"github.com/jwalitptl/pathology-report-api/internal/middleware"
)

const APIVersion = "v1"

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	authH    Handler
	patientH Handler
	reportH  *report.Handler
	healthH  Handler
	config   RouterConfig
}

type RouterConfig struct {
	RateLimit  middleware.RateLimiterConfig
	CORSConfig middleware.CORSConfig
	// ReportsPrefix is where generated artifacts are served from.
	ReportsPrefix string
	// RequestTimeout bounds every protected route except signing, which
	// carries the renderer timeout instead.
	RequestTimeout time.Duration
	Metrics        *prometheus.Handler
	Logger         zerolog.Logger
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH Handler,
	patientH Handler,
	reportH *report.Handler,
	healthH Handler,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		authH:    authH,
		patientH: patientH,
		reportH:  reportH,
		healthH:  healthH,
		config:   config,
	}

	engine.Use(
		middleware.Recovery(config.Logger),
		middleware.RequestID(),
		middleware.Logger(config.Logger),
	)
	if config.Metrics != nil {
		engine.Use(config.Metrics.Middleware())
	}
	engine.Use(
		middleware.ErrorHandler(config.Logger),
		middleware.Validation(),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.NewRateLimiter(config.RateLimit).RateLimit(),
	)

	return r
}

func (r *Router) Setup() {
	v1 := r.engine.Group("/api/" + APIVersion)
	v1.Use(func(c *gin.Context) {
		c.Header("X-API-Version", APIVersion)
		c.Next()
	})

	r.healthH.RegisterRoutes(v1)
	r.setupPublicRoutes(v1)

	protected := v1.Group("")
	protected.Use(
		r.auth.Authenticate(),
		middleware.Cache(middleware.NoStoreConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
	)
	r.setupProtectedRoutes(protected)

	prefix := r.config.ReportsPrefix
	if prefix == "" {
		prefix = "/reports"
	}
	static := r.engine.Group(prefix)
	static.Use(middleware.Cache(middleware.ReportCacheConfig()))
	r.reportH.RegisterStaticRoutes(static)

	// Unversioned signing path used by existing lab clients.
	legacy := r.engine.Group("")
	legacy.Use(
		r.auth.Authenticate(),
		middleware.Cache(middleware.NoStoreConfig()),
	)
	r.reportH.RegisterRoutes(legacy)
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	r.authH.RegisterRoutes(rg)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	timeout := r.config.RequestTimeout
	if timeout <= 0 {
		timeout = middleware.DefaultTimeoutConfig().Duration
	}

	records := rg.Group("")
	records.Use(middleware.Timeout(middleware.TimeoutConfig{Duration: timeout}))
	r.patientH.RegisterRoutes(records)

	// Signing is bounded by the renderer semaphore and timeout.
	r.reportH.RegisterRoutes(rg)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
