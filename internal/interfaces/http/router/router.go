package router

import (
	"fmt"

	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/interfaces/http/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
		registrars: make([]RouteRegistrar, 0),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// EngineConfig selects the middleware installed on the engine.
// Nil Meter and Limiter leave HTTP metrics and rate limiting off.
type EngineConfig struct {
	ServiceName      string
	Logger           *zap.Logger
	Meter            metric.Meter
	Limiter          middleware.Limiter
	CORSAllowOrigins []string
	TrustedProxies   []string
	MaxBodySize      int64
	Tracing          bool
	Sentry           bool
	Profiling        bool
}

// probePaths are kept out of profiling labels and compression
var probePaths = []string{"/health", "/ready"}

// NewEngine builds a gin engine with the middleware chain in request order:
// request ID, tracing, access log, error reporting, panic recovery, metrics
// and profiling, then response shaping and request guards.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	engine.Use(middleware.RequestID())
	if cfg.Tracing {
		engine.Use(middleware.Tracing(cfg.ServiceName), middleware.SpanAnnotator())
	}
	engine.Use(logger.GinMiddleware(log))
	if cfg.Sentry {
		engine.Use(middleware.Sentry(), middleware.ReportServerErrors())
	}
	engine.Use(logger.Recovery(log))
	if cfg.Meter != nil {
		metrics, err := middleware.HTTPMetrics(cfg.Meter)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		engine.Use(metrics)
	}
	if cfg.Profiling {
		engine.Use(middleware.Profiling(probePaths...))
	}

	engine.Use(
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths(probePaths)),
		middleware.CORS(cfg.CORSAllowOrigins),
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	if cfg.Limiter != nil {
		engine.Use(middleware.RateLimit(cfg.Limiter))
	}

	return engine, nil
}
