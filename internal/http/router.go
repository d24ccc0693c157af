// Package httpapi wires the HTTP transport (Gin) to the relay pipeline,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-b24-relay/docs"
	"github.com/tbourn/go-b24-relay/internal/bitrix"
	"github.com/tbourn/go-b24-relay/internal/config"
	"github.com/tbourn/go-b24-relay/internal/domain"
	"github.com/tbourn/go-b24-relay/internal/http/handlers"
	"github.com/tbourn/go-b24-relay/internal/http/middleware"
	"github.com/tbourn/go-b24-relay/internal/repo"
	"github.com/tbourn/go-b24-relay/internal/services"
)

// tenantDirectory adapts the repository free functions to the
// services.TenantDirectory interface expected by the RelayService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type tenantDirectory struct {
	db *gorm.DB
}

// GetByMemberID proxies repo.GetTenantByMemberID.
func (d tenantDirectory) GetByMemberID(ctx context.Context, memberID string) (*domain.Tenant, error) {
	return repo.GetTenantByMemberID(ctx, d.db, memberID)
}

// chatCloser adapts the bitrix workflow functions to services.ChatCloser.
type chatCloser struct {
	client *bitrix.Client
}

// CloseDealChat proxies bitrix.CloseDealChat over the shared client.
func (cc chatCloser) CloseDealChat(ctx context.Context, baseURL, dealID string) (bitrix.ChatOutcome, error) {
	return bitrix.CloseDealChat(ctx, cc.client, baseURL, dealID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS and security
// headers, health and metrics endpoints, and the webhook route.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per client IP)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. The portal occasionally leaks
	// its application token into the query string; never log it.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Portal-Secret",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; Bitrix payloads are a few KiB)
	r.Use(limitBody(1 << 20))

	// 6) Compress responses for clients that ask for it
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health. Bitrix pings the bare root when a hook is installed.
	r.GET("/", handlers.Healthz)
	r.GET("/healthz", handlers.Healthz)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: relay ← directory/closer ← db/client
	client := bitrix.NewClient(cfg.B24Timeout)
	relay := services.NewRelayService(tenantDirectory{db: db}, chatCloser{client: client})
	h := handlers.New(relay, taskTimeout(cfg.B24Timeout))

	r.POST("/webhook/deal", h.HandleDealWebhook)
}

// taskTimeout budgets the background task: two sequential remote calls plus
// the directory lookup, with headroom.
func taskTimeout(callTimeout time.Duration) time.Duration {
	return 2*callTimeout + 5*time.Second
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
