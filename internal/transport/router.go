package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/config"
	"github.com/Bhavik-SSBDigital/docflow/internal/inbox"
	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
	"github.com/Bhavik-SSBDigital/docflow/internal/process"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Engine       *process.Engine
	Inbox        *inbox.Service
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Authenticate func(http.Handler) http.Handler
	Readiness    observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Global middleware, applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	// Authenticated routes.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/api/processes", func(r chi.Router) {
			r.Post("/", handleProcessCreate(deps.Engine))
			r.Get("/", handleProcessList(deps.Engine))

			r.Route("/{processId}", func(r chi.Router) {
				r.Get("/", handleProcessGet(deps.Engine))
				r.Get("/history", handleProcessHistory(deps.Engine))
				r.Get("/decision", handleProcessDecision(deps.Engine))
				r.Post("/forward", handleProcessForward(deps.Engine))
				r.Post("/revert", handleProcessRevert(deps.Engine))
				r.Post("/pick", handleProcessPick(deps.Engine))
				r.Post("/approve", handleProcessApprove(deps.Engine))
				r.Post("/reject", handleProcessRejectConnector(deps.Engine))

				r.Post("/documents", handleDocumentUpload(deps.Engine))
				r.Post("/documents/{documentId}/sign", handleDocumentSign(deps.Engine))
				r.Delete("/documents/{documentId}/sign", handleDocumentRevokeSign(deps.Engine))
				r.Post("/documents/{documentId}/reject", handleDocumentReject(deps.Engine))
			})
		})

		r.Route("/api/inbox", func(r chi.Router) {
			r.Get("/pending", handleInboxPending(deps.Inbox))
			r.Get("/notifications", handleInboxNotifications(deps.Inbox))
			r.Post("/dequeue", handleInboxDequeue(deps.Inbox))
			r.Post("/{processId}/ack", handleInboxAck(deps.Inbox))
		})
	})

	return r
}
