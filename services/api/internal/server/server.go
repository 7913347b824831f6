package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sofia/internal/metrics"
	"sofia/internal/ratelimit"
	"sofia/internal/util"
	"sofia/pkg/audit"
	"sofia/services/api/internal/app"
)

// Config wires required dependencies for the HTTP server.
// Limiter, Recorder, Metrics and Gatherer may be nil.
type Config struct {
	App            *app.App
	Recorder       *audit.Recorder
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string
	Production     bool
	Clock          func() time.Time
}

// Server exposes the companion API over HTTP.
type Server struct {
	app         *app.App
	recorder    *audit.Recorder
	interceptor *audit.Interceptor
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	limiter     *ratelimit.FixedWindowLimiter
	clientIP    func(*http.Request) string
	corsOrigins []string
	production  bool
	now         func() time.Time
	router      chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errAppRequired
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	s := &Server{
		app:         cfg.App,
		recorder:    cfg.Recorder,
		metrics:     cfg.Metrics,
		gatherer:    cfg.Gatherer,
		limiter:     cfg.Limiter,
		clientIP:    cfg.TrustedProxies.Resolver(),
		corsOrigins: cfg.CORSOrigins,
		production:  cfg.Production,
		now:         now,
		router:      chi.NewRouter(),
	}
	s.interceptor = audit.NewInterceptor(cfg.Recorder, actorID, s.clientIP)
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.router))))
}

func (s *Server) routes() {
	r := s.router
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		notFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		methodNotAllowed(w)
	})

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter, s.clientIP, s.handleRateLimited))

		r.Get("/health", s.handleHealth)
		r.Post("/users/auth", s.handleAuth)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			// users
			r.Get("/users/profile", s.handleProfile)
			r.Put("/users/about-me", s.handleUpdateAboutMe)

			// sessions and profile records
			r.Post("/sessions", s.handleCreateSession)
			r.With(s.interceptor.Middleware("session_update")).Put("/sessions/{id}", s.handleUpdateSession)
			r.Post("/goals", s.handleCreateGoal)
			r.Post("/story-chapters", s.handleCreateChapter)
			r.Post("/feedback", s.handleSubmitFeedback)
			r.With(s.requireAdmin).Get("/feedback/unreviewed", s.handleUnreviewedFeedback)
			r.Post("/safety-events", s.handleCreateSafetyEvent)

			// client-side document tracking; {id} is a user id on GET
			r.Route("/document-uploads", func(r chi.Router) {
				r.With(s.interceptor.Middleware("DOCUMENT_UPLOADED")).Post("/", s.handleTrackDocumentUpload)
				r.With(s.interceptor.Middleware("document_upload")).Put("/{id}", s.handleMarkDocumentApplied)
				r.With(s.interceptor.Middleware("document_upload")).Get("/{id}", s.handleListDocuments)
			})
			r.Route("/profile-history", func(r chi.Router) {
				r.With(s.interceptor.Middleware("PROFILE_VARIABLE_UPDATED")).Post("/", s.handleRecordProfileChange)
				r.With(s.interceptor.Middleware("PROFILE_HISTORY_VIEWED")).Get("/{id}", s.handleProfileHistory)
			})

			// server-side document ingestion; {id} is a user id on the notifications GET
			r.Route("/documents", func(r chi.Router) {
				r.Use(s.interceptor.Middleware("document_management"))
				r.Post("/upload", s.handleUploadDocument)
				r.Get("/content/{id}", s.handleDocumentContent)
				r.Get("/notifications/{id}", s.handlePendingNotifications)
				r.Put("/notifications/{id}/delivered", s.handleMarkNotificationDelivered)
			})

			r.Route("/alignment", func(r chi.Router) {
				r.Post("/score", s.handleScoreResponse)
				r.Post("/topic", s.handleValidateTopic)
				r.Get("/context", s.handleConversationContext)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/audit-trail/{id}", s.handleAuditTrail)
				r.Get("/clinical-alerts/pending", s.handlePendingClinicalAlerts)
				r.With(s.interceptor.Middleware("clinical_alert_ack")).Post("/clinical-alerts/{id}/acknowledge", s.handleAcknowledgeClinicalAlert)
				r.Get("/alignment/stats", s.handleAlignmentStats)
			})
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, _ *http.Request) {
	s.metrics.IncRateLimited()
	writeError(w, http.StatusTooManyRequests, "too many requests")
}

// record writes one audit entry for a handler-level action.
func (s *Server) record(r *http.Request, userID, action, resourceType, resourceID string) {
	s.recorder.Record(r.Context(), audit.Entry{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    s.clientIP(r),
		UserAgent:    r.UserAgent(),
		Metadata: map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	})
}
