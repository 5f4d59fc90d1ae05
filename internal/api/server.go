// Package api provides the HTTP server for mailshare: the search pages and
// the JSON API behind their tag editing.
package api

import (
	"context"
	"crypto/subtle"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/scheduler"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/store"
	"github.com/robfisher/mailshare/internal/tagcloud"
)

// MailStore defines the write operations the API needs.
type MailStore interface {
	GetStats() (*StoreStats, error)
	GetOrCreateTag(name string) (*store.Tag, error)
	GetTag(id int64) (*store.Tag, error)
	AddTag(mailID, tagID int64) error
	RemoveTag(mailID, tagID int64) (bool, error)
	AddTagToMails(tagID int64, mailIDs []int64) error
	RemoveTagFromMails(tagID int64, mailIDs []int64) error
	DeleteMail(id int64) (bool, error)
}

// StoreStats is store.Stats.
type StoreStats = store.Stats

// IndexSyncer refreshes the search index after mails change.
type IndexSyncer interface {
	Sync(ctx context.Context, ids ...int64) error
}

// CloudSource serves cached team tag clouds.
type CloudSource interface {
	Get(ctx context.Context, teamID int64) (template.HTML, error)
	RefreshedAt(teamID int64) (time.Time, bool)
}

// TeamSource lists the resolved teams.
type TeamSource interface {
	Teams() []tagcloud.Team
}

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	IsScheduled(name string) bool
	TriggerJob(name string) error
	Status() []JobStatus
	IsRunning() bool
}

// JobStatus is scheduler.JobStatus.
type JobStatus = scheduler.JobStatus

// Services are the collaborators a Server renders and edits through. Data
// and Directory default to Engine. Index, Clouds, Teams and Scheduler are
// optional.
type Services struct {
	Store     MailStore
	Engine    query.Engine
	Data      search.Datastore
	Directory search.Directory
	Index     IndexSyncer
	Clouds    CloudSource
	Teams     TeamSource
	Scheduler JobScheduler
}

// Server represents the HTTP server.
type Server struct {
	cfg         *config.Config
	svc         Services
	logger      *slog.Logger
	pages       *template.Template
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

// NewServer creates a new server.
func NewServer(cfg *config.Config, svc Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if svc.Data == nil && svc.Engine != nil {
		svc.Data = svc.Engine
	}
	if svc.Directory == nil && svc.Engine != nil {
		svc.Directory = svc.Engine
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
		pages:  parsePages(),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := CORSConfig{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	// Rate limiting (10 req/sec with burst of 20)
	s.rateLimiter = NewRateLimiter(10, 20)
	r.Use(RateLimitMiddleware(s.rateLimiter))

	// No auth required
	r.Get("/health", s.handleHealth)
	r.Get("/static/*", handleStatic)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Pages
		r.Get("/", s.handleIndexPage)
		r.Get("/search", func(w http.ResponseWriter, r *http.Request) {
			target := "/search/"
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
		r.Get("/search/", s.handleSearchPage)
		r.Get("/mail/{id}", s.handleMailPage)
		r.Get("/feed/search/", s.handleSearchFeed)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/search", s.handleSearch)

			r.Get("/mails/{id}", s.handleGetMail)
			r.Delete("/mails/{id}", s.handleDeleteMail)
			r.Post("/mails/{id}/tags", s.handleAddTag)
			r.Delete("/mails/{id}/tags/{tagID}", s.handleRemoveTag)

			r.Post("/multibar", s.handleMultiBar)
			r.Post("/multibar/tags", s.handleMultiAddTag)
			r.Delete("/multibar/tags/{tagID}", s.handleMultiRemoveTag)

			r.Get("/tags/complete", s.handleCompleteTags)

			r.Get("/teams", s.handleListTeams)
			r.Get("/tagcloud/{team}", s.handleTagCloud)

			r.Get("/stats", s.handleStats)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/scheduler/jobs/{name}", s.handleTriggerJob)
		})
	})

	return r
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("server running without authentication, set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// apiKey extracts the presented key from Authorization (Bearer or the
// Basic password) or X-API-Key.
func apiKey(r *http.Request) string {
	if _, password, ok := r.BasicAuth(); ok {
		return password
	}
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		authHeader = r.Header.Get("X-API-Key")
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

// authMiddleware validates the API key. Browsers get a Basic challenge so
// the pages can be used with the key as password.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key configured
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey(r)), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			w.Header().Set("WWW-Authenticate", `Basic realm="mailshare"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// syncIndex refreshes the index for changed mails. Failures leave the index
// stale until the next rebuild, so they are only logged.
func (s *Server) syncIndex(ctx context.Context, ids ...int64) {
	if s.svc.Index == nil || len(ids) == 0 {
		return
	}
	if err := s.svc.Index.Sync(ctx, ids...); err != nil {
		s.logger.Warn("index sync failed", "mails", len(ids), "error", err)
	}
}
