// Package api provides the HTTP API server and handlers for the CardLink application.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/domain"
	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/media/images"
	"github.com/cardlinkapp/cardlink-server/internal/search"
	"github.com/cardlinkapp/cardlink-server/internal/service"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
	"github.com/cardlinkapp/cardlink-server/internal/store"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           *store.Store
	instanceService *service.InstanceService
	authService     *service.AuthService
	sessionService  *service.SessionService
	exchangeService *service.ExchangeService
	searchIndex     *search.ContactIndex
	avatarService   *images.AvatarService
	tokenService    *auth.TokenService
	sseHandler      *sse.Handler
	router          *chi.Mux
	logger          *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(store *store.Store, instanceService *service.InstanceService, authService *service.AuthService, sessionService *service.SessionService, exchangeService *service.ExchangeService, searchIndex *search.ContactIndex, avatarService *images.AvatarService, tokenService *auth.TokenService, sseHandler *sse.Handler, logger *slog.Logger) *Server {
	s := &Server{
		store:           store,
		instanceService: instanceService,
		authService:     authService,
		sessionService:  sessionService,
		exchangeService: exchangeService,
		searchIndex:     searchIndex,
		avatarService:   avatarService,
		tokenService:    tokenService,
		sseHandler:      sseHandler,
		router:          chi.NewRouter(),
		logger:          logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// Clients are mobile apps and the web companion, served from anywhere
	// on the venue network.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/instance", s.handleGetInstance)

		// Auth endpoints (public).
		r.Route("/auth", func(r chi.Router) {
			r.Post("/setup", s.handleSetup)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
		})

		// Current user endpoints.
		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.handleGetCurrentUser)
			r.Get("/me/sessions", s.handleListSessions)
			r.Get("/me/card", s.handleGetOwnCard)
			r.Put("/me/card", s.handlePutOwnCard)
			r.Get("/me/preferences", s.handleGetPreferences)
			r.Put("/me/preferences", s.handlePutPreferences)
			r.Put("/me/avatar", s.handlePutAvatar)
			r.Delete("/me/avatar", s.handleDeleteAvatar)
			r.Get("/{id}/avatar", s.handleGetAvatar)
		})

		// Exchange session lifecycle.
		r.Route("/exchange", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/session", s.handleStartSession)
			r.Post("/inbox/process", s.handleProcessInbox)
		})

		// Saved cards.
		r.Route("/cards", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/", s.handleListCards)
			r.Post("/scan", s.handleScanCard)
			r.Get("/export", s.handleExportCards)
			r.Get("/search", s.handleSearchCards)
			r.Patch("/{id}", s.handleUpdateCard)
			r.Delete("/{id}", s.handleDeleteCard)
		})

		// Event-wide stats (admin only).
		r.Route("/connections", func(r chi.Router) {
			r.Use(s.requireAuth)
			r.With(s.requireAdmin).Get("/count", s.handleConnectionCount)
		})

		// Realtime stream. The SSE handler does its own token check so the
		// EventSource API, which cannot set headers, can pass a query param.
		r.Get("/sync/stream", s.sseHandler.ServeHTTP)
	})
}

// handleHealthCheck returns server health status.
func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]string{
		"status": "healthy",
	}, s.logger)
}

// handleGetInstance returns the singleton server instance configuration.
func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	instance, err := s.instanceService.GetInstance(ctx)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err)
		response.NotFound(w, "Server instance configuration not found", s.logger)
		return
	}

	instanceResponse := map[string]any{
		"id":             instance.ID,
		"name":           instance.Name,
		"version":        instance.Version,
		"event_id":       instance.EventID,
		"event_name":     instance.EventName,
		"local_url":      instance.LocalUrl,
		"remote_url":     instance.RemoteUrl,
		"created_at":     instance.CreatedAt,
		"updated_at":     instance.UpdatedAt,
		"setup_required": instance.IsSetupRequired(),
	}

	response.Success(w, instanceResponse, s.logger)
}

// requestScope resolves the (event, user) scope for an authenticated request.
// The instance hosts a single event, so the event ID comes from instance
// configuration and the user ID from the access token.
func (s *Server) requestScope(r *http.Request) (domain.Scope, error) {
	instance, err := s.instanceService.GetInstance(r.Context())
	if err != nil {
		return domain.Scope{}, err
	}
	return domain.Scope{EventID: instance.EventID, UserID: getUserID(r.Context())}, nil
}
