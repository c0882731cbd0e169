// Package api exposes the advisor over a JSON HTTP interface.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/xaenox/diplomat-bot/internal/advisor"
	"github.com/xaenox/diplomat-bot/internal/metrics"
	"go.uber.org/zap"
)

type Options struct {
	AllowedOrigins []string
	PendingLimit   int
	Metrics        *metrics.Collector
}

type Server struct {
	service  *advisor.Service
	pending  *pendingStore
	locks    *userLocks
	validate *validator.Validate
	metrics  *metrics.Collector
	origins  []string
	logger   *zap.Logger
}

func NewServer(service *advisor.Service, opts Options, logger *zap.Logger) *Server {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		service:  service,
		pending:  newPendingStore(opts.PendingLimit),
		locks:    newUserLocks(),
		validate: newValidator(),
		metrics:  opts.Metrics,
		origins:  origins,
		logger:   logger,
	}
}

// Router configures all routes and middleware.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(Logger(s.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/health", s.healthCheck)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", s.register)

		// Guests may ask for advice and give feedback on it.
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(false))
			r.Post("/advise", s.advise)
			r.Post("/learn", s.learn)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate(true))
			r.Get("/history", s.history)
			r.Get("/profile", s.getProfile)
			r.Put("/profile", s.updateProfile)
			r.Post("/rename", s.rename)
			r.Delete("/account", s.deleteAccount)

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.listContacts)
				r.Post("/", s.addContact)
				r.Put("/{name}", s.updateContact)
				r.Delete("/{name}", s.deleteContact)
			})
		})
	})

	return router
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"pending": s.pending.size(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}

func (s *Server) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="diplomat"`)
	s.respondError(w, http.StatusUnauthorized, message)
}
