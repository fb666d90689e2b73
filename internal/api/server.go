// Package api provides the HTTP API server for Attune.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/attune-hq/attune/internal/engine"
	"github.com/attune-hq/attune/internal/logging"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	engine     *engine.Engine
	wsHub      *WebSocketHub
}

// Config for the server
type Config struct {
	Host   string
	Port   int
	Engine *engine.Engine
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		engine: cfg.Engine,
		wsHub:  NewWebSocketHub(),
	}

	s.setupRouter()

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, cfg.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Suggestions
		r.Get("/suggestions", s.handleGetSuggestions)
		r.Post("/suggestions/generate", s.handleGenerateSuggestions)
		r.Post("/suggestions/{id}/accept", s.handleAcceptSuggestion)
		r.Post("/suggestions/{id}/dismiss", s.handleDismissSuggestion)

		// Contacts
		r.Get("/contacts", s.handleGetContacts)
		r.Get("/contacts/{email}", s.handleGetContactInsight)

		// Emails
		r.Get("/emails/unanswered", s.handleGetUnanswered)

		// Observation
		r.Post("/observe/calendar", s.handleObserveCalendar)
		r.Post("/observe/email", s.handleObserveEmail)

		// Autonomy
		r.Get("/autonomy", s.handleGetAutonomy)
		r.Put("/autonomy/{activity}", s.handleSetAutonomyLevel)
		r.Get("/autonomy/promotion", s.handleGetPromotionEligible)
		r.Post("/autonomy/{activity}/promote", s.handlePromote)

		// Stats
		r.Get("/stats", s.handleGetStats)
		r.Get("/tasks", s.handleGetTasks)

		// Data management
		r.Delete("/data", s.handleClearData)
	})

	// WebSocket
	r.Get("/ws", s.handleWebSocket)

	s.router = r
}

// Handler returns the router, for tests that drive it directly
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go s.wsHub.Run()

	logging.Info("API server starting on http://%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
