// Package opsapi exposes the resilience layer to operators over HTTP: system
// and per-service health snapshots, circuit states, error diagnostics, and
// admin controls for circuit resets and degradation levels.
//
// The package performs no authorization itself: the embedding application
// injects its admin middleware via Config.AdminAuth, and that collaborator is
// responsible for the caller-role check on the admin routes.
package opsapi

import (
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	resilience "github.com/Tomefy5/jurachain-sub000"
)

// Config holds ops API settings.
type Config struct {
	// AdminAuth wraps the admin routes (circuit reset, degradation,
	// recovery). Nil means pass-through, which is only acceptable behind a
	// trusted ingress.
	AdminAuth func(http.Handler) http.Handler
}

// Server mounts the ops routes on a chi router with a huma API for the
// read-only surface.
type Server struct {
	manager *resilience.Manager
	router  chi.Router
	api     huma.API
}

// New builds the ops API around a manager.
func New(manager *resilience.Manager, cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	humaConfig := huma.DefaultConfig("JuraChain Resilience Ops", "1.0.0")
	humaConfig.Info.Description = "Operator surface for the JuraChain resilience layer"
	api := humachi.New(r, humaConfig)

	s := &Server{
		manager: manager,
		router:  r,
		api:     api,
	}
	s.registerReadRoutes()
	s.registerAdminRoutes(cfg.AdminAuth)

	return s
}

// Handler returns the mountable http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerAdminRoutes(adminAuth func(http.Handler) http.Handler) {
	s.router.Group(func(r chi.Router) {
		if adminAuth != nil {
			r.Use(adminAuth)
		}
		r.Post("/circuit-breakers/{service}/reset", s.handleCircuitReset)
		r.Post("/degradation", s.handleDegradation)
		r.Post("/recovery", s.handleRecovery)
	})
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := s.manager.ResetCircuitBreaker(service); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": service,
		"state":   string(resilience.StateClosed),
	})
}

func (s *Server) handleDegradation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.manager.HandleSystemDegradation(resilience.DegradationLevel(body.Level)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"degradation_level": body.Level})
}

func (s *Server) handleRecovery(w http.ResponseWriter, _ *http.Request) {
	s.manager.RecoverFromDegradation()
	writeJSON(w, http.StatusOK, map[string]string{
		"degradation_level": string(resilience.DegradationNone),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
