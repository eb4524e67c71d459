package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", s.HandleToken)
	})

	// Protected routes
	r.Route("/frames", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/seal", s.HandleSeal)
		r.Post("/open", s.HandleOpen)
	})
}
