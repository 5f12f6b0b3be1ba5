package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when websocket.path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		r.Route("/door", func(r chi.Router) {
			r.Post("/open", s.handleDoorOpen)
			r.Post("/close", s.handleDoorClose)
		})

		r.Get("/servo", s.handleGetServo)
		r.Put("/servo", s.handleSetServo)

		r.Post("/bot/run", s.handleBotRun)

		r.Get("/materials", s.handleGetMaterials)
		r.Put("/materials", s.handleSetMaterials)

		r.Get("/history", s.handleHistory)
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}
