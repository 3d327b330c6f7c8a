package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const loginRateLimit = 5

// buildRouter assembles the dashboard's single route table. Every control
// endpoint sits behind the operator bearer token; only login and health are
// reachable unauthenticated. The WebSocket upgrade sits in the same
// authenticated group, so it needs a valid bearer token too.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.securityHeadersMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.With(s.rateLimitMiddleware(loginRateLimit)).Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleStatus)
			r.Get("/log-buffer", s.handleLogBuffer)
			r.Get("/history", s.handleHistory)
			r.Post("/scenes/{name}/start", s.handleStartScene)
			r.Post("/scenes/stop", s.handleStopScene)
			r.Post("/commands/{name}/run", s.handleRunCommand)
			r.Post("/publish", s.handlePublish)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
