package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Metrics(),
		Logging(h.logger),
	)

	// Applications
	mux.Handle("POST /api/v1/applications", chain(http.HandlerFunc(h.StartApplication)))
	mux.Handle("POST /api/v1/applications/resume", chain(http.HandlerFunc(h.ResumeApplication)))

	// Plans
	mux.Handle("GET /api/v1/plans/{variant}", chain(http.HandlerFunc(h.GetPlan)))

	// Sessions
	mux.Handle("GET /api/v1/sessions/{id}", chain(http.HandlerFunc(h.GetSession)))

	// Progress. Без Logging: соединение живёт долго.
	mux.Handle("GET /api/v1/progress", Recovery(h.logger)(http.HandlerFunc(h.StreamProgress)))
}
