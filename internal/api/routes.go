package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Logging(),
		Recovery(),
	)

	// Tasks
	mux.Handle("GET /api/v1/tasks", chain(http.HandlerFunc(h.ListTasks)))
	mux.Handle("POST /api/v1/tasks", chain(http.HandlerFunc(h.SubmitTask)))
	mux.Handle("GET /api/v1/tasks/{id}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("DELETE /api/v1/tasks/{id}", chain(http.HandlerFunc(h.DeleteTask)))
	mux.Handle("GET /api/v1/tasks/{id}/download", chain(http.HandlerFunc(h.DownloadTask)))

	// Queue & stats
	mux.Handle("GET /api/v1/queue", chain(http.HandlerFunc(h.GetQueue)))
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))
	mux.Handle("GET /api/v1/history", chain(http.HandlerFunc(h.ListHistory)))

	// Admin
	mux.Handle("POST /api/v1/admin/cleanup", chain(http.HandlerFunc(h.RunCleanup)))

	// Health
	mux.HandleFunc("GET /healthz", h.Health)
}
