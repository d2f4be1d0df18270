package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Archive operations
	mux.HandleFunc("/api/archive", s.app.ArchiveHandler.EnqueueHandler)          // POST - enqueue URLs
	mux.HandleFunc("/api/artifacts/requeue", s.app.ArchiveHandler.RequeueHandler) // POST - retry artifacts by id
	mux.HandleFunc("/api/artifacts/resume", s.app.ArchiveHandler.ResumeHandler)   // POST - requeue interrupted work

	// Items
	mux.HandleFunc("/api/items", s.app.ItemHandler.ListHandler) // GET - list or ?q= search
	mux.HandleFunc("/api/items/", s.app.ItemHandler.GetHandler) // GET /{id}

	// System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
