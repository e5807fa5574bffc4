package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/aquaproc/internal/scheduler"
)

type healthResponse struct {
	Status     string           `json:"status"`
	Version    string           `json:"version"`
	GoVersion  string           `json:"go_version"`
	Uptime     string           `json:"uptime"`
	Store      string           `json:"store"`
	Processes  int              `json:"processes"`
	Dispatcher *scheduler.Stats `json:"dispatcher,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     "ok",
		Processes: len(s.catalog.List()),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}
	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		resp.Dispatcher = &stats
	}
	respondOK(w, reqID, resp)
}
