package api

import (
	"net/http"
)

func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		jsonError(w, "unavailable", "batch pipeline disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth":    s.orchestrator.QueueDepth(),
		"queue_capacity": s.cfg.MaxQueueSize,
		"workers":        s.cfg.WorkerCount,
	})
}
