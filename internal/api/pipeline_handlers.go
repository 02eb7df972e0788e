package api

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/archyards/archyards/internal/models"
	"github.com/archyards/archyards/internal/orchestrator"
)

// PipelineHandler exposes the admin pipeline controls: manual trigger and
// run status.
type PipelineHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// NewPipelineHandler creates a pipeline handler.
func NewPipelineHandler(o *orchestrator.Orchestrator, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{orchestrator: o, logger: logger}
}

// TriggerRunHandler handles POST /api/pipeline/run. The run executes in the
// background; a run already in flight yields 409 and no side effects.
func (h *PipelineHandler) TriggerRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID, err := h.orchestrator.TriggerAsync(models.TriggerManual)
	if errors.Is(err, orchestrator.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a pipeline run is already in progress",
		}, h.logger)
		return
	}
	if err != nil {
		h.logger.Error("failed to trigger pipeline run", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("manual pipeline run triggered", "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": "started",
	}, h.logger)
}

// StatusResponse reports the orchestrator state for GET /api/pipeline/status.
type StatusResponse struct {
	Running     bool               `json:"running"`
	LastSummary *models.RunSummary `json:"last_summary,omitempty"`
}

// StatusHandler handles GET /api/pipeline/status.
func (h *PipelineHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{Running: h.orchestrator.IsRunning()}
	if last, ok := h.orchestrator.LastSummary(); ok {
		resp.LastSummary = &last
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}
