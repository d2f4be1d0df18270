package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/services/orchestrator"
)

// ArchiveHandler exposes the archive orchestrator over HTTP.
type ArchiveHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       arbor.ILogger
}

// NewArchiveHandler creates the archive API handler.
func NewArchiveHandler(o *orchestrator.Orchestrator, logger arbor.ILogger) *ArchiveHandler {
	return &ArchiveHandler{orchestrator: o, logger: logger}
}

// EnqueueHandler handles POST /api/archive. Pass ?wait=true to block
// until the batch completes instead of polling status.
func (h *ArchiveHandler) EnqueueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req orchestrator.ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var result *orchestrator.EnqueueResult
	var err error
	if r.URL.Query().Get("wait") == "true" {
		result, err = h.orchestrator.EnqueueAndWait(r.Context(), &req)
	} else {
		result, err = h.orchestrator.Enqueue(r.Context(), &req)
	}
	if err != nil {
		h.logger.Warn().Err(err).Msg("Archive enqueue failed")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, result)
}

// RequeueHandler handles POST /api/artifacts/requeue.
func (h *ArchiveHandler) RequeueHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		ArtifactIDs []string `json:"artifact_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.ArtifactIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "artifact_ids is required")
		return
	}

	taskIDs, err := h.orchestrator.EnqueueArtifacts(r.Context(), req.ArtifactIDs)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Artifact requeue failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_ids": taskIDs,
	})
}

// ResumeHandler handles POST /api/artifacts/resume. Requeues artifacts
// left pending or in progress by a previous process.
func (h *ArchiveHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	count, err := h.orchestrator.ResumePendingArtifacts(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Artifact resume failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]int{"resumed": count})
}
